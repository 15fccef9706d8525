package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/ratemykey/internal/model"
)

const export = `{"published":"2020-12-26 23:19:08.123 UTC","ipAddress":"10.0.0.1","alternateid":"ana@example.com","eventType":"user.session.start","result":"SUCCESS"}
{"published":"2020-12-26 23:20:00 UTC","ipAddress":"10.0.0.2","eventType":"user.session.start","result":"FAILURE"}

{"published":"2020-12-26T23:21:00Z","alternateid":"bo@example.com","eventType":"user.mfa.verify"}
`

func TestParseOkta(t *testing.T) {
	res, err := ParseOkta(strings.NewReader(export), 0)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Lines)
	assert.Equal(t, 3, res.Skipped)
	require.Len(t, res.Events, 3)

	first := res.Events[0]
	assert.Equal(t, ContextByIP, first.Context)
	assert.Equal(t, "10.0.0.1", first.Key)
	assert.Equal(t, "user.session.start:SUCCESS", first.Action)
	assert.Equal(t, time.Date(2020, 12, 26, 23, 19, 8, 123000000, time.UTC), first.Timestamp)

	assert.Equal(t, ContextByUser, res.Events[1].Context)
	assert.Equal(t, "ana@example.com", res.Events[1].Key)

	assert.Equal(t, "10.0.0.2", res.Events[2].Key)
	assert.Equal(t, "user.session.start:FAILURE", res.Events[2].Action)
}

func TestParseOktaLimit(t *testing.T) {
	res, err := ParseOkta(strings.NewReader(export), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Lines)
	assert.Len(t, res.Events, 2)
}

func TestParseOktaErrors(t *testing.T) {
	_, err := ParseOkta(strings.NewReader("{not json}\n"), 0)
	assert.Error(t, err)

	_, err = ParseOkta(strings.NewReader(`{"ipAddress":"10.0.0.1"}`+"\n"), 0)
	assert.ErrorContains(t, err, "published")
}

func TestGenerate(t *testing.T) {
	a := Generate(200, 42, "")
	b := Generate(200, 42, "")
	require.Len(t, a, 200)
	assert.Equal(t, a, b, "same seed, same traffic")
	assert.NotEqual(t, a, Generate(200, 7, ""))

	known := map[string]bool{}
	for _, act := range syntheticActions {
		known[act] = true
	}
	for _, ev := range a {
		assert.Equal(t, DefaultSyntheticContext, ev.Context)
		assert.True(t, known[ev.Action], ev.Action)
		assert.Regexp(t, `^user([1-9][0-9]|[1-9][0-9][0-9]|1000)$`, ev.Key)
		assert.True(t, ev.Timestamp.IsZero())
	}

	assert.Equal(t, "other", Generate(1, 1, "other")[0].Context)
}

// fakeService answers /ratemykey and remembers the queries it saw.
type fakeService struct {
	mu      sync.Mutex
	queries []map[string]string
}

func (f *fakeService) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f.mu.Lock()
	f.queries = append(f.queries, map[string]string{
		"context": q.Get("context"), "key": q.Get("key"), "action": q.Get("action"), "date": q.Get("date"),
	})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if q.Get("action") == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"error": true, "code": "VALIDATION_FAILED", "reason": "invalid action: is required"})
		return
	}
	json.NewEncoder(w).Encode(model.Result{
		Context: q.Get("context"),
		Key:     q.Get("key"),
		Action:  q.Get("action"),
		Rating:  model.Rating{Key: q.Get("key"), Outlier: q.Get("key") == "intruder"},
	})
}

func TestClientSend(t *testing.T) {
	svc := &fakeService{}
	ts := httptest.NewServer(svc)
	defer ts.Close()

	c := NewClient(ts.URL+"/", ClientOptions{})
	at := time.Date(2021, 1, 2, 12, 0, 0, 0, time.UTC)
	res, err := c.Send(context.Background(), model.ActionEvent{Context: "c1", Key: "u1", Action: "a", Timestamp: at})
	require.NoError(t, err)
	assert.Equal(t, "u1", res.Rating.Key)

	require.Len(t, svc.queries, 1)
	assert.Equal(t, "2021-01-02T12:00:00Z", svc.queries[0]["date"])

	_, err = c.Send(context.Background(), model.ActionEvent{Context: "c1", Key: "u1"})
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusBadRequest, reqErr.Status)
	assert.Equal(t, "VALIDATION_FAILED", reqErr.Code)
}

func TestClientReplay(t *testing.T) {
	svc := &fakeService{}
	ts := httptest.NewServer(svc)
	defer ts.Close()

	events := []model.ActionEvent{
		{Context: "c1", Key: "u1", Action: "a"},
		{Context: "c1", Key: "intruder", Action: "a"},
		{Context: "c1", Key: "u2", Action: ""},
		{Context: "c1", Key: "u3", Action: "b"},
	}

	var mu sync.Mutex
	seen := 0
	c := NewClient(ts.URL, ClientOptions{Workers: 3, RatePerSecond: 1000})
	sum, err := c.Replay(context.Background(), events, func(model.ActionEvent, *model.Result, error) {
		mu.Lock()
		seen++
		mu.Unlock()
	})
	require.NoError(t, err)

	assert.Equal(t, int64(3), sum.Sent)
	assert.Equal(t, int64(1), sum.Failed)
	assert.Equal(t, int64(1), sum.Outliers)
	assert.Equal(t, 4, seen)
	assert.Len(t, svc.queries, 4)
	assert.Empty(t, svc.queries[0]["date"], "zero timestamps are left to the server")
}

func TestClientReplayCancelled(t *testing.T) {
	svc := &fakeService{}
	ts := httptest.NewServer(svc)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient(ts.URL, ClientOptions{RatePerSecond: 1})
	_, err := c.Replay(ctx, Generate(5, 1, ""), nil)
	assert.ErrorIs(t, err, context.Canceled)
}
