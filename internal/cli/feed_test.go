package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/ratemykey/internal/model"
)

// fakeRater rates every event except those keyed "bad", which it rejects.
func fakeRater(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		if q.Get("key") == "bad" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"code": "invalid_request", "reason": "bad key"})
			return
		}
		json.NewEncoder(w).Encode(model.Result{
			Context: q.Get("context"),
			Key:     q.Get("key"),
			Action:  q.Get("action"),
			Rating:  model.Rating{Key: q.Get("key"), Outlier: q.Get("action") == "rare"},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func replayBatch(n int) []model.ActionEvent {
	at := time.Date(2021, 1, 2, 12, 0, 0, 0, time.UTC)
	events := make([]model.ActionEvent, 0, n)
	for i := 0; i < n; i++ {
		key, action := fmt.Sprintf("user%d", i%5), "login"
		switch {
		case i%10 == 3:
			key = "bad"
		case i%10 == 7:
			action = "rare"
		}
		events = append(events, model.ActionEvent{Context: "c1", Key: key, Action: action, Timestamp: at})
	}
	return events
}

func countLines(t *testing.T, b []byte) int {
	t.Helper()
	var n int
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		var res model.Result
		require.NoError(t, json.Unmarshal(sc.Bytes(), &res))
		n++
	}
	return n
}

func TestReplayWritesEveryRating(t *testing.T) {
	srv := fakeRater(t)

	var out bytes.Buffer
	sum, err := replayEvents(context.Background(), replayOptions{URL: srv.URL, Workers: 4, Verbose: true}, replayBatch(30), &out)
	require.NoError(t, err)

	assert.Equal(t, int64(27), sum.Sent)
	assert.Equal(t, int64(3), sum.Failed)
	assert.Equal(t, int64(3), sum.Outliers)
	assert.Equal(t, int(sum.Sent), countLines(t, out.Bytes()))
}

func TestReplayReturnsCancellation(t *testing.T) {
	srv := fakeRater(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	sum, err := replayEvents(ctx, replayOptions{URL: srv.URL, Workers: 2, Verbose: true}, replayBatch(10), &out)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int(sum.Sent), countLines(t, out.Bytes()))
}

func TestReplayQuiet(t *testing.T) {
	srv := fakeRater(t)

	var out bytes.Buffer
	sum, err := replayEvents(context.Background(), replayOptions{URL: srv.URL, Workers: 1}, replayBatch(10), &out)
	require.NoError(t, err)
	assert.Equal(t, int64(9), sum.Sent)
	assert.Empty(t, out.String())
}
