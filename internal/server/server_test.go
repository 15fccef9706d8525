package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rcliao/ratemykey/internal/engine"
	"github.com/rcliao/ratemykey/internal/model"
	"github.com/rcliao/ratemykey/internal/store"
)

var t0 = time.Date(2021, 1, 2, 12, 0, 0, 0, time.UTC)

type downPinger struct{}

func (downPinger) Ping(context.Context) error { return errors.New("database is locked") }

func newTestServer(t *testing.T) (*Server, *store.SQLiteStore) {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	eng := engine.New(st, engine.DefaultConfig(), nil)
	t.Cleanup(eng.Close)

	s := New(eng, st, zaptest.NewLogger(t), Options{})
	s.now = func() time.Time { return t0 }
	return s, st
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) APIError {
	t.Helper()
	var body APIError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestIndex(t *testing.T) {
	s, _ := newTestServer(t)

	rec := get(t, s.Handler(), "/")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]time.Time
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body["date"].Equal(t0))
}

func TestRateMyKey(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	for _, a := range []string{"a", "a", "a", "b"} {
		rec := get(t, h, "/ratemykey?context=c1&key=u1&action="+a+"&date=2021-01-02T11:00:00Z")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := get(t, h, "/ratemykey?context=c1&key=u2&action=a")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	var res model.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "c1", res.Context)
	assert.Equal(t, "u2", res.Key)
	assert.Equal(t, "a", res.Action)
	assert.True(t, res.Date.Equal(t0), "missing date defaults to now")
	assert.Equal(t, "u2", res.Rating.Key)
	assert.Equal(t, uint64(1), res.Rating.Count)
	assert.False(t, res.Rating.Outlier)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, field := range []string{"context", "key", "action", "date", "runtime", "cache_runtime", "result"} {
		assert.Contains(t, raw, field)
	}
}

func TestRateMyKeyValidation(t *testing.T) {
	s, st := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name   string
		target string
	}{
		{"missing context", "/ratemykey?key=u1&action=a"},
		{"missing key", "/ratemykey?context=c1&action=a"},
		{"missing action", "/ratemykey?context=c1&key=u1"},
		{"sentinel", "/ratemykey?context=trash&key=u1&action=a"},
		{"bad date", "/ratemykey?context=c1&key=u1&action=a&date=yesterday"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.target)
			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeError(t, rec)
			assert.True(t, body.Error)
			assert.Equal(t, ErrCodeValidationFailed, body.Code)
			assert.NotEmpty(t, body.Reason)
			assert.NotEmpty(t, body.RequestID)
		})
	}

	entries, err := st.ExportContext(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReset(t *testing.T) {
	s, st := newTestServer(t)
	h := s.Handler()

	rec := get(t, h, "/ratemykey?context=c1&key=u1&action=a")
	require.Equal(t, http.StatusOK, rec.Code)

	for _, target := range []string{"/reset", "/reset?context=trash"} {
		rec = get(t, h, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		assert.Equal(t, ErrCodeValidationFailed, decodeError(t, rec).Code)
	}

	rec = get(t, h, "/reset?context=c1")
	require.Equal(t, http.StatusOK, rec.Code)

	entries, err := st.ExportContext(context.Background(), "c1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	s.health = downPinger{}
	rec = get(t, s.Handler(), "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, ErrCodeUnavailable, decodeError(t, rec).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	get(t, h, "/")
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "ratemykey_requests_total")
}

func TestRequestIDPropagation(t *testing.T) {
	s, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))
}

func TestRunShutsDown(t *testing.T) {
	s, _ := newTestServer(t)
	s.opts.Addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
