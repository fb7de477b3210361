package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/resource-existence/internal/progress"
	"github.com/JakeFAU/resource-existence/internal/progress/sinks"
)

type fakeSnapshot struct {
	values map[string]int64
	at     time.Time
}

func (f fakeSnapshot) Snapshot() (map[string]int64, time.Time) {
	return f.values, f.at
}

func serve(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServerHealthz(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(nil, nil, nil, zap.NewNop()), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("Content-Type"))
}

func TestServerReadyz(t *testing.T) {
	t.Parallel()

	t.Run("AllChecksPass", func(t *testing.T) {
		t.Parallel()
		checks := map[string]ReadyCheck{
			"postgres": func(context.Context) error { return nil },
		}
		rec := serve(t, NewServer(nil, nil, checks, nil), "/readyz")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ready"}`, rec.Body.String())
	})

	t.Run("FailingCheck", func(t *testing.T) {
		t.Parallel()
		checks := map[string]ReadyCheck{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		}
		rec := serve(t, NewServer(nil, nil, checks, nil), "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		var body struct {
			Failed map[string]string `json:"failed"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, map[string]string{"redis": "connection refused"}, body.Failed)
	})
}

func TestServerMetrics(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil)
	serve(t, s, "/healthz")
	rec := serve(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "http_requests_total"))
}

func TestServerProgress(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	snap := fakeSnapshot{values: map[string]int64{"existence.document.index": 4}, at: at}
	rec := serve(t, NewServer(snap, nil, nil, nil), "/v1/sweep/progress")
	require.Equal(t, http.StatusOK, rec.Code)

	var body progressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(4), body.Values["existence.document.index"])
	require.NotNil(t, body.UpdatedAt)
	assert.True(t, at.Equal(*body.UpdatedAt))
}

func TestServerProgressEmpty(t *testing.T) {
	t.Parallel()

	rec := serve(t, NewServer(fakeSnapshot{}, nil, nil, nil), "/v1/sweep/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"values":{}}`, rec.Body.String())

	rec = serve(t, NewServer(nil, nil, nil, nil), "/v1/sweep/progress")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerProgressFromHub(t *testing.T) {
	t.Parallel()

	snap := sinks.NewSnapshotSink()
	hub := progress.NewHub(progress.Config{FlushInterval: 5 * time.Millisecond}, snap)
	hub.Report("existence.document.amount", 3)
	require.NoError(t, hub.Close(context.Background()))

	rec := serve(t, NewServer(snap, nil, nil, nil), "/v1/sweep/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	var body progressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Values["existence.document.amount"])
}

func TestServerRecoversPanics(t *testing.T) {
	t.Parallel()

	s := NewServer(nil, nil, nil, nil)
	s.router.Get("/boom", func(http.ResponseWriter, *http.Request) { panic("boom") })
	rec := serve(t, s, "/boom")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
