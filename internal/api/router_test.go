package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvesdmateus/image-publisher/internal/observability"
	"github.com/alvesdmateus/image-publisher/internal/queue"
	"github.com/alvesdmateus/image-publisher/internal/state"
)

type mockRunStore struct {
	runs   []state.Run
	filter state.ListFilter
}

func (m *mockRunStore) ListRuns(ctx context.Context, filter state.ListFilter) ([]state.Run, error) {
	m.filter = filter
	return m.runs, nil
}

func (m *mockRunStore) GetRun(ctx context.Context, id string) (*state.Run, error) {
	for i := range m.runs {
		if m.runs[i].ID == id {
			return &m.runs[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", state.ErrRunNotFound, id)
}

func (m *mockRunStore) CountRunsByStatus(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, run := range m.runs {
		counts[run.Status]++
	}
	return counts, nil
}

type mockStats struct {
	stats *queue.Stats
	err   error
}

func (m *mockStats) Stats(ctx context.Context) (*queue.Stats, error) {
	return m.stats, m.err
}

func TestServer_Health(t *testing.T) {
	s := NewServer(ServerConfig{Branch: "main", Version: "1.2.3"}, &mockDispatcher{},
		WithHealthCheck("queue", func(ctx context.Context) error { return nil }),
	)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "ok", resp.Checks["queue"])
}

func TestServer_HealthDegraded(t *testing.T) {
	s := NewServer(ServerConfig{Branch: "main"}, &mockDispatcher{},
		WithHealthCheck("queue", func(ctx context.Context) error { return nil }),
		WithHealthCheck("database", func(ctx context.Context) error { return errors.New("down") }),
	)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, "error", resp.Checks["database"])
}

func TestServer_WebhookRoute(t *testing.T) {
	d := &mockDispatcher{}
	metrics := observability.NewMetricsWith("router_test", prometheus.NewRegistry())
	s := NewServer(ServerConfig{Branch: "main", WebhookSecret: testSecret}, d, WithServerMetrics(metrics))
	defer s.Close()

	body := pushPayload("refs/heads/main", testSHA)
	req := httptest.NewRequest(http.MethodPost, "/hooks/github", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", "push")
	req.Header.Set("X-Hub-Signature-256", sign(body, testSecret))
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, d.events, 1)
}

func TestServer_WebhookRejectsUnsupportedContentType(t *testing.T) {
	s := NewServer(ServerConfig{Branch: "main"}, &mockDispatcher{})

	req := httptest.NewRequest(http.MethodPost, "/hooks/github", bytes.NewReader([]byte("hello")))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()

	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestServer_MetricsEndpoint(t *testing.T) {
	metrics := observability.NewMetricsWith("router_metrics_test", prometheus.NewRegistry())
	s := NewServer(ServerConfig{Branch: "main"}, &mockDispatcher{}, WithServerMetrics(metrics))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_NoMetricsEndpointWithoutMetrics(t *testing.T) {
	s := NewServer(ServerConfig{Branch: "main"}, &mockDispatcher{})

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_Runs(t *testing.T) {
	finished := time.Now()
	store := &mockRunStore{runs: []state.Run{
		{
			ID:         "run-1",
			Repository: "owner/repo",
			Status:     "SUCCEEDED",
			Tags:       []string{"ghcr.io/owner/repo:latest"},
			FinishedAt: &finished,
			Steps:      []state.StepRecord{{Step: "normalize", Status: "SUCCEEDED", DurationMS: 3}},
		},
	}}
	s := NewServer(ServerConfig{Branch: "main"}, &mockDispatcher{}, WithRunStore(store))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?status=SUCCEEDED&limit=5&offset=10", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var runs []RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, "SUCCEEDED", store.filter.Status)
	assert.Equal(t, 5, store.filter.Limit)
	assert.Equal(t, 10, store.filter.Offset)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var run RunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	require.Len(t, run.Steps, 1)
	assert.Equal(t, "normalize", run.Steps[0].Step)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?offset=-1", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Stats(t *testing.T) {
	store := &mockRunStore{runs: []state.Run{
		{ID: "a", Status: "SUCCEEDED"},
		{ID: "b", Status: "SUCCEEDED"},
		{ID: "c", Status: "FAILED"},
	}}
	stats := &mockStats{stats: &queue.Stats{Name: "runs", Pending: 4, Processing: 1}}
	s := NewServer(ServerConfig{Branch: "main"}, &mockDispatcher{}, WithRunStore(store), WithStats(stats))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Queue)
	assert.Equal(t, int64(4), resp.Queue.Pending)
	assert.Equal(t, 1, resp.Queue.Processing)
	assert.Equal(t, int64(2), resp.Runs["SUCCEEDED"])
	assert.Equal(t, int64(1), resp.Runs["FAILED"])
}

func TestServer_StatsQueueDown(t *testing.T) {
	s := NewServer(ServerConfig{Branch: "main"}, &mockDispatcher{}, WithStats(&mockStats{err: errors.New("connection refused")}))

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
