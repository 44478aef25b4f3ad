package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/alvesdmateus/image-publisher/internal/observability"
)

func TestTracingMiddleware_Disabled(t *testing.T) {
	tracer, err := observability.NewTracer(context.Background(), observability.TracingConfig{Enabled: false})
	require.NoError(t, err)

	wrapped := TracingMiddleware(tracer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}))

	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestTracingMiddleware_RecordsRouteSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	tracer := observability.NewTracerFromProvider(provider, "test")

	router := chi.NewRouter()
	router.Use(TracingMiddleware(tracer))
	router.Get("/api/v1/runs/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, TraceIDFromContext(r.Context()))
		w.WriteHeader(http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/abc", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/runs/{id}", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), observability.AttrHTTPRoute.String("/api/v1/runs/{id}"))
}

func TestTracingMiddleware_WebhookDeliveryAttributes(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	defer provider.Shutdown(context.Background())

	router := chi.NewRouter()
	router.Use(TracingMiddleware(observability.NewTracerFromProvider(provider, "test")))
	router.Post("/hooks/github", func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodPost, "/hooks/github", nil)
	req.Header.Set(headerGitHubEvent, "push")
	req.Header.Set(headerGitHubDelivery, "delivery-1")
	router.ServeHTTP(httptest.NewRecorder(), req)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "POST /hooks/github", spans[0].Name())
	assert.Contains(t, spans[0].Attributes(), observability.AttrDeliveryID.String("delivery-1"))
}

func TestTraceIDFromContext_NoSpan(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
}
