package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/alvesdmateus/image-publisher/internal/observability"
)

// headerTraceID exposes the trace of a request to the caller
const headerTraceID = "X-Trace-ID"

// TracingMiddleware starts a server span per request, continuing any trace
// propagated by the caller. The span is named after the matched route.
func TracingMiddleware(tracer *observability.Tracer) func(http.Handler) http.Handler {
	propagator := otel.GetTextMapPropagator()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			attrs := []attribute.KeyValue{
				semconv.HTTPMethod(r.Method),
				semconv.HTTPTarget(r.URL.Path),
				semconv.UserAgentOriginal(r.UserAgent()),
				attribute.String("http.client_ip", getClientIP(r)),
			}
			if delivery := r.Header.Get(headerGitHubDelivery); delivery != "" {
				attrs = append(attrs,
					observability.AttrDeliveryID.String(delivery),
					attribute.String("github.event", r.Header.Get(headerGitHubEvent)),
				)
			}

			ctx, span := tracer.StartSpan(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attrs...),
			)
			defer span.End()

			if traceID := TraceIDFromContext(ctx); traceID != "" {
				w.Header().Set(headerTraceID, traceID)
			}

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			route := routePattern(r)
			status := responseStatus(ww)
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				observability.AttrHTTPRoute.String(route),
				semconv.HTTPStatusCode(status),
				attribute.Int("http.response_content_length", ww.BytesWritten()),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
		})
	}
}

// TraceIDFromContext returns the trace ID of the active span, or ""
func TraceIDFromContext(ctx context.Context) string {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
