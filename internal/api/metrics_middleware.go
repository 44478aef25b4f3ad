package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/alvesdmateus/image-publisher/internal/observability"
)

// routeUnmatched labels requests no route matched, so scans of random paths
// cannot grow the label set
const routeUnmatched = "unmatched"

// MetricsMiddleware records request counts and latency per route. Requests to
// the paths in skip, such as the scrape endpoint itself, are not recorded.
func MetricsMiddleware(metrics *observability.Metrics, skip ...string) func(http.Handler) http.Handler {
	skipped := make(map[string]struct{}, len(skip))
	for _, p := range skip {
		skipped[p] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skipped[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			metrics.IncHTTPRequestsInFlight()
			defer metrics.DecHTTPRequestsInFlight()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := routePattern(r)
			metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(responseStatus(ww)))
			metrics.RecordHTTPRequestDuration(r.Method, route, time.Since(start).Seconds())
		})
	}
}

// routePattern returns the chi pattern that served r. It is only complete
// after the router has matched, i.e. once next has returned.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return routeUnmatched
	}
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return routeUnmatched
}
