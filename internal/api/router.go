package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/alvesdmateus/image-publisher/internal/observability"
	"github.com/alvesdmateus/image-publisher/internal/queue"
	"github.com/alvesdmateus/image-publisher/internal/trigger"
)

// ServerConfig holds webhook server settings
type ServerConfig struct {
	Branch        string
	WebhookSecret string
	MetricsPath   string
	RateLimit     RateLimitConfig
	Version       string
}

// HealthCheck probes one dependency
type HealthCheck func(ctx context.Context) error

// Server represents the webhook HTTP server
type Server struct {
	router      *chi.Mux
	config      ServerConfig
	webhook     *WebhookHandler
	runs        *RunHandler
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	checks      map[string]HealthCheck
	stats       StatsSource
	rateLimiter *ClientRateLimiter
}

// StatsSource reports queue state for /api/v1/stats
type StatsSource interface {
	Stats(ctx context.Context) (*queue.Stats, error)
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithRunStore serves run history from the ledger
func WithRunStore(store RunStore) ServerOption {
	return func(s *Server) {
		s.runs = NewRunHandler(store)
	}
}

// WithServerMetrics records HTTP and webhook metrics and serves /metrics
func WithServerMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithServerTracer traces requests
func WithServerTracer(t *observability.Tracer) ServerOption {
	return func(s *Server) {
		s.tracer = t
	}
}

// WithStats serves queue and ledger counters on /api/v1/stats
func WithStats(source StatsSource) ServerOption {
	return func(s *Server) {
		s.stats = source
	}
}

// WithHealthCheck adds a named dependency check to /health
func WithHealthCheck(name string, check HealthCheck) ServerOption {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// NewServer creates a new webhook server
func NewServer(config ServerConfig, dispatcher Dispatcher, opts ...ServerOption) *Server {
	if config.Version == "" {
		config.Version = "dev"
	}

	s := &Server{
		router:  chi.NewRouter(),
		config:  config,
		webhook: NewWebhookHandler(dispatcher, trigger.NewFilter(config.Branch), config.WebhookSecret),
		checks:  make(map[string]HealthCheck),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics != nil {
		s.webhook.metrics = s.metrics
	}
	if s.tracer != nil {
		s.webhook.tracer = s.tracer
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(RequestLogger)
	if s.tracer != nil {
		s.router.Use(TracingMiddleware(s.tracer))
	}
	metricsPath := s.config.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if s.metrics != nil {
		s.router.Use(MetricsMiddleware(s.metrics, metricsPath, "/health"))
	}

	s.router.Get("/health", s.healthCheck)

	if s.metrics != nil {
		s.router.Method(http.MethodGet, metricsPath, promhttp.Handler())
	}

	s.router.Group(func(r chi.Router) {
		if s.config.RateLimit.Enabled {
			s.rateLimiter = NewClientRateLimiter(s.config.RateLimit)
			r.Use(s.rateLimiter.Middleware)
		}
		r.Use(middleware.AllowContentType("application/json", "application/x-www-form-urlencoded"))
		r.Post("/hooks/github", s.webhook.HandlePush)
	})

	if s.runs != nil {
		s.router.Route("/api/v1/runs", func(r chi.Router) {
			r.Get("/", s.runs.ListRuns)
			r.Get("/{id}", s.runs.GetRun)
		})
	}
	if s.runs != nil || s.stats != nil {
		s.router.Get("/api/v1/stats", s.statsHandler)
	}
}

// statsHandler handles GET /api/v1/stats
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	var resp StatsResponse

	if s.stats != nil {
		stats, err := s.stats.Stats(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to read queue stats")
			writeError(w, r, http.StatusServiceUnavailable, "Queue unavailable")
			return
		}
		resp.Queue = stats
	}

	if s.runs != nil {
		counts, err := s.runs.store.CountRunsByStatus(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("Failed to count runs")
			writeError(w, r, http.StatusInternalServerError, "Failed to count runs")
			return
		}
		resp.Runs = counts
	}

	writeJSON(w, http.StatusOK, resp)
}

// healthCheck handles GET /health
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:  "ok",
		Checks:  make(map[string]string, len(s.checks)),
		Version: s.config.Version,
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			response.Checks[name] = "error"
			response.Status = "degraded"
			continue
		}
		response.Checks[name] = "ok"
	}

	status := http.StatusOK
	if response.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// Handler returns the http.Handler for the server
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases background resources
func (s *Server) Close() {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
}
