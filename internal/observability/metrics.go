package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// Run metrics
	RunsTotal      *prometheus.CounterVec
	RunsInProgress prometheus.Gauge
	StepDuration   *prometheus.HistogramVec
	TagsPushed     *prometheus.CounterVec

	// Webhook metrics
	WebhookDeliveries *prometheus.CounterVec

	// API metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Queue metrics
	QueueDepth    *prometheus.GaugeVec
	QueueLatency  *prometheus.HistogramVec
	WorkersActive prometheus.Gauge
}

// NewMetrics creates all metrics and registers them with the default registerer
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWith creates all metrics and registers them with reg
func NewMetricsWith(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "image_publisher"
	}
	factory := promauto.With(reg)

	return &Metrics{
		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by final status",
			},
			[]string{"status"},
		),
		RunsInProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "runs_in_progress",
				Help:      "Number of pipeline runs currently executing",
			},
		),
		StepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Time taken by each pipeline step",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600, 1200},
			},
			[]string{"step", "status"},
		),
		TagsPushed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tags_pushed_total",
				Help:      "Total number of image tags pushed",
			},
			[]string{"registry"},
		),

		WebhookDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_deliveries_total",
				Help:      "Total number of webhook deliveries by event and outcome",
			},
			[]string{"event", "outcome"},
		),

		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
		),

		QueueDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "queue_depth",
				Help:      "Number of jobs in the queue",
			},
			[]string{"queue"},
		),
		QueueLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "queue_latency_seconds",
				Help:      "Time jobs spend waiting in queue",
				Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
			},
			[]string{"queue"},
		),
		WorkersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workers_active",
				Help:      "Number of workers currently executing a run",
			},
		),
	}
}

// RecordRun records a finished run
func (m *Metrics) RecordRun(status string) {
	m.RunsTotal.WithLabelValues(status).Inc()
}

// RecordStepDuration records the duration of one pipeline step
func (m *Metrics) RecordStepDuration(step, status string, seconds float64) {
	m.StepDuration.WithLabelValues(step, status).Observe(seconds)
}

func (m *Metrics) IncRunsInProgress() {
	m.RunsInProgress.Inc()
}

func (m *Metrics) DecRunsInProgress() {
	m.RunsInProgress.Dec()
}

// RecordTagsPushed counts tags pushed to a registry
func (m *Metrics) RecordTagsPushed(registry string, count int) {
	m.TagsPushed.WithLabelValues(registry).Add(float64(count))
}

// RecordWebhookDelivery records a webhook delivery and what was done with it
func (m *Metrics) RecordWebhookDelivery(event, outcome string) {
	m.WebhookDeliveries.WithLabelValues(event, outcome).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration
func (m *Metrics) RecordHTTPRequestDuration(method, path string, seconds float64) {
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(seconds)
}

func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// SetQueueDepth sets the queue depth for a specific queue
func (m *Metrics) SetQueueDepth(queue string, depth float64) {
	m.QueueDepth.WithLabelValues(queue).Set(depth)
}

// RecordQueueLatency records how long a job waited before a worker took it
func (m *Metrics) RecordQueueLatency(queue string, seconds float64) {
	m.QueueLatency.WithLabelValues(queue).Observe(seconds)
}

func (m *Metrics) IncWorkersActive() {
	m.WorkersActive.Inc()
}

func (m *Metrics) DecWorkersActive() {
	m.WorkersActive.Dec()
}

// DefaultMetrics is registered with the default Prometheus registry
var DefaultMetrics = NewMetrics("")
