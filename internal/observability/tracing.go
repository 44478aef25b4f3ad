package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// DefaultServiceName names the service in traces and metrics
const DefaultServiceName = "image-publisher"

// TracingConfig holds configuration for distributed tracing
type TracingConfig struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	Environment    string
	// OTLPEndpoint is the collector's host:port, e.g. "localhost:4318"
	OTLPEndpoint string
	// SampleRate ranges from 0.0 to 1.0
	SampleRate float64
	Insecure   bool
}

// DefaultTracingConfig returns a default tracing configuration
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:        false,
		ServiceName:    DefaultServiceName,
		ServiceVersion: "1.0.0",
		Environment:    "development",
		OTLPEndpoint:   "localhost:4318",
		SampleRate:     1.0,
		Insecure:       true,
	}
}

// Tracer wraps OpenTelemetry tracing functionality
type Tracer struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	config   TracingConfig
}

// NewTracer creates a tracer. A disabled config yields a tracer backed by the
// global no-op provider, so callers can start spans unconditionally.
func NewTracer(ctx context.Context, config TracingConfig) (*Tracer, error) {
	if config.ServiceName == "" {
		config.ServiceName = DefaultServiceName
	}

	if !config.Enabled {
		return &Tracer{
			tracer: otel.Tracer(config.ServiceName),
			config: config,
		}, nil
	}

	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.OTLPEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	// resource.New rather than resource.Merge avoids schema URL conflicts
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
			semconv.DeploymentEnvironment(config.Environment),
		),
		resource.WithHost(),
		resource.WithProcess(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(samplerFor(config.SampleRate)),
	)

	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Tracer{
		provider: provider,
		tracer:   provider.Tracer(config.ServiceName),
		config:   config,
	}, nil
}

func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1.0:
		return sdktrace.AlwaysSample()
	case rate <= 0.0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// NewTracerFromProvider wraps an existing provider. The caller owns its
// lifecycle.
func NewTracerFromProvider(provider trace.TracerProvider, name string) *Tracer {
	return &Tracer{
		tracer: provider.Tracer(name),
		config: TracingConfig{Enabled: true, ServiceName: name},
	}
}

// Shutdown flushes pending spans and stops the exporter
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t.provider != nil {
		return t.provider.Shutdown(ctx)
	}
	return nil
}

// StartSpan starts a new span with the given name
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// AddEvent adds an event to the current span
func (t *Tracer) AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

// RecordError records an error on the current span
func (t *Tracer) RecordError(ctx context.Context, err error, opts ...trace.EventOption) {
	trace.SpanFromContext(ctx).RecordError(err, opts...)
}

// IsEnabled returns whether tracing is enabled
func (t *Tracer) IsEnabled() bool {
	return t.config.Enabled
}

// Attribute keys shared by pipeline, worker and webhook spans
var (
	AttrRunID  = attribute.Key("run.id")
	AttrStep   = attribute.Key("run.step")
	AttrStatus = attribute.Key("run.status")

	AttrRepoName   = attribute.Key("repo.name")
	AttrRepoRef    = attribute.Key("repo.ref")
	AttrRepoCommit = attribute.Key("repo.commit")

	AttrImageTag    = attribute.Key("image.tag")
	AttrImageDigest = attribute.Key("image.digest")

	AttrHTTPRoute = attribute.Key("http.route")

	AttrQueueName  = attribute.Key("queue.name")
	AttrJobID      = attribute.Key("job.id")
	AttrDeliveryID = attribute.Key("webhook.delivery_id")
)

// RunSpanAttributes returns common attributes for run spans
func RunSpanAttributes(runID, repository, ref, sha string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrRunID.String(runID),
		AttrRepoName.String(repository),
		AttrRepoRef.String(ref),
		AttrRepoCommit.String(sha),
	}
}

// JobSpanAttributes returns common attributes for queue job spans
func JobSpanAttributes(queueName, jobID, deliveryID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrQueueName.String(queueName),
		AttrJobID.String(jobID),
		AttrDeliveryID.String(deliveryID),
	}
}

var globalTracer *Tracer

// InitGlobalTracer initializes the global tracer
func InitGlobalTracer(ctx context.Context, config TracingConfig) error {
	tracer, err := NewTracer(ctx, config)
	if err != nil {
		return err
	}
	globalTracer = tracer
	return nil
}

// GetGlobalTracer returns the global tracer, or a no-op tracer if none was initialized
func GetGlobalTracer() *Tracer {
	if globalTracer == nil {
		return &Tracer{
			tracer: otel.Tracer(DefaultServiceName),
			config: DefaultTracingConfig(),
		}
	}
	return globalTracer
}

// ShutdownGlobalTracer shuts down the global tracer
func ShutdownGlobalTracer(ctx context.Context) error {
	if globalTracer != nil {
		return globalTracer.Shutdown(ctx)
	}
	return nil
}
