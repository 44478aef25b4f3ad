package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"

	"github.com/alvesdmateus/image-publisher/internal/observability"
	"github.com/alvesdmateus/image-publisher/internal/publisher"
	"github.com/alvesdmateus/image-publisher/internal/registry"
	"github.com/alvesdmateus/image-publisher/internal/runenv"
	"github.com/alvesdmateus/image-publisher/internal/source"
	"github.com/alvesdmateus/image-publisher/internal/trigger"
)

// Pipeline executes publish runs
type Pipeline struct {
	config    Config
	filter    trigger.Filter
	fetcher   source.Fetcher
	auth      registry.Authenticator
	publisher publisher.Publisher
	tracker   Tracker
	metrics   Metrics
	tracer    *observability.Tracer
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithTracker records progress with t
func WithTracker(t Tracker) Option {
	return func(p *Pipeline) {
		p.tracker = t
	}
}

// WithMetrics records measurements with m
func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithTracer traces runs with t
func WithTracer(t *observability.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = t
	}
}

// New creates a pipeline from its collaborators
func New(config Config, fetcher source.Fetcher, auth registry.Authenticator, pub publisher.Publisher, opts ...Option) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	p := &Pipeline{
		config:    config,
		filter:    trigger.NewFilter(config.Branch),
		fetcher:   fetcher,
		auth:      auth,
		publisher: pub,
		tracker:   NopTracker{},
		metrics:   nopMetrics{},
		tracer:    observability.GetGlobalTracer(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Filter returns the branch filter runs are gated on
func (p *Pipeline) Filter() trigger.Filter {
	return p.filter
}

type stepFunc func(ctx context.Context, run *Run) error

// Execute performs one run for event. A push that does not match the branch
// filter performs no steps and returns a skipped result with a nil error.
// Otherwise the steps run in order; the first failing step ends the run and
// its error is returned as a *StepError. Nothing is retried.
func (p *Pipeline) Execute(ctx context.Context, event *trigger.Event) (*Result, error) {
	result := &Result{
		RunID:     uuid.NewString(),
		Event:     event,
		StartedAt: time.Now(),
	}

	logger := log.With().Str("runID", result.RunID).Logger()

	if !p.filter.Matches(event) {
		result.Status = StatusSkipped
		result.FinishedAt = time.Now()
		p.metrics.RecordRun(string(StatusSkipped))

		ev := logger.Info().Str("branch", p.config.Branch)
		if event != nil {
			ev = ev.Str("event", event.Name).Str("ref", event.Ref)
		}
		ev.Msg("Event does not match branch filter, skipping run")
		return result, nil
	}

	if err := event.Validate(); err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		result.FinishedAt = time.Now()
		p.metrics.RecordRun(string(StatusFailed))
		return result, err
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	ctx, span := p.tracer.StartSpan(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(observability.RunSpanAttributes(result.RunID, event.Repository, event.Ref, event.SHA)...)

	p.metrics.IncRunsInProgress()
	defer p.metrics.DecRunsInProgress()

	workspace, cleanup, err := p.createWorkspace()
	if err != nil {
		result.Status = StatusFailed
		result.Error = err.Error()
		result.FinishedAt = time.Now()
		p.metrics.RecordRun(string(StatusFailed))
		return result, err
	}
	defer cleanup()

	run := &Run{
		ID:        result.RunID,
		Event:     event,
		Env:       runenv.New(),
		Workspace: workspace,
		StartedAt: result.StartedAt,
	}

	logger.Info().
		Str("repository", event.Repository).
		Str("ref", event.Ref).
		Str("sha", event.SHA).
		Str("actor", event.Actor).
		Str("workspace", workspace).
		Msg("Starting publish run")

	if err := p.tracker.StartRun(ctx, run); err != nil {
		logger.Error().Err(err).Msg("Failed to track run start")
	}

	steps := []struct {
		name Step
		fn   stepFunc
	}{
		{StepNormalize, p.normalize},
		{StepFetch, p.fetch},
		{StepAuthenticate, p.authenticate},
		{StepPublish, p.publish},
	}

	var runErr error
	for _, step := range steps {
		stepResult, err := p.runStep(ctx, run, step.name, step.fn)
		result.Steps = append(result.Steps, stepResult)
		if err != nil {
			runErr = &StepError{Step: step.name, Err: err}
			break
		}
	}

	result.Env = run.Env.Map()
	result.Publish = run.Publish
	result.FinishedAt = time.Now()

	if runErr != nil {
		result.Status = StatusFailed
		result.Error = runErr.Error()
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
		logger.Error().
			Err(runErr).
			Dur("duration", result.Duration()).
			Msg("Publish run failed")
	} else {
		result.Status = StatusSucceeded
		logger.Info().
			Strs("tags", run.Publish.PushedTags()).
			Dur("duration", result.Duration()).
			Msg("Publish run completed successfully")
	}

	span.SetAttributes(observability.AttrStatus.String(string(result.Status)))
	p.metrics.RecordRun(string(result.Status))
	if run.Publish != nil && len(run.Publish.Pushed) > 0 {
		p.metrics.RecordTagsPushed(p.config.Registry, len(run.Publish.Pushed))
	}

	if err := p.tracker.FinishRun(context.WithoutCancel(ctx), result); err != nil {
		logger.Error().Err(err).Msg("Failed to track run completion")
	}

	return result, runErr
}

func (p *Pipeline) runStep(ctx context.Context, run *Run, name Step, fn stepFunc) (StepResult, error) {
	stepResult := StepResult{
		Step:      name,
		StartedAt: time.Now(),
	}

	if err := p.tracker.StartStep(ctx, run.ID, name); err != nil {
		log.Error().Err(err).Str("runID", run.ID).Str("step", string(name)).Msg("Failed to track step start")
	}

	ctx, span := p.tracer.StartSpan(ctx, "pipeline.step."+string(name))
	defer span.End()
	span.SetAttributes(observability.AttrStep.String(string(name)))

	log.Info().Str("runID", run.ID).Str("step", string(name)).Msg("Running step")

	err := fn(ctx, run)
	if err == nil {
		err = ctx.Err()
	}

	stepResult.Duration = time.Since(stepResult.StartedAt)
	if err != nil {
		stepResult.Status = StatusFailed
		stepResult.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		stepResult.Status = StatusSucceeded
	}

	p.metrics.RecordStepDuration(string(name), string(stepResult.Status), stepResult.Duration.Seconds())

	if trackErr := p.tracker.FinishStep(context.WithoutCancel(ctx), run.ID, stepResult); trackErr != nil {
		log.Error().Err(trackErr).Str("runID", run.ID).Str("step", string(name)).Msg("Failed to track step completion")
	}

	return stepResult, err
}

// createWorkspace makes a fresh directory for one run
func (p *Pipeline) createWorkspace() (string, func(), error) {
	if p.config.WorkspaceRoot != "" {
		if err := os.MkdirAll(p.config.WorkspaceRoot, 0o755); err != nil {
			return "", nil, fmt.Errorf("failed to create workspace root: %w", err)
		}
	}

	dir, err := os.MkdirTemp(p.config.WorkspaceRoot, "run-*")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	cleanup := func() {
		if p.config.KeepWorkspace {
			log.Info().Str("workspace", dir).Msg("Keeping workspace")
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("workspace", dir).Msg("Failed to remove workspace")
		}
	}
	return dir, cleanup, nil
}

// IsStep reports whether err was raised by the given step
func IsStep(err error, step Step) bool {
	var stepErr *StepError
	return errors.As(err, &stepErr) && stepErr.Step == step
}
