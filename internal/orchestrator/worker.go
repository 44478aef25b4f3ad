package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/alvesdmateus/image-publisher/internal/observability"
	"github.com/alvesdmateus/image-publisher/internal/pipeline"
	"github.com/alvesdmateus/image-publisher/internal/queue"
	"github.com/alvesdmateus/image-publisher/internal/trigger"
)

// Runner executes one pipeline run
type Runner interface {
	Execute(ctx context.Context, event *trigger.Event) (*pipeline.Result, error)
}

// ProcessingMarker is implemented by queues that track in-flight jobs
type ProcessingMarker interface {
	MarkProcessing(ctx context.Context, jobID string) error
	MarkComplete(ctx context.Context, jobID string) error
}

// WorkerMetrics receives worker measurements
type WorkerMetrics interface {
	SetQueueDepth(queue string, depth float64)
	RecordQueueLatency(queue string, seconds float64)
	IncWorkersActive()
	DecWorkersActive()
}

// Worker takes jobs from the queue with N goroutines. Each job is one
// independent run; failed runs are logged and never requeued.
type Worker struct {
	queue       queue.Queue
	runner      Runner
	concurrency int
	pollTimeout time.Duration
	token       string
	metrics     WorkerMetrics
	tracer      *observability.Tracer
	logger      zerolog.Logger
}

// WorkerOption configures a Worker
type WorkerOption func(*Worker)

// WithPollTimeout sets how long a dequeue blocks
func WithPollTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollTimeout = d
		}
	}
}

// WithToken sets the access token given to every dequeued event
func WithToken(token string) WorkerOption {
	return func(w *Worker) {
		w.token = token
	}
}

// WithWorkerMetrics records queue and worker measurements
func WithWorkerMetrics(m WorkerMetrics) WorkerOption {
	return func(w *Worker) {
		w.metrics = m
	}
}

// NewWorker creates a new worker
func NewWorker(q queue.Queue, runner Runner, concurrency int, logger zerolog.Logger, opts ...WorkerOption) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}

	w := &Worker{
		queue:       q,
		runner:      runner,
		concurrency: concurrency,
		pollTimeout: 5 * time.Second,
		tracer:      observability.GetGlobalTracer(),
		logger:      logger.With().Str("component", "worker").Logger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start runs the worker goroutines until ctx is cancelled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info().
		Int("concurrency", w.concurrency).
		Str("queue", w.queue.Name()).
		Msg("Starting worker")

	var g errgroup.Group
	for i := 0; i < w.concurrency; i++ {
		workerID := i
		g.Go(func() error {
			w.processJobs(ctx, workerID)
			return nil
		})
	}
	_ = g.Wait()

	w.logger.Info().Msg("Worker stopped")
	return nil
}

// processJobs is the loop of one worker goroutine
func (w *Worker) processJobs(ctx context.Context, workerID int) {
	logger := w.logger.With().Int("worker_id", workerID).Logger()
	logger.Info().Msg("Worker goroutine started")

	for {
		if ctx.Err() != nil {
			logger.Info().Msg("Worker goroutine stopped (context cancelled)")
			return
		}

		job, err := w.queue.Dequeue(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.Error().Err(err).Msg("Failed to dequeue job")
			// avoid spinning on a broken connection
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			w.updateQueueDepth(ctx)
			continue
		}

		w.handleJob(ctx, job, logger)
	}
}

// handleJob runs one job to completion
func (w *Worker) handleJob(ctx context.Context, job *queue.Job, logger zerolog.Logger) {
	logger = logger.With().
		Str("job_id", job.ID).
		Str("repository", job.Event.Repository).
		Str("sha", job.Event.SHA).
		Logger()

	if w.metrics != nil {
		w.metrics.RecordQueueLatency(w.queue.Name(), time.Since(job.CreatedAt).Seconds())
		w.metrics.IncWorkersActive()
		defer w.metrics.DecWorkersActive()
	}

	marker, _ := w.queue.(ProcessingMarker)
	if marker != nil {
		if err := marker.MarkProcessing(ctx, job.ID); err != nil {
			logger.Warn().Err(err).Msg("Failed to mark job as processing")
		}
		defer func() {
			if err := marker.MarkComplete(context.WithoutCancel(ctx), job.ID); err != nil {
				logger.Warn().Err(err).Msg("Failed to mark job as complete")
			}
		}()
	}

	ctx, span := w.tracer.StartSpan(ctx, "worker.job")
	defer span.End()
	span.SetAttributes(observability.JobSpanAttributes(w.queue.Name(), job.ID, job.Event.DeliveryID)...)

	event := job.Event
	if event.Token == "" {
		event.Token = w.token
	}

	logger.Info().Msg("Processing job")

	result, err := w.runner.Execute(ctx, &event)
	if err != nil {
		logger.Error().Err(err).Msg("Run failed")
		return
	}

	logger.Info().
		Str("run_id", result.RunID).
		Str("status", string(result.Status)).
		Msg("Job processed")
}

func (w *Worker) updateQueueDepth(ctx context.Context) {
	if w.metrics == nil {
		return
	}
	depth, err := w.queue.Length(ctx)
	if err != nil {
		return
	}
	w.metrics.SetQueueDepth(w.queue.Name(), float64(depth))
}
