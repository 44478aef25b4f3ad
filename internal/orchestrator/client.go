package orchestrator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/alvesdmateus/image-publisher/internal/queue"
	"github.com/alvesdmateus/image-publisher/internal/trigger"
)

// Client enqueues runs for the workers. It only requires a queue connection,
// not the pipeline dependencies.
type Client struct {
	queue  queue.Queue
	logger zerolog.Logger
}

// NewClient creates a new orchestrator client for the webhook receiver
func NewClient(q queue.Queue, logger zerolog.Logger) *Client {
	return &Client{
		queue:  q,
		logger: logger.With().Str("component", "orchestrator-client").Logger(),
	}
}

// TriggerRun enqueues one run for event
func (c *Client) TriggerRun(ctx context.Context, event *trigger.Event) (*queue.Job, error) {
	job := queue.NewJob(*event)

	c.logger.Info().
		Str("job_id", job.ID).
		Str("repository", event.Repository).
		Str("ref", event.Ref).
		Str("sha", event.SHA).
		Str("delivery_id", event.DeliveryID).
		Msg("Triggering publish run")

	if err := c.queue.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to enqueue run: %w", err)
	}

	return job, nil
}

// QueueLength returns the number of runs waiting for a worker
func (c *Client) QueueLength(ctx context.Context) (int64, error) {
	return c.queue.Length(ctx)
}

// Stats reports pending jobs and, when the queue tracks them, jobs being
// processed
func (c *Client) Stats(ctx context.Context) (*queue.Stats, error) {
	pending, err := c.queue.Length(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue length: %w", err)
	}

	stats := &queue.Stats{Name: c.queue.Name(), Pending: pending}
	if lister, ok := c.queue.(interface {
		ProcessingJobs(ctx context.Context) ([]string, error)
	}); ok {
		ids, err := lister.ProcessingJobs(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list processing jobs: %w", err)
		}
		stats.Processing = len(ids)
	}
	return stats, nil
}

// Ping checks the queue connection
func (c *Client) Ping(ctx context.Context) error {
	return c.queue.Ping(ctx)
}
