package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/alvesdmateus/image-publisher/internal/trigger"
)

// DefaultQueue is the queue runs are enqueued on when none is configured
const DefaultQueue = "runs"

// Job is one queued run request. The event token is never serialized; the
// worker supplies credentials from its own configuration.
type Job struct {
	ID        string        `json:"id"`
	Event     trigger.Event `json:"event"`
	CreatedAt time.Time     `json:"created_at"`
}

// NewJob creates a job for event. The event token is dropped so every queue
// implementation hands workers a job without the enqueuer's credentials.
func NewJob(event trigger.Event) *Job {
	event.Token = ""
	return &Job{
		ID:        uuid.NewString(),
		Event:     event,
		CreatedAt: time.Now().UTC(),
	}
}

// Queue is the contract between the webhook receiver and the workers
type Queue interface {
	Enqueue(ctx context.Context, job *Job) error
	// Dequeue blocks up to timeout and returns nil, nil when no job arrived
	Dequeue(ctx context.Context, timeout time.Duration) (*Job, error)
	Length(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
	Name() string
}

// Stats is a snapshot of one queue
type Stats struct {
	Name       string `json:"name"`
	Pending    int64  `json:"pending"`
	Processing int    `json:"processing"`
}

func encodeJob(job *Job) ([]byte, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal job: %w", err)
	}
	return data, nil
}

func decodeJob(data []byte) (*Job, error) {
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if job.ID == "" {
		return nil, fmt.Errorf("job without id")
	}
	return &job, nil
}
