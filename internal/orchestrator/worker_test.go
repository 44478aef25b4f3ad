package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvesdmateus/image-publisher/internal/pipeline"
	"github.com/alvesdmateus/image-publisher/internal/queue"
	"github.com/alvesdmateus/image-publisher/internal/trigger"
)

// memoryQueue is an in-process queue.Queue
type memoryQueue struct {
	mu        sync.Mutex
	jobs      chan *queue.Job
	enqueued  int
	completed []string
}

func newMemoryQueue() *memoryQueue {
	return &memoryQueue{jobs: make(chan *queue.Job, 100)}
}

func (q *memoryQueue) Enqueue(ctx context.Context, job *queue.Job) error {
	q.mu.Lock()
	q.enqueued++
	q.mu.Unlock()
	q.jobs <- job
	return nil
}

func (q *memoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error) {
	select {
	case job := <-q.jobs:
		return job, nil
	case <-time.After(timeout):
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (q *memoryQueue) Length(ctx context.Context) (int64, error) {
	return int64(len(q.jobs)), nil
}

func (q *memoryQueue) Ping(ctx context.Context) error { return nil }

func (q *memoryQueue) Name() string { return "test" }

func (q *memoryQueue) MarkProcessing(ctx context.Context, jobID string) error { return nil }

func (q *memoryQueue) MarkComplete(ctx context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, jobID)
	return nil
}

type fakeRunner struct {
	mu     sync.Mutex
	events []trigger.Event
	fail   map[string]bool
	done   chan struct{}
}

func (r *fakeRunner) Execute(ctx context.Context, event *trigger.Event) (*pipeline.Result, error) {
	r.mu.Lock()
	r.events = append(r.events, *event)
	r.mu.Unlock()
	defer func() { r.done <- struct{}{} }()

	if r.fail[event.SHA] {
		return &pipeline.Result{Status: pipeline.StatusFailed}, errors.New("publish step failed")
	}
	return &pipeline.Result{RunID: "run-" + event.SHA, Status: pipeline.StatusSucceeded}, nil
}

func waitFor(t *testing.T, done <-chan struct{}, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d of %d runs", i, n)
		}
	}
}

func TestWorker_ProcessesEachJobOnce(t *testing.T) {
	q := newMemoryQueue()
	runner := &fakeRunner{
		fail: map[string]bool{"sha-1": true},
		done: make(chan struct{}, 10),
	}

	client := NewClient(q, zerolog.Nop())
	for _, sha := range []string{"sha-0", "sha-1", "sha-2"} {
		_, err := client.TriggerRun(context.Background(), &trigger.Event{
			Name:       trigger.EventPush,
			Ref:        "refs/heads/main",
			Repository: "owner/repo",
			SHA:        sha,
			Token:      "enqueuer-token",
		})
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	worker := NewWorker(q, runner, 2, zerolog.Nop(), WithPollTimeout(20*time.Millisecond), WithToken("worker-token"))

	stopped := make(chan struct{})
	go func() {
		_ = worker.Start(ctx)
		close(stopped)
	}()

	waitFor(t, runner.done, 3)
	cancel()
	<-stopped

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.events, 3)

	seen := map[string]int{}
	for _, ev := range runner.events {
		seen[ev.SHA]++
		assert.Equal(t, "worker-token", ev.Token)
	}
	assert.Equal(t, map[string]int{"sha-0": 1, "sha-1": 1, "sha-2": 1}, seen)

	// the failed run was not requeued
	assert.Equal(t, 3, q.enqueued)
	assert.Len(t, q.completed, 3)
}

func TestWorker_StopsOnCancel(t *testing.T) {
	q := newMemoryQueue()
	worker := NewWorker(q, &fakeRunner{done: make(chan struct{}, 1)}, 0, zerolog.Nop(), WithPollTimeout(10*time.Millisecond))
	assert.Equal(t, 1, worker.concurrency)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, worker.Start(ctx))
}

func TestClient_TriggerRun(t *testing.T) {
	q := newMemoryQueue()
	client := NewClient(q, zerolog.Nop())

	event := &trigger.Event{Repository: "owner/repo", SHA: "abc", Token: "ghs_enqueuer"}
	job, err := client.TriggerRun(context.Background(), event)
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	assert.Empty(t, job.Event.Token)
	assert.Equal(t, "ghs_enqueuer", event.Token)

	length, err := client.QueueLength(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestClient_Stats(t *testing.T) {
	q := newMemoryQueue()
	client := NewClient(q, zerolog.Nop())

	_, err := client.TriggerRun(context.Background(), &trigger.Event{Repository: "owner/repo", SHA: "abc"})
	require.NoError(t, err)

	stats, err := client.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test", stats.Name)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Zero(t, stats.Processing)
}
