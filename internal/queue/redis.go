package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const processingPrefix = "job:processing:"

// RedisQueue implements a FIFO job queue on a Redis list
type RedisQueue struct {
	client *redis.Client
	name   string
}

// NewRedisQueue connects to Redis and returns a queue named name. url is
// either host:port or a redis:// URL.
func NewRedisQueue(url, password string, db int, name string) (*RedisQueue, error) {
	opts := &redis.Options{
		Addr:     url,
		Password: password,
		DB:       db,
	}
	if strings.Contains(url, "://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		if password != "" {
			parsed.Password = password
		}
		opts = parsed
	}
	if name == "" {
		name = DefaultQueue
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	log.Info().
		Str("addr", opts.Addr).
		Int("db", opts.DB).
		Str("queue", name).
		Msg("Redis queue connected successfully")

	return &RedisQueue{client: client, name: name}, nil
}

// Name returns the queue name
func (q *RedisQueue) Name() string {
	return q.name
}

func (q *RedisQueue) key() string {
	return "queue:" + q.name
}

// Enqueue appends a job to the queue
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	data, err := encodeJob(job)
	if err != nil {
		return err
	}

	if err := q.client.RPush(ctx, q.key(), data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	log.Info().
		Str("jobID", job.ID).
		Str("repository", job.Event.Repository).
		Str("sha", job.Event.SHA).
		Msg("Job enqueued")

	return nil
}

// Dequeue retrieves and removes the oldest job, blocking up to timeout
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, q.key()).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}

	// BLPOP returns [key, value]
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected redis response: %v", result)
	}

	job, err := decodeJob([]byte(result[1]))
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("jobID", job.ID).
		Str("repository", job.Event.Repository).
		Msg("Job dequeued")

	return job, nil
}

// MarkProcessing records that a worker took the job
func (q *RedisQueue) MarkProcessing(ctx context.Context, jobID string) error {
	if err := q.client.Set(ctx, processingPrefix+jobID, time.Now().Unix(), time.Hour).Err(); err != nil {
		return fmt.Errorf("failed to mark job as processing: %w", err)
	}
	return nil
}

// MarkComplete removes the processing marker for a job
func (q *RedisQueue) MarkComplete(ctx context.Context, jobID string) error {
	if err := q.client.Del(ctx, processingPrefix+jobID).Err(); err != nil {
		return fmt.Errorf("failed to mark job as complete: %w", err)
	}
	return nil
}

// ProcessingJobs lists the IDs of jobs currently being processed
func (q *RedisQueue) ProcessingJobs(ctx context.Context) ([]string, error) {
	var jobIDs []string

	iter := q.client.Scan(ctx, 0, processingPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		jobIDs = append(jobIDs, strings.TrimPrefix(iter.Val(), processingPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list processing jobs: %w", err)
	}

	return jobIDs, nil
}

// Length returns the number of queued jobs
func (q *RedisQueue) Length(ctx context.Context) (int64, error) {
	length, err := q.client.LLen(ctx, q.key()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}
	return length, nil
}

// Close closes the Redis connection
func (q *RedisQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis connection: %w", err)
	}

	log.Info().Msg("Redis queue connection closed")
	return nil
}

// Ping checks if the Redis connection is alive
func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
