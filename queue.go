package quizsolver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// JobQueue is the durable work queue between upload intake and the worker.
type JobQueue interface {
	Enqueue(ctx context.Context, job *JobPayload) error
	Dequeue(ctx context.Context, timeout time.Duration) (*JobPayload, error)
	Retry(ctx context.Context, job *JobPayload, delay time.Duration) error
	Fail(ctx context.Context, job *JobPayload) error
}

const (
	redisKeyJobs    = "quizsolver:jobs"
	redisKeyDelayed = "quizsolver:jobs:delayed"
	redisKeyFailed  = "quizsolver:jobs:failed"
)

// RedisQueue is a Redis-backed queue: a ready list, a delayed sorted set
// scored by due time, and a dead-letter list.
type RedisQueue struct {
	client *redis.Client
	log    *Logger
}

// NewRedisQueue connects to Redis and verifies the connection.
func NewRedisQueue(addr, password string, db int, log *Logger) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisQueue{client: client, log: log.With("component", "RedisQueue")}, nil
}

// Close releases the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

// Enqueue pushes a job onto the ready list.
func (q *RedisQueue) Enqueue(ctx context.Context, job *JobPayload) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, redisKeyJobs, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	q.log.Debug("job enqueued", "jobID", job.JobID, "quizID", job.QuizID)
	return nil
}

// Dequeue promotes due delayed jobs, then blocks up to timeout for a ready
// job. Returns (nil, nil) when the wait times out.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*JobPayload, error) {
	if err := q.promoteDelayed(ctx); err != nil {
		q.log.Warn("failed to promote delayed jobs", "error", err)
	}

	result, err := q.client.BRPop(ctx, timeout, redisKeyJobs).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue job: %w", err)
	}
	// BRPop returns [key, value]
	var job JobPayload
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

// Retry schedules the job to run again after delay, bumping its attempt
// counter.
func (q *RedisQueue) Retry(ctx context.Context, job *JobPayload, delay time.Duration) error {
	job.Attempts++
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	due := float64(time.Now().Add(delay).Unix())
	if err := q.client.ZAdd(ctx, redisKeyDelayed, redis.Z{Score: due, Member: data}).Err(); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	q.log.Info("job scheduled for retry",
		"jobID", job.JobID, "attempt", job.Attempts, "delay", delay)
	return nil
}

// Fail moves the job to the dead-letter list for operator inspection.
func (q *RedisQueue) Fail(ctx context.Context, job *JobPayload) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, redisKeyFailed, data).Err(); err != nil {
		return fmt.Errorf("failed to record failed job: %w", err)
	}
	q.log.Warn("job moved to dead letter", "jobID", job.JobID, "attempts", job.Attempts)
	return nil
}

// promoteDelayed moves every due delayed job back onto the ready list.
func (q *RedisQueue) promoteDelayed(ctx context.Context) error {
	now := fmt.Sprintf("%d", time.Now().Unix())
	due, err := q.client.ZRangeByScore(ctx, redisKeyDelayed, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		return err
	}
	for _, member := range due {
		if err := q.client.LPush(ctx, redisKeyJobs, member).Err(); err != nil {
			return err
		}
		if err := q.client.ZRem(ctx, redisKeyDelayed, member).Err(); err != nil {
			return err
		}
	}
	return nil
}

// MemoryQueue is an in-process JobQueue used by tests and single-binary runs.
type MemoryQueue struct {
	mu      sync.Mutex
	ready   []*JobPayload
	delayed []delayedJob
	failed  []*JobPayload
}

type delayedJob struct {
	job *JobPayload
	due time.Time
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, job *JobPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.ready = append(q.ready, job)
	return nil
}

func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*JobPayload, error) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		now := time.Now()
		for i := 0; i < len(q.delayed); {
			if !q.delayed[i].due.After(now) {
				q.ready = append(q.ready, q.delayed[i].job)
				q.delayed = append(q.delayed[:i], q.delayed[i+1:]...)
				continue
			}
			i++
		}
		if len(q.ready) > 0 {
			job := q.ready[0]
			q.ready = q.ready[1:]
			q.mu.Unlock()
			return job, nil
		}
		q.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (q *MemoryQueue) Retry(ctx context.Context, job *JobPayload, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job.Attempts++
	q.delayed = append(q.delayed, delayedJob{job: job, due: time.Now().Add(delay)})
	return nil
}

func (q *MemoryQueue) Fail(ctx context.Context, job *JobPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed = append(q.failed, job)
	return nil
}

// FailedJobs returns a snapshot of the dead-letter list.
func (q *MemoryQueue) FailedJobs() []*JobPayload {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*JobPayload, len(q.failed))
	copy(out, q.failed)
	return out
}
