package quizsolver

import (
	"context"
	"testing"
	"time"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	for _, id := range []string{"j1", "j2", "j3"} {
		if err := q.Enqueue(ctx, &JobPayload{JobID: id}); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
	}
	for _, want := range []string{"j1", "j2", "j3"} {
		job, err := q.Dequeue(ctx, time.Second)
		if err != nil {
			t.Fatalf("Dequeue failed: %v", err)
		}
		if job == nil || job.JobID != want {
			t.Fatalf("got %+v, want %s", job, want)
		}
	}
}

func TestMemoryQueueDequeueTimeout(t *testing.T) {
	q := NewMemoryQueue()
	job, err := q.Dequeue(context.Background(), 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if job != nil {
		t.Errorf("empty queue returned %+v", job)
	}
}

func TestMemoryQueueRetryDelaysAndBumpsAttempts(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	job := &JobPayload{JobID: "j1", Attempts: 1}
	if err := q.Retry(ctx, job, 50*time.Millisecond); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	// not yet due
	got, err := q.Dequeue(ctx, 10*time.Millisecond)
	if err != nil || got != nil {
		t.Fatalf("delayed job surfaced early: %+v, %v", got, err)
	}

	got, err = q.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue failed: %v", err)
	}
	if got == nil || got.JobID != "j1" {
		t.Fatalf("got %+v", got)
	}
	if got.Attempts != 2 {
		t.Errorf("attempts = %d, want 2", got.Attempts)
	}
}

func TestMemoryQueueFail(t *testing.T) {
	q := NewMemoryQueue()
	ctx := context.Background()

	job := &JobPayload{JobID: "dead", Attempts: 3}
	if err := q.Fail(ctx, job); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}
	failed := q.FailedJobs()
	if len(failed) != 1 || failed[0].JobID != "dead" {
		t.Errorf("failed list = %+v", failed)
	}
	if got, _ := q.Dequeue(ctx, 10*time.Millisecond); got != nil {
		t.Errorf("dead job still dequeued: %+v", got)
	}
}
