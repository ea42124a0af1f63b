package quizsolver

import (
	"context"
	"sync"
	"time"
)

// JobProcessor runs one dequeued job to completion.
type JobProcessor interface {
	ProcessJob(ctx context.Context, job JobPayload) error
}

// WorkerOptions tune the consumer loop.
type WorkerOptions struct {
	Concurrency    int           // parallel job slots (default 1)
	JobsPerMinute  int           // throttle across all slots (default 5)
	MaxAttempts    int           // total tries per job before dead-letter (default 3)
	RetryBackoff   time.Duration // fixed delay between attempts (default 5m)
	DequeueTimeout time.Duration // poll interval on an idle queue (default 5s)
}

func (o WorkerOptions) withDefaults() WorkerOptions {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.JobsPerMinute <= 0 {
		o.JobsPerMinute = 5
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 5 * time.Minute
	}
	if o.DequeueTimeout <= 0 {
		o.DequeueTimeout = 5 * time.Second
	}
	return o
}

// Worker consumes the job queue and drives the pipeline. Throughput is
// throttled so the free-tier providers are not hammered by a burst of
// uploads.
type Worker struct {
	queue     JobQueue
	processor JobProcessor
	store     QuizStore
	limiter   *minuteLimiter
	opts      WorkerOptions
	log       *Logger
}

// NewWorker builds a queue consumer.
func NewWorker(queue JobQueue, processor JobProcessor, store QuizStore, opts WorkerOptions, log *Logger) *Worker {
	opts = opts.withDefaults()
	return &Worker{
		queue:     queue,
		processor: processor,
		store:     store,
		limiter:   newMinuteLimiter(opts.JobsPerMinute),
		opts:      opts,
		log:       log.With("component", "Worker"),
	}
}

// Run blocks, consuming jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker starting",
		"concurrency", w.opts.Concurrency, "jobsPerMinute", w.opts.JobsPerMinute)

	var wg sync.WaitGroup
	for i := 0; i < w.opts.Concurrency; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.runLoop(ctx, slot)
		}(i)
	}
	wg.Wait()
	w.log.Info("worker stopped")
}

func (w *Worker) runLoop(ctx context.Context, slot int) {
	log := w.log.With("slot", slot)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := w.limiter.Acquire(ctx); err != nil {
			return
		}

		job, err := w.queue.Dequeue(ctx, w.opts.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			w.limiter.Release()
			continue
		}

		w.handleJob(ctx, log, job)
	}
}

// handleJob runs one job with panic containment and routes its outcome.
func (w *Worker) handleJob(ctx context.Context, log *Logger, job *JobPayload) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("job panicked", "jobID", job.JobID, "panic", r)
			w.routeFailure(ctx, log, job)
		}
	}()

	err := w.processor.ProcessJob(ctx, *job)
	if err == nil {
		log.Info("job done", "jobID", job.JobID, "quizID", job.QuizID)
		return
	}

	switch {
	case IsParserError(err):
		// pipeline already cleaned up; nothing to retry
		log.Warn("job failed on unparseable document", "jobID", job.JobID, "error", err)
		if qerr := w.queue.Fail(ctx, job); qerr != nil {
			log.Error("failed to dead-letter job", "jobID", job.JobID, "error", qerr)
		}
	case IsProviderExhausted(err):
		log.Warn("all providers exhausted", "jobID", job.JobID, "attempt", job.Attempts)
		if serr := w.store.UpdateQuizStatus(ctx, job.QuizID, StatusWaitingAI); serr != nil {
			log.Error("failed to mark quiz waiting", "quizID", job.QuizID, "error", serr)
		}
		w.routeFailure(ctx, log, job)
	default:
		log.Error("job failed", "jobID", job.JobID, "error", err)
		w.routeFailure(ctx, log, job)
	}
}

// routeFailure retries with fixed backoff until the attempt budget runs out,
// then dead-letters the job. The quiz is parked in the waiting state so an
// operator can requeue it; Failed stays reserved for unparseable documents,
// which get cleaned up in the pipeline.
func (w *Worker) routeFailure(ctx context.Context, log *Logger, job *JobPayload) {
	if job.Attempts < w.opts.MaxAttempts {
		if err := w.queue.Retry(ctx, job, w.opts.RetryBackoff); err != nil {
			log.Error("failed to schedule retry", "jobID", job.JobID, "error", err)
		}
		return
	}
	log.Warn("attempt budget exhausted", "jobID", job.JobID, "attempts", job.Attempts)
	if err := w.store.UpdateQuizStatus(ctx, job.QuizID, StatusWaitingAI); err != nil {
		log.Error("failed to park quiz", "quizID", job.QuizID, "error", err)
	}
	if err := w.queue.Fail(ctx, job); err != nil {
		log.Error("failed to dead-letter job", "jobID", job.JobID, "error", err)
	}
}

// minuteLimiter caps job starts per rolling minute across worker slots.
type minuteLimiter struct {
	mu          sync.Mutex
	perMinute   int
	windowStart time.Time
	started     int
}

func newMinuteLimiter(perMinute int) *minuteLimiter {
	return &minuteLimiter{perMinute: perMinute}
}

// Acquire blocks until a job may start in the current window.
func (l *minuteLimiter) Acquire(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := time.Now()
		if now.Sub(l.windowStart) >= time.Minute {
			l.windowStart = now
			l.started = 0
		}
		if l.started < l.perMinute {
			l.started++
			l.mu.Unlock()
			return nil
		}
		wait := time.Minute - now.Sub(l.windowStart)
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Release returns an unused slot, taken when a dequeue came back empty.
func (l *minuteLimiter) Release() {
	l.mu.Lock()
	if l.started > 0 {
		l.started--
	}
	l.mu.Unlock()
}
