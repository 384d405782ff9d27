package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"clearcheck.app/engine/common/logger"
)

// RetryPolicy bounds retries for one stage. A retried job is re-enqueued as
// new, preserving its base priority, and still counts against its stage's
// ceiling while executing.
type RetryPolicy struct {
	MaxAttempts int           // total attempts including the first; <=1 means no retry
	Backoff     time.Duration // delay before attempt n is backoff << (n-2)
}

// PoolConfig sizes the worker pool. The workload is I/O-bound, so Workers
// reflects desired concurrent external calls, not CPU parallelism.
type PoolConfig struct {
	Workers int
	Retry   map[Stage]RetryPolicy
}

// WorkerPool is a fixed set of execution slots pulling ready jobs from a
// WorkQueue. Job failures and timeouts resolve the job's handle; they never
// propagate as pool-level failures.
type WorkerPool struct {
	queue *WorkQueue
	cfg   PoolConfig

	wg     sync.WaitGroup
	cancel context.CancelFunc

	mu      sync.Mutex
	started bool
}

func NewWorkerPool(queue *WorkQueue, cfg PoolConfig) *WorkerPool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &WorkerPool{queue: queue, cfg: cfg}
}

// Start launches the worker goroutines. Safe to call once.
func (p *WorkerPool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	wctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func(slot int) {
			defer p.wg.Done()
			p.runWorker(wctx, slot)
		}(i)
	}

	slog.InfoContext(ctx, "worker pool started", "workers", p.cfg.Workers)
}

// Stop closes the queue, cancels in-flight job contexts and waits for the
// workers to drain. Idempotent.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	p.mu.Unlock()

	p.queue.Close()
	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

func (p *WorkerPool) runWorker(ctx context.Context, slot int) {
	for {
		job, err := p.queue.Take(ctx)
		if err != nil {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, ErrQueueClosed) {
				slog.ErrorContext(ctx, "worker take failed", "slot", slot, "error", err)
			}
			return
		}
		p.execute(ctx, job)
	}
}

func (p *WorkerPool) execute(ctx context.Context, job *Job) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID: logger.Ptr(job.SessionID),
		JobID:     logger.Ptr(job.ID),
		Stage:     logger.Ptr(string(job.Stage)),
		Component: "engine.pool",
	})

	jctx := ctx
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		jctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	value, err := p.invoke(jctx, job)
	elapsed := time.Since(start)

	p.queue.MarkDone(job)

	switch {
	case err == nil:
		job.handle.resolve(JobResult{
			JobID: job.ID, Stage: job.Stage, Task: job.Task,
			Status: StatusSuccess, Value: value,
			Attempt: job.attempt, Elapsed: elapsed,
		})
		slog.DebugContext(ctx, "job completed",
			"task", job.Task, "attempt", job.attempt, "duration_ms", elapsed.Milliseconds())

	case ctx.Err() != nil:
		// Pool is shutting down; the result would be dropped anyway.
		job.handle.resolve(JobResult{
			JobID: job.ID, Stage: job.Stage, Task: job.Task,
			Status: StatusCancelled, Err: ErrJobCancelled,
			Attempt: job.attempt, Elapsed: elapsed,
		})

	default:
		status := StatusFailure
		wrapped := fmt.Errorf("%w: %v", ErrCapabilityError, err)
		if job.Timeout > 0 && errors.Is(err, context.DeadlineExceeded) {
			status = StatusTimeout
			wrapped = fmt.Errorf("%w after %s: %v", ErrCapabilityTimeout, job.Timeout, err)
		}

		if p.shouldRetry(job) {
			p.scheduleRetry(ctx, job, status, wrapped)
			return
		}

		job.handle.resolve(JobResult{
			JobID: job.ID, Stage: job.Stage, Task: job.Task,
			Status: status, Err: wrapped,
			Attempt: job.attempt, Elapsed: elapsed,
		})
		slog.WarnContext(ctx, "job failed",
			"task", job.Task, "status", string(status),
			"attempt", job.attempt, "error", err)
	}
}

func (p *WorkerPool) invoke(ctx context.Context, job *Job) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in job payload",
				"task", job.Task, "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Payload(ctx)
}

func (p *WorkerPool) shouldRetry(job *Job) bool {
	if _, resolved := job.handle.Result(); resolved {
		// Session teardown already cancelled the handle; a retry would run
		// for nobody.
		return false
	}
	pol, ok := p.cfg.Retry[job.Stage]
	return ok && job.attempt < pol.MaxAttempts
}

// scheduleRetry re-enqueues the job after its backoff without occupying the
// worker slot during the wait.
func (p *WorkerPool) scheduleRetry(ctx context.Context, job *Job, status Status, cause error) {
	pol := p.cfg.Retry[job.Stage]
	backoff := pol.Backoff << (job.attempt - 1)
	job.attempt++

	slog.InfoContext(ctx, "retrying job",
		"task", job.Task,
		"next_attempt", job.attempt,
		"backoff_ms", backoff.Milliseconds(),
		"cause", string(status),
		"error", cause)

	if backoff <= 0 {
		p.queue.requeue(job)
		return
	}
	time.AfterFunc(backoff, func() { p.queue.requeue(job) })
}
