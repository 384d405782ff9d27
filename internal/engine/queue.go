package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// QueueConfig sizes the process-wide work queue.
type QueueConfig struct {
	// Ceilings caps concurrently executing jobs per stage. A stage with no
	// entry (or a zero entry) is unbounded.
	Ceilings map[Stage]int

	// SoftCap is the queued-job count past which the queue reports
	// saturation. Saturation never drops or blocks a submission; queued
	// jobs keep aging until a worker reaches them.
	SoftCap int

	// AgingRate is the number of effective-priority points a waiting job
	// gains per second. Defaults to 1.
	AgingRate float64
}

// WorkQueue is a priority-ordered, stage-partitioned queue. Ordering is
// (effective priority desc, submission sequence asc); effective priority
// grows with wait time so no stage starves. All access goes through the
// mutex; this is the only shared mutable state in the engine.
type WorkQueue struct {
	cfg QueueConfig

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Job
	running map[Stage]int
	seen    map[int64]*Handle
	seq     uint64
	closed  bool
}

func NewWorkQueue(cfg QueueConfig) *WorkQueue {
	if cfg.AgingRate <= 0 {
		cfg.AgingRate = 1
	}
	q := &WorkQueue{
		cfg:     cfg,
		running: make(map[Stage]int),
		seen:    make(map[int64]*Handle),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Submit enqueues a job and returns its handle. It never blocks the caller.
// Resubmitting an already-seen job ID is a no-op returning the original
// handle.
func (q *WorkQueue) Submit(j *Job) (*Handle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if h, ok := q.seen[j.ID]; ok {
		return h, nil
	}

	q.seq++
	j.seq = q.seq
	if j.submittedAt.IsZero() {
		j.submittedAt = time.Now()
	}
	q.pending = append(q.pending, j)
	q.seen[j.ID] = j.handle

	if q.cfg.SoftCap > 0 && len(q.pending) > q.cfg.SoftCap {
		slog.Warn("work queue saturated, job delayed",
			"queued", len(q.pending),
			"soft_cap", q.cfg.SoftCap,
			"stage", j.Stage,
			"session_id", j.SessionID)
	}

	q.cond.Broadcast()
	return j.handle, nil
}

// requeue puts a retried job back with a fresh sequence and submission time.
// The job keeps its ID, handle and base priority.
func (q *WorkQueue) requeue(j *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		j.handle.resolve(JobResult{
			JobID: j.ID, Stage: j.Stage, Task: j.Task,
			Status: StatusCancelled, Err: ErrJobCancelled, Attempt: j.attempt,
		})
		return
	}

	q.seq++
	j.seq = q.seq
	j.submittedAt = time.Now()
	q.pending = append(q.pending, j)
	q.cond.Broadcast()
}

// Take blocks until a ready job whose stage is below its ceiling is
// available, then removes it and counts it as running. Among eligible jobs
// the highest effective priority wins; ties go to the earliest submission.
func (q *WorkQueue) Take(ctx context.Context) (*Job, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if q.closed {
			return nil, ErrQueueClosed
		}
		if idx := q.selectLocked(time.Now()); idx >= 0 {
			j := q.pending[idx]
			q.pending = append(q.pending[:idx], q.pending[idx+1:]...)
			q.running[j.Stage]++
			return j, nil
		}
		q.cond.Wait()
	}
}

// selectLocked picks the index of the best eligible pending job, or -1.
// Linear scan: queues are short-lived and bounded by the soft cap, and the
// scan keeps aging exact without heap rebalancing.
func (q *WorkQueue) selectLocked(now time.Time) int {
	best := -1
	bestPrio := 0
	for i, j := range q.pending {
		if ceil := q.cfg.Ceilings[j.Stage]; ceil > 0 && q.running[j.Stage] >= ceil {
			continue
		}
		p := j.effectivePriority(now, q.cfg.AgingRate)
		if best == -1 || p > bestPrio || (p == bestPrio && j.seq < q.pending[best].seq) {
			best = i
			bestPrio = p
		}
	}
	return best
}

// MarkDone releases a job's bulkhead slot.
func (q *WorkQueue) MarkDone(j *Job) {
	q.mu.Lock()
	q.running[j.Stage]--
	q.cond.Broadcast()
	q.mu.Unlock()
}

// CancelSession removes every not-yet-started job belonging to the session
// and resolves their handles as cancelled. In-flight jobs are untouched;
// their late results are the session's to drop. Returns the number of jobs
// removed.
func (q *WorkQueue) CancelSession(sessionID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.pending[:0]
	cancelled := 0
	for _, j := range q.pending {
		if j.SessionID != sessionID {
			kept = append(kept, j)
			continue
		}
		cancelled++
		j.handle.resolve(JobResult{
			JobID: j.ID, Stage: j.Stage, Task: j.Task,
			Status: StatusCancelled, Err: ErrJobCancelled, Attempt: j.attempt,
		})
	}
	q.pending = kept
	if cancelled > 0 {
		q.cond.Broadcast()
	}
	return cancelled
}

// Close shuts the queue down: pending jobs resolve as cancelled and blocked
// workers return ErrQueueClosed. Idempotent.
func (q *WorkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	for _, j := range q.pending {
		j.handle.resolve(JobResult{
			JobID: j.ID, Stage: j.Stage, Task: j.Task,
			Status: StatusCancelled, Err: ErrJobCancelled, Attempt: j.attempt,
		})
	}
	q.pending = nil
	q.cond.Broadcast()
}

// Len returns the number of queued (not running) jobs.
func (q *WorkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Running returns the number of currently executing jobs for a stage.
func (q *WorkQueue) Running(stage Stage) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.running[stage]
}

// Saturated reports whether the queue is past its soft cap.
func (q *WorkQueue) Saturated() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cfg.SoftCap > 0 && len(q.pending) > q.cfg.SoftCap
}
