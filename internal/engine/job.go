package engine

import (
	"context"
	"sync"
	"time"

	"clearcheck.app/engine/common/id"
)

// Stage tags a job with the pipeline stage it belongs to. Stages double as
// bulkhead categories: the queue enforces a per-stage concurrency ceiling so
// a burst in one stage cannot starve another.
type Stage string

const (
	StageExpansion    Stage = "expansion"
	StageExtraction   Stage = "extraction"
	StageEvidence     Stage = "evidence"
	StageHedge        Stage = "hedge"
	StageAdjudication Stage = "adjudication"
	StageFallback     Stage = "fallback"
)

// Base priorities per stage. Extraction is highest because it determines all
// downstream fan-out; evidence is lowest because it is the most numerous and
// the most delay-tolerant. Adjudication and fallback are terminal steps for
// a session and should not queue behind other sessions' bulk work.
const (
	PriorityAdjudication = 50
	PriorityFallback     = 50
	PriorityExtraction   = 40
	PriorityHedge        = 30
	PriorityExpansion    = 20
	PriorityEvidence     = 10
)

// Status classifies how a job finished.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// Payload is the capability invocation a job carries. It must honor ctx
// cancellation if the underlying call is cancellable; the pool does not
// forcibly interrupt it otherwise.
type Payload func(ctx context.Context) (any, error)

// Job is one unit of schedulable work. Jobs must not hold references into
// another session's state.
type Job struct {
	ID        int64
	SessionID string
	Stage     Stage
	Task      string // logical task name, e.g. "extract:unit-3"
	Priority  int
	Timeout   time.Duration
	Payload   Payload

	seq         uint64
	submittedAt time.Time
	attempt     int
	handle      *Handle
}

// NewJob builds a job with a fresh snowflake ID and an unresolved handle.
func NewJob(sessionID string, stage Stage, task string, priority int, timeout time.Duration, payload Payload) *Job {
	j := &Job{
		ID:        id.New(),
		SessionID: sessionID,
		Stage:     stage,
		Task:      task,
		Priority:  priority,
		Timeout:   timeout,
		Payload:   payload,
		attempt:   1,
	}
	j.handle = &Handle{job: j, done: make(chan struct{})}
	return j
}

// Attempt returns the current attempt number, starting at 1.
func (j *Job) Attempt() int { return j.attempt }

// Handle returns the job's resolvable handle.
func (j *Job) Handle() *Handle { return j.handle }

// effectivePriority implements starvation aging: a job gains one priority
// point per whole second waited (scaled by rate), so a saturated
// high-priority stage cannot indefinitely block a lower-priority one.
func (j *Job) effectivePriority(now time.Time, rate float64) int {
	waited := now.Sub(j.submittedAt).Seconds()
	if waited < 0 {
		waited = 0
	}
	return j.Priority + int(waited*rate)
}

// JobResult is the recorded outcome of one job execution. Failures and
// timeouts are data for the orchestrator, never pool-level errors.
type JobResult struct {
	JobID   int64
	Stage   Stage
	Task    string
	Status  Status
	Value   any
	Err     error
	Attempt int
	Elapsed time.Duration
}

// Handle is the future returned by Submit. It resolves exactly once;
// duplicate resolutions are no-ops.
type Handle struct {
	job  *Job
	done chan struct{}

	mu     sync.Mutex
	once   sync.Once
	result JobResult
}

func (h *Handle) resolve(r JobResult) {
	h.once.Do(func() {
		h.mu.Lock()
		h.result = r
		h.mu.Unlock()
		close(h.done)
	})
}

// Done returns a channel closed when the job has resolved.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Result returns the job result and whether the handle has resolved.
func (h *Handle) Result() (JobResult, bool) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, true
	default:
		return JobResult{}, false
	}
}

// Await blocks until the job resolves or ctx is done.
func (h *Handle) Await(ctx context.Context) (JobResult, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, nil
	case <-ctx.Done():
		return JobResult{}, ctx.Err()
	}
}
