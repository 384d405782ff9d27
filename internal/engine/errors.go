package engine

import "errors"

var (
	// ErrMalformedInput is the only error a caller sees instead of a
	// FinalResult. It is returned before any job is submitted.
	ErrMalformedInput = errors.New("malformed input")

	// ErrCapabilityTimeout marks a capability call that ran past its job
	// timeout. Absorbed at job granularity.
	ErrCapabilityTimeout = errors.New("capability timeout")

	// ErrCapabilityError marks a capability call that failed. Absorbed at
	// job granularity.
	ErrCapabilityError = errors.New("capability error")

	// ErrQueueSaturated reports that the queue is past its soft cap. Jobs
	// are never dropped on saturation; they stay queued and keep aging.
	ErrQueueSaturated = errors.New("work queue saturated")

	// ErrSessionDeadlineExceeded is terminal for a session: the aggregator
	// proceeds with whatever partial results exist.
	ErrSessionDeadlineExceeded = errors.New("session deadline exceeded")

	// ErrNoClaimsFound routes a session to the fallback capability. Not a
	// failure.
	ErrNoClaimsFound = errors.New("no claims found")

	// ErrQueueClosed is returned to workers once the queue has shut down
	// and drained.
	ErrQueueClosed = errors.New("work queue closed")

	// ErrJobCancelled resolves handles of jobs removed from the queue by a
	// session cancellation before they started.
	ErrJobCancelled = errors.New("job cancelled")
)
