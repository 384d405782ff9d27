package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"clearcheck.app/engine/common/logger"
	"clearcheck.app/engine/internal/capability"
	"clearcheck.app/engine/internal/model"
)

// Options configures one Engine instance.
type Options struct {
	Queue    QueueConfig
	Pool     PoolConfig
	Timeouts StageTimeouts

	// DefaultDeadline bounds a session when Verify is called with zero.
	DefaultDeadline time.Duration

	// Grace bounds how long a deadline-hit session may keep waiting for its
	// final adjudication before aggregating whatever it has.
	Grace time.Duration
}

func (o *Options) withDefaults() {
	if o.DefaultDeadline <= 0 {
		o.DefaultDeadline = 2 * time.Minute
	}
	if o.Grace <= 0 {
		o.Grace = 15 * time.Second
	}
}

// Engine runs content verification sessions over a shared work queue and
// worker pool. Sessions are isolated: concurrent Verify calls interleave on
// the same workers but never observe each other's artifacts.
type Engine struct {
	queue *WorkQueue
	pool  *WorkerPool
	caps  *capability.Registry
	opts  Options
}

func New(caps *capability.Registry, opts Options) (*Engine, error) {
	if err := caps.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capability registry: %w", err)
	}
	opts.withDefaults()

	queue := NewWorkQueue(opts.Queue)
	return &Engine{
		queue: queue,
		pool:  NewWorkerPool(queue, opts.Pool),
		caps:  caps,
		opts:  opts,
	}, nil
}

// Start launches the worker pool. ctx scopes the workers' lifetime.
func (e *Engine) Start(ctx context.Context) {
	e.pool.Start(ctx)
}

// Shutdown stops accepting work and drains the workers.
func (e *Engine) Shutdown() {
	e.pool.Stop()
}

// Queue exposes the underlying work queue for health reporting.
func (e *Engine) Queue() *WorkQueue { return e.queue }

// Verify runs one verification session to completion and returns its final
// result. Malformed input fails fast; everything after admission degrades
// instead of erroring, so a non-nil error past validation means the caller's
// context ended or the engine shut down.
func (e *Engine) Verify(ctx context.Context, units []model.ContentUnit, deadline time.Duration) (*model.FinalResult, error) {
	if err := validateUnits(units); err != nil {
		return nil, err
	}
	if deadline <= 0 {
		deadline = e.opts.DefaultDeadline
	}

	sess := newSession()
	defer sess.Close()

	sc := logger.StartSpan(ctx, "engine.verify", trace.WithSpanKind(trace.SpanKindInternal))
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		SessionID: logger.Ptr(sess.ID),
		Component: "engine",
	})

	slog.InfoContext(ctx, "session started",
		"units", len(units),
		"deadline", deadline.String())

	coord := newCoordinator(e.queue, e.caps, sess, e.opts.Timeouts, e.opts.Grace)
	result, err := coord.run(ctx, assignUnitIDs(units), deadline)
	if err != nil {
		sc.RecordError(err)
		slog.ErrorContext(ctx, "session aborted", "error", err)
		return nil, err
	}

	slog.InfoContext(ctx, "session finished",
		"source", string(result.Source),
		"verdicts", result.VerdictCount(),
		"claims", result.Stats.Claims,
		"deadline_hit", result.Stats.DeadlineHit,
		"elapsed_ms", result.Stats.Elapsed.Milliseconds())
	return result, nil
}

func validateUnits(units []model.ContentUnit) error {
	if len(units) == 0 {
		return fmt.Errorf("%w: no content units", ErrMalformedInput)
	}
	for i, u := range units {
		if strings.TrimSpace(u.Text) == "" && strings.TrimSpace(u.URL) == "" {
			return fmt.Errorf("%w: unit %d has neither text nor url", ErrMalformedInput, i)
		}
		if u.Kind == "" {
			return fmt.Errorf("%w: unit %d has no kind", ErrMalformedInput, i)
		}
	}
	return nil
}

// assignUnitIDs gives every inbound unit an identity without mutating the
// caller's slice.
func assignUnitIDs(units []model.ContentUnit) []model.ContentUnit {
	out := make([]model.ContentUnit, len(units))
	copy(out, units)
	for i := range out {
		if out[i].ID == "" {
			out[i].ID = model.NewUnitID()
		}
		if out[i].CreatedAt.IsZero() {
			out[i].CreatedAt = time.Now()
		}
	}
	return out
}
