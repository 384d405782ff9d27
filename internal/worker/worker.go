package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"clearcheck.app/engine/common/logger"
	"clearcheck.app/engine/internal/engine"
	"clearcheck.app/engine/internal/model"
	"clearcheck.app/engine/internal/queue"
	"clearcheck.app/engine/internal/store"
)

// Verifier runs one verification session to completion.
type Verifier interface {
	Verify(ctx context.Context, units []model.ContentUnit, deadline time.Duration) (*model.FinalResult, error)
}

type Config struct {
	MaxAttempts int
}

// Worker consumes verify tasks from the Redis stream, runs each through the
// engine, and persists the outcome. The stream gives at-least-once delivery;
// a request that dies mid-session is redelivered and re-run from scratch.
type Worker struct {
	consumer *queue.RedisConsumer
	requests store.RequestStore
	verifier Verifier
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer *queue.RedisConsumer, requests store.RequestStore, verifier Verifier, cfg Config) *Worker {
	return &Worker{
		consumer:  consumer,
		requests:  requests,
		verifier:  verifier,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				// Brief backoff on error
				time.Sleep(time.Second)
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		if err := w.processMessageSafe(ctx, msg); err != nil {
			slog.ErrorContext(ctx, "message processing failed",
				"error", err,
				"message_id", msg.ID,
				"request_id", msg.RequestID)
			w.handleFailedMessage(ctx, msg, err)
		}
	}

	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"message_id", msg.ID,
				"request_id", msg.RequestID)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage runs one verify task end to end. Exported so it can be
// reused by the reclaimer.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	sc := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.process_task",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer sc.End()

	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		MessageID: logger.Ptr(msg.ID),
		Component: "engine.worker",
	})

	slog.InfoContext(ctx, "processing verify task",
		"request_id", msg.RequestID,
		"units", len(msg.Units),
		"attempt", msg.Attempt)

	if err := w.requests.MarkRunning(ctx, msg.RequestID, msg.Attempt); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// The producer persists before enqueueing, so a missing row means
			// the request was deleted. Ack and move on.
			slog.WarnContext(ctx, "verify task has no request record, dropping",
				"request_id", msg.RequestID)
			return w.consumer.Ack(ctx, msg)
		}
		return fmt.Errorf("marking request running: %w", err)
	}

	deadline := time.Duration(msg.DeadlineMs) * time.Millisecond
	result, err := w.verifier.Verify(ctx, msg.Units, deadline)
	if err != nil {
		sc.RecordError(err)
		if errors.Is(err, engine.ErrMalformedInput) {
			// Retrying malformed input cannot succeed.
			if failErr := w.requests.Fail(ctx, msg.RequestID, err.Error()); failErr != nil {
				slog.ErrorContext(ctx, "failed to record request failure", "error", failErr)
			}
			return w.consumer.Ack(ctx, msg)
		}
		return fmt.Errorf("verifying request %d: %w", msg.RequestID, err)
	}

	if err := w.requests.Complete(ctx, msg.RequestID, result); err != nil {
		return fmt.Errorf("completing request %d: %w", msg.RequestID, err)
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// Log but don't fail - message will be reclaimed but completion is idempotent
		slog.WarnContext(ctx, "failed to ACK message",
			"error", err,
			"message_id", msg.ID)
	}

	slog.InfoContext(ctx, "verify task completed",
		"request_id", msg.RequestID,
		"source", string(result.Source),
		"verdicts", result.VerdictCount())

	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "max attempts reached, sending to DLQ",
			"message_id", msg.ID,
			"request_id", msg.RequestID,
			"attempts", msg.Attempt)
		if failErr := w.requests.Fail(ctx, msg.RequestID, err.Error()); failErr != nil && !errors.Is(failErr, store.ErrNotFound) {
			slog.ErrorContext(ctx, "failed to record request failure", "error", failErr)
		}
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed message",
		"message_id", msg.ID,
		"request_id", msg.RequestID,
		"attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}
