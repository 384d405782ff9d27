package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, task VerifyTask) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, task VerifyTask) error {
	attempt := task.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	unitsJSON, err := EncodeUnits(task.Units)
	if err != nil {
		return err
	}

	fields := map[string]any{
		"task_type":  string(TaskTypeVerifyRequest),
		"request_id": task.RequestID,
		"units":      unitsJSON,
		"attempt":    attempt,
	}
	if task.DeadlineMs > 0 {
		fields["deadline_ms"] = task.DeadlineMs
	}
	if task.TraceID != nil && *task.TraceID != "" {
		fields["trace_id"] = *task.TraceID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue verify task: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued verify task", "request_id", task.RequestID, "units", len(task.Units), "attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
