package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"clearcheck.app/engine/common/id"
	"clearcheck.app/engine/internal/engine"
	"clearcheck.app/engine/internal/http/dto"
	"clearcheck.app/engine/internal/model"
	"clearcheck.app/engine/internal/queue"
	"clearcheck.app/engine/internal/store"
)

// Verifier runs one verification session to completion.
type Verifier interface {
	Verify(ctx context.Context, units []model.ContentUnit, deadline time.Duration) (*model.FinalResult, error)
}

type VerifyHandler struct {
	verifier    Verifier
	producer    queue.Producer
	requests    store.RequestStore
	traceHeader string
}

func NewVerifyHandler(verifier Verifier, producer queue.Producer, requests store.RequestStore, traceHeader string) *VerifyHandler {
	return &VerifyHandler{
		verifier:    verifier,
		producer:    producer,
		requests:    requests,
		traceHeader: traceHeader,
	}
}

// Verify runs the session inline and returns the final result. Intended for
// interactive callers that want the answer on the same connection.
func (h *VerifyHandler) Verify(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid verify request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.verifier.Verify(ctx, toUnits(req.Units), time.Duration(req.DeadlineMs)*time.Millisecond)
	if err != nil {
		if errors.Is(err, engine.ErrMalformedInput) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		slog.ErrorContext(ctx, "verification failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification failed"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// VerifyAsync persists the request and enqueues it for the worker fleet.
func (h *VerifyHandler) VerifyAsync(c *gin.Context) {
	ctx := c.Request.Context()

	var req dto.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		slog.WarnContext(ctx, "invalid verify request", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record := &model.VerificationRequest{
		ID:     id.New(),
		Status: model.RequestPending,
		Units:  toUnits(req.Units),
	}
	if err := h.requests.Create(ctx, record); err != nil {
		slog.ErrorContext(ctx, "failed to persist verification request", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept request"})
		return
	}

	task := queue.VerifyTask{
		TaskType:   queue.TaskTypeVerifyRequest,
		RequestID:  record.ID,
		Units:      record.Units,
		DeadlineMs: req.DeadlineMs,
	}
	if traceID := h.traceID(c); traceID != "" {
		task.TraceID = &traceID
	}

	if err := h.producer.Enqueue(ctx, task); err != nil {
		slog.ErrorContext(ctx, "failed to enqueue verification request",
			"request_id", record.ID, "error", err)
		_ = h.requests.Fail(ctx, record.ID, "enqueue failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue request"})
		return
	}

	c.JSON(http.StatusAccepted, dto.AsyncVerifyResponse{
		RequestID: record.ID,
		Status:    string(model.RequestPending),
	})
}

// GetResult returns the stored state of an asynchronous request.
func (h *VerifyHandler) GetResult(c *gin.Context) {
	ctx := c.Request.Context()

	requestID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
		return
	}

	record, err := h.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
			return
		}
		slog.ErrorContext(ctx, "failed to load verification request",
			"request_id", requestID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load request"})
		return
	}

	c.JSON(http.StatusOK, record)
}

func (h *VerifyHandler) traceID(c *gin.Context) string {
	if traceID := c.GetHeader(h.traceHeader); traceID != "" {
		return traceID
	}
	if spanCtx := trace.SpanContextFromContext(c.Request.Context()); spanCtx.IsValid() {
		return spanCtx.TraceID().String()
	}
	return ""
}

func toUnits(payloads []dto.UnitPayload) []model.ContentUnit {
	units := make([]model.ContentUnit, len(payloads))
	for i, p := range payloads {
		units[i] = model.ContentUnit{
			Kind:     model.UnitKind(p.Kind),
			Text:     p.Text,
			URL:      p.URL,
			Metadata: p.Metadata,
		}
	}
	return units
}
