package handler_test

import (
	"context"
	"time"

	"clearcheck.app/engine/internal/model"
	"clearcheck.app/engine/internal/queue"
	"clearcheck.app/engine/internal/store"
)

type mockVerifier struct {
	verifyFn func(ctx context.Context, units []model.ContentUnit, deadline time.Duration) (*model.FinalResult, error)
}

func (m *mockVerifier) Verify(ctx context.Context, units []model.ContentUnit, deadline time.Duration) (*model.FinalResult, error) {
	if m.verifyFn != nil {
		return m.verifyFn(ctx, units, deadline)
	}
	return &model.FinalResult{SessionID: "sess-1", Source: model.SourcePrimary}, nil
}

type mockProducer struct {
	enqueueFn    func(ctx context.Context, task queue.VerifyTask) error
	capturedTask *queue.VerifyTask
}

func (m *mockProducer) Enqueue(ctx context.Context, task queue.VerifyTask) error {
	m.capturedTask = &task
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, task)
	}
	return nil
}

func (m *mockProducer) Close() error { return nil }

type mockRequestStore struct {
	createFn        func(ctx context.Context, req *model.VerificationRequest) error
	getByIDFn       func(ctx context.Context, id int64) (*model.VerificationRequest, error)
	failFn          func(ctx context.Context, id int64, errMsg string) error
	capturedRequest *model.VerificationRequest
	failedID        int64
}

func (m *mockRequestStore) Create(ctx context.Context, req *model.VerificationRequest) error {
	m.capturedRequest = req
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return nil
}

func (m *mockRequestStore) GetByID(ctx context.Context, id int64) (*model.VerificationRequest, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, store.ErrNotFound
}

func (m *mockRequestStore) MarkRunning(ctx context.Context, id int64, attempt int) error {
	return nil
}

func (m *mockRequestStore) Complete(ctx context.Context, id int64, result *model.FinalResult) error {
	return nil
}

func (m *mockRequestStore) Fail(ctx context.Context, id int64, errMsg string) error {
	m.failedID = id
	if m.failFn != nil {
		return m.failFn(ctx, id, errMsg)
	}
	return nil
}
