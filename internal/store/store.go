package store

import (
	"context"
	"errors"

	"clearcheck.app/engine/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// RequestStore defines the contract for verification request persistence.
type RequestStore interface {
	Create(ctx context.Context, req *model.VerificationRequest) error
	GetByID(ctx context.Context, id int64) (*model.VerificationRequest, error)
	MarkRunning(ctx context.Context, id int64, attempt int) error
	Complete(ctx context.Context, id int64, result *model.FinalResult) error
	Fail(ctx context.Context, id int64, errMsg string) error
}
