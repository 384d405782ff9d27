package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"clearcheck.app/engine/core/db"
	"clearcheck.app/engine/internal/model"
)

// requestStore persists verification requests in Postgres. Units and results
// are stored as jsonb; lifecycle fields are plain columns so the dashboard
// can filter on them.
type requestStore struct {
	db *db.DB
}

func NewRequestStore(database *db.DB) RequestStore {
	return &requestStore{db: database}
}

func (s *requestStore) Create(ctx context.Context, req *model.VerificationRequest) error {
	unitsJSON, err := json.Marshal(req.Units)
	if err != nil {
		return fmt.Errorf("marshaling units: %w", err)
	}

	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now()
	}
	if req.Status == "" {
		req.Status = model.RequestPending
	}
	if req.Attempt <= 0 {
		req.Attempt = 1
	}

	_, err = s.db.Pool().Exec(ctx, `
		INSERT INTO verification_requests (id, status, units, attempt, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		req.ID, string(req.Status), unitsJSON, req.Attempt, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting verification request: %w", err)
	}
	return nil
}

func (s *requestStore) GetByID(ctx context.Context, id int64) (*model.VerificationRequest, error) {
	row := s.db.Pool().QueryRow(ctx, `
		SELECT id, status, units, result, error, attempt, created_at, completed_at
		FROM verification_requests
		WHERE id = $1`, id)

	var (
		req        model.VerificationRequest
		status     string
		unitsJSON  []byte
		resultJSON []byte
	)
	err := row.Scan(&req.ID, &status, &unitsJSON, &resultJSON, &req.Error, &req.Attempt, &req.CreatedAt, &req.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("selecting verification request: %w", err)
	}

	req.Status = model.RequestStatus(status)
	if err := json.Unmarshal(unitsJSON, &req.Units); err != nil {
		return nil, fmt.Errorf("unmarshaling units: %w", err)
	}
	if len(resultJSON) > 0 {
		var result model.FinalResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("unmarshaling result: %w", err)
		}
		req.Result = &result
	}
	return &req, nil
}

func (s *requestStore) MarkRunning(ctx context.Context, id int64, attempt int) error {
	tag, err := s.db.Pool().Exec(ctx, `
		UPDATE verification_requests
		SET status = $2, attempt = $3
		WHERE id = $1`,
		id, string(model.RequestRunning), attempt)
	if err != nil {
		return fmt.Errorf("marking request running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *requestStore) Complete(ctx context.Context, id int64, result *model.FinalResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}

	tag, err := s.db.Pool().Exec(ctx, `
		UPDATE verification_requests
		SET status = $2, result = $3, error = NULL, completed_at = $4
		WHERE id = $1`,
		id, string(model.RequestCompleted), resultJSON, time.Now())
	if err != nil {
		return fmt.Errorf("completing request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *requestStore) Fail(ctx context.Context, id int64, errMsg string) error {
	tag, err := s.db.Pool().Exec(ctx, `
		UPDATE verification_requests
		SET status = $2, error = $3, completed_at = $4
		WHERE id = $1`,
		id, string(model.RequestFailed), errMsg, time.Now())
	if err != nil {
		return fmt.Errorf("failing request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
