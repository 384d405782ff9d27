package model

import "time"

// RequestStatus tracks an asynchronous verification request's lifecycle.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestRunning   RequestStatus = "running"
	RequestCompleted RequestStatus = "completed"
	RequestFailed    RequestStatus = "failed"
)

// VerificationRequest is the persisted record of one asynchronous
// verification: the submitted units, its lifecycle status, and the final
// result once the worker finishes.
type VerificationRequest struct {
	ID          int64         `json:"id"`
	Status      RequestStatus `json:"status"`
	Units       []ContentUnit `json:"units"`
	Result      *FinalResult  `json:"result,omitempty"`
	Error       *string       `json:"error,omitempty"`
	Attempt     int           `json:"attempt"`
	CreatedAt   time.Time     `json:"created_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
}
