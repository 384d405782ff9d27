package queue

import (
	"encoding/json"
	"fmt"

	"clearcheck.app/engine/internal/model"
)

type TaskType string

const (
	TaskTypeVerifyRequest TaskType = "verify_request"
)

// VerifyTask is the payload the API server publishes for one asynchronous
// verification request. Content units travel JSON-encoded inside the stream
// entry; the worker rehydrates them before running the session.
type VerifyTask struct {
	TaskType   TaskType
	RequestID  int64
	Units      []model.ContentUnit
	DeadlineMs int64
	TraceID    *string
	Attempt    int
}

// EncodeUnits serializes content units for a stream field.
func EncodeUnits(units []model.ContentUnit) (string, error) {
	data, err := json.Marshal(units)
	if err != nil {
		return "", fmt.Errorf("encoding units: %w", err)
	}
	return string(data), nil
}

// DecodeUnits parses the units field of a stream entry.
func DecodeUnits(raw string) ([]model.ContentUnit, error) {
	var units []model.ContentUnit
	if err := json.Unmarshal([]byte(raw), &units); err != nil {
		return nil, fmt.Errorf("decoding units: %w", err)
	}
	return units, nil
}
