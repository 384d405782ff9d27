package dto

// UnitPayload is one piece of content submitted for verification.
type UnitPayload struct {
	Kind     string            `json:"kind" binding:"required"`
	Text     string            `json:"text"`
	URL      string            `json:"url,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// VerifyRequest is the body of both the synchronous and asynchronous verify
// endpoints.
type VerifyRequest struct {
	Units      []UnitPayload `json:"units" binding:"required,min=1"`
	DeadlineMs int64         `json:"deadline_ms,omitempty"`
}

// AsyncVerifyResponse acknowledges an enqueued verification request.
type AsyncVerifyResponse struct {
	RequestID int64  `json:"request_id"`
	Status    string `json:"status"`
}
