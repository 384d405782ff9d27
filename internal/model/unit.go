package model

import (
	"time"

	"github.com/google/uuid"
)

// UnitKind identifies the origin of a piece of submitted content.
type UnitKind string

const (
	UnitOriginalText UnitKind = "original_text"
	UnitLinkContext  UnitKind = "link_context"
	UnitCaption      UnitKind = "caption"
	UnitTranscript   UnitKind = "transcript"
)

// ContentUnit is one atomic piece of material moving through the pipeline:
// raw text submitted by the caller, or a link_context unit produced by
// expanding a URL found in an original_text unit.
type ContentUnit struct {
	ID       string            `json:"id"`
	Kind     UnitKind          `json:"kind"`
	Text     string            `json:"text"`
	URL      string            `json:"url,omitempty"`       // set for link_context units
	ParentID string            `json:"parent_id,omitempty"` // unit this was expanded from
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
}

// NewUnitID mints an identifier for a content unit.
func NewUnitID() string { return uuid.NewString() }

// IsExpandable reports whether the unit can produce link_context children.
// Only caller-submitted text is scanned for links; expanded units are not
// re-expanded, which keeps the stage graph acyclic.
func (u ContentUnit) IsExpandable() bool {
	return u.Kind == UnitOriginalText && u.ParentID == ""
}
