package model

import "strings"

// VerdictType is the categorical judgment assigned to a claim.
type VerdictType string

const (
	VerdictTrue         VerdictType = "true"
	VerdictFalse        VerdictType = "false"
	VerdictOutOfContext VerdictType = "out_of_context"
	VerdictUnverifiable VerdictType = "unverifiable"
)

// NormalizeVerdict maps free-form adjudicator output onto a known
// VerdictType. Unknown values collapse to unverifiable rather than failing
// the session.
func NormalizeVerdict(s string) VerdictType {
	switch strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, " ", "_"))) {
	case "true", "verified":
		return VerdictTrue
	case "false":
		return VerdictFalse
	case "out_of_context", "misleading":
		return VerdictOutOfContext
	default:
		return VerdictUnverifiable
	}
}

// Verdict is the judgment for a single claim, with the justification and the
// citations the adjudicator relied on.
type Verdict struct {
	ClaimID       string      `json:"claim_id"`
	ClaimText     string      `json:"claim_text"`
	Verdict       VerdictType `json:"verdict"`
	Justification string      `json:"justification"`
	Citations     []Citation  `json:"citations,omitempty"`
}

// VerdictSet is a complete adjudication output for one session.
type VerdictSet struct {
	Verdicts []Verdict `json:"verdicts"`
	Summary  string    `json:"summary,omitempty"`
}

// Empty reports whether the set produced no verdicts. An empty primary set
// triggers substitution of the hedge result.
func (v *VerdictSet) Empty() bool {
	return v == nil || len(v.Verdicts) == 0
}
