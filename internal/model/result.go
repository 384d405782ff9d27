package model

import "time"

// ResultSource identifies which adjudication path produced the final result.
type ResultSource string

const (
	SourcePrimary  ResultSource = "primary"
	SourceHedge    ResultSource = "hedge"
	SourceFallback ResultSource = "fallback"
)

// UnitResult groups the verdicts that trace back to one content unit.
type UnitResult struct {
	Unit     ContentUnit `json:"unit"`
	Verdicts []Verdict   `json:"verdicts"`
}

// SessionStats records how a session spent its budget. Useful for callers
// that want to reason about degraded results.
type SessionStats struct {
	Units             int           `json:"units"`
	ExpandedUnits     int           `json:"expanded_units"`
	Claims            int           `json:"claims"`
	EvidenceSubmitted int           `json:"evidence_submitted"`
	EvidenceCompleted int           `json:"evidence_completed"`
	DeadlineHit       bool          `json:"deadline_hit"`
	Elapsed           time.Duration `json:"elapsed"`
}

// FinalResult is the single structured output of a verification session.
// Callers always receive one, even when every capability call failed; gaps
// show up as claims with zero citations or an unverifiable verdict, never as
// an aborted pipeline.
type FinalResult struct {
	SessionID string       `json:"session_id"`
	Source    ResultSource `json:"source"`
	Results   []UnitResult `json:"results"`
	Summary   string       `json:"summary,omitempty"`

	// Explanation is set only on the no-claims fallback path.
	Explanation string `json:"explanation,omitempty"`

	Stats SessionStats `json:"stats"`
}

// VerdictCount returns the total number of verdicts across all units.
func (r *FinalResult) VerdictCount() int {
	n := 0
	for _, ur := range r.Results {
		n += len(ur.Verdicts)
	}
	return n
}
