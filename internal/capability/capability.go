// Package capability defines the external collaborators the verification
// engine drives: link expansion, claim extraction, evidence retrieval,
// adjudication and the no-claims fallback. Implementations live elsewhere
// (LLM-backed, HTTP-backed, or test doubles); the engine only ever sees
// these interfaces, registered once at startup.
package capability

import (
	"context"
	"fmt"

	"clearcheck.app/engine/internal/model"
)

// Expander turns one content unit into zero or more derived units, typically
// by fetching the links it references.
type Expander interface {
	Expand(ctx context.Context, unit model.ContentUnit) ([]model.ContentUnit, error)
}

// Extractor produces the verifiable claims contained in one content unit.
type Extractor interface {
	Extract(ctx context.Context, unit model.ContentUnit) ([]model.Claim, error)
}

// EvidenceGatherer retrieves citations for a single claim from one external
// source. One instance is registered per source; the engine submits one
// evidence job per (claim, gatherer) pair.
type EvidenceGatherer interface {
	Name() string
	Gather(ctx context.Context, claim model.Claim) ([]model.Citation, error)
}

// Adjudicator issues verdicts grounded in pre-gathered evidence.
type Adjudicator interface {
	Adjudicate(ctx context.Context, claims []model.EnrichedClaim, extra string) (*model.VerdictSet, error)
}

// HedgeAdjudicator issues verdicts from the claims alone, without
// pre-gathered evidence. It runs concurrently with evidence retrieval and
// acts as a safety net when the primary path yields nothing.
type HedgeAdjudicator interface {
	AdjudicateDirect(ctx context.Context, claims []model.Claim, extra string) (*model.VerdictSet, error)
}

// Fallback explains to the caller why no verifiable claims were found.
// Invoked only when extraction produced zero claims across the session.
type Fallback interface {
	Explain(ctx context.Context, originalText string) (string, error)
}

// Registry holds the capability set for one engine instance. It is built by
// the composition root and never mutated afterwards.
type Registry struct {
	Expander  Expander
	Extractor Extractor
	Evidence  []EvidenceGatherer
	Primary   Adjudicator
	Hedge     HedgeAdjudicator
	Fallback  Fallback
}

// Validate checks that every capability the engine dispatches to is present.
// Evidence gatherers are optional: with none registered, adjudication
// proceeds on claims alone.
func (r *Registry) Validate() error {
	if r.Expander == nil {
		return fmt.Errorf("capability registry: expander is required")
	}
	if r.Extractor == nil {
		return fmt.Errorf("capability registry: extractor is required")
	}
	if r.Primary == nil {
		return fmt.Errorf("capability registry: primary adjudicator is required")
	}
	if r.Hedge == nil {
		return fmt.Errorf("capability registry: hedge adjudicator is required")
	}
	if r.Fallback == nil {
		return fmt.Errorf("capability registry: fallback is required")
	}
	for i, g := range r.Evidence {
		if g == nil {
			return fmt.Errorf("capability registry: evidence gatherer %d is nil", i)
		}
		if g.Name() == "" {
			return fmt.Errorf("capability registry: evidence gatherer %d has no name", i)
		}
	}
	return nil
}
