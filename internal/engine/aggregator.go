package engine

import (
	"strings"

	"clearcheck.app/engine/internal/model"
)

// buildFinalResult assembles the session's answer from whichever verdict set
// is usable. The primary wins when it produced verdicts; an empty or failed
// primary falls back to the hedge; with neither, the session degrades to the
// fallback explanation.
func buildFinalResult(sess *Session, primary, hedge *model.VerdictSet, explanation string, stats model.SessionStats) *model.FinalResult {
	source := model.SourceFallback
	var chosen *model.VerdictSet

	switch {
	case primary != nil && !primary.Empty():
		source = model.SourcePrimary
		chosen = primary
	case hedge != nil && !hedge.Empty():
		source = model.SourceHedge
		chosen = hedge
	}

	res := &model.FinalResult{
		SessionID:   sess.ID,
		Source:      source,
		Explanation: explanation,
		Stats:       stats,
	}
	if chosen == nil {
		return res
	}
	res.Summary = chosen.Summary

	claims := sess.Claims()
	enriched := enrichedByID(sess)
	matched := matchVerdicts(claims, chosen.Verdicts)

	// Group verdicts per content unit, in unit registration order, so every
	// verdict traces back through its claim to the unit it came from.
	byUnit := make(map[string][]model.Verdict)
	for _, claim := range claims {
		v, ok := matched[claim.ID]
		if !ok {
			continue
		}
		v.ClaimID = claim.ID
		if v.ClaimText == "" {
			v.ClaimText = claim.Text
		}
		if len(v.Citations) == 0 {
			if ec, ok := enriched[claim.ID]; ok {
				v.Citations = filterCitations(dedupeCitations(ec.Citations))
			}
		}
		byUnit[claim.UnitID] = append(byUnit[claim.UnitID], v)
	}

	for _, unit := range sess.Units() {
		verdicts := byUnit[unit.ID]
		if len(verdicts) == 0 {
			continue
		}
		res.Results = append(res.Results, model.UnitResult{Unit: unit, Verdicts: verdicts})
	}
	return res
}

func enrichedByID(sess *Session) map[string]model.EnrichedClaim {
	out := make(map[string]model.EnrichedClaim)
	for _, ec := range sess.EnrichedClaims() {
		out[ec.ID] = ec
	}
	return out
}

// matchVerdicts pairs verdicts with claims. Claim ID is authoritative; for
// verdicts the adjudicator returned without a usable ID, normalized claim
// text is tried next, and any leftovers pair up positionally with the claims
// still unmatched. Adjudicators echo IDs most of the time, but a model
// occasionally rewrites or drops them.
func matchVerdicts(claims []model.Claim, verdicts []model.Verdict) map[string]model.Verdict {
	matched := make(map[string]model.Verdict, len(verdicts))
	known := make(map[string]bool, len(claims))
	for _, c := range claims {
		known[c.ID] = true
	}

	var unmatched []model.Verdict
	for _, v := range verdicts {
		if v.ClaimID != "" && known[v.ClaimID] {
			if _, dup := matched[v.ClaimID]; !dup {
				matched[v.ClaimID] = v
				continue
			}
		}
		unmatched = append(unmatched, v)
	}

	if len(unmatched) == 0 {
		return matched
	}

	textIndex := make(map[string]string, len(claims))
	for _, c := range claims {
		if _, done := matched[c.ID]; done {
			continue
		}
		textIndex[normalizeText(c.Text)] = c.ID
	}

	var leftovers []model.Verdict
	for _, v := range unmatched {
		if id, ok := textIndex[normalizeText(v.ClaimText)]; ok {
			if _, dup := matched[id]; !dup {
				matched[id] = v
				delete(textIndex, normalizeText(v.ClaimText))
				continue
			}
		}
		leftovers = append(leftovers, v)
	}

	// Positional fallback: remaining verdicts map onto remaining claims in
	// order.
	i := 0
	for _, c := range claims {
		if i >= len(leftovers) {
			break
		}
		if _, done := matched[c.ID]; done {
			continue
		}
		matched[c.ID] = leftovers[i]
		i++
	}
	return matched
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// dedupeCitations collapses citations pointing at the same URL, keeping the
// first occurrence. URLs compare case-insensitively with trailing slashes
// stripped.
func dedupeCitations(citations []model.Citation) []model.Citation {
	seen := make(map[string]bool, len(citations))
	out := make([]model.Citation, 0, len(citations))
	for _, c := range citations {
		key := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(c.URL)), "/")
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}

// filterCitations drops citations too thin to support a verdict: no title
// and no snippet means the gatherer returned a bare link.
func filterCitations(citations []model.Citation) []model.Citation {
	out := citations[:0]
	for _, c := range citations {
		if strings.TrimSpace(c.Title) == "" && strings.TrimSpace(c.Snippet) == "" {
			continue
		}
		out = append(out, c)
	}
	return out
}
