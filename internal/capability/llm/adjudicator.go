package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	commonllm "clearcheck.app/engine/common/llm"
	"clearcheck.app/engine/internal/model"
)

type VerdictResponse struct {
	ClaimVerdicts  []VerdictItem `json:"claim_verdicts" jsonschema_description:"One verdict per claim"`
	OverallSummary string        `json:"overall_summary" jsonschema_description:"High-level summary across all claims"`
}

type VerdictItem struct {
	ClaimID       string `json:"claim_id" jsonschema_description:"The claim id, echoed exactly as given"`
	ClaimText     string `json:"claim_text" jsonschema_description:"The claim text being judged"`
	Verdict       string `json:"verdict" jsonschema:"enum=true,enum=false,enum=out_of_context,enum=unverifiable" jsonschema_description:"The verdict for this claim"`
	Justification string `json:"justification" jsonschema_description:"Evidence-based justification for the verdict"`
}

var verdictSchema = commonllm.GenerateSchema[VerdictResponse]()

// Adjudicator issues evidence-based verdicts: each claim is judged strictly
// against the citations gathered for it.
type Adjudicator struct {
	llm commonllm.Client
}

func NewAdjudicator(client commonllm.Client) *Adjudicator {
	return &Adjudicator{llm: client}
}

func (a *Adjudicator) Adjudicate(ctx context.Context, claims []model.EnrichedClaim, extra string) (*model.VerdictSet, error) {
	if len(claims) == 0 {
		return &model.VerdictSet{}, nil
	}

	var response VerdictResponse
	start := time.Now()

	_, err := a.llm.Chat(ctx, commonllm.Request{
		SystemPrompt: adjudicationSystemPrompt,
		UserPrompt:   buildAdjudicationInput(claims, extra),
		SchemaName:   "verdict_response",
		Schema:       verdictSchema,
		Temperature:  commonllm.Temp(0.2),
	}, &response)
	if err != nil {
		return nil, fmt.Errorf("adjudication: %w", err)
	}

	set := toVerdictSet(response)

	slog.InfoContext(ctx, "claims adjudicated",
		"claim_count", len(claims),
		"verdict_count", len(set.Verdicts),
		"latency_ms", time.Since(start).Milliseconds())

	return set, nil
}

// buildAdjudicationInput renders the claims and their citations as the user
// prompt. Claims without citations are still listed so the model can mark
// them unverifiable.
func buildAdjudicationInput(claims []model.EnrichedClaim, extra string) string {
	var sb strings.Builder

	if extra != "" {
		sb.WriteString("====Original Content====\n")
		sb.WriteString(extra)
		sb.WriteString("\n\n")
	}

	sb.WriteString("====Claims and Evidence====\n")
	for i, c := range claims {
		fmt.Fprintf(&sb, "\n## Claim %d\nid: %s\ntext: %s\n", i+1, c.ID, c.Text)
		if len(c.Entities) > 0 {
			fmt.Fprintf(&sb, "entities: %s\n", strings.Join(c.Entities, ", "))
		}
		if len(c.Citations) == 0 {
			sb.WriteString("evidence: none found\n")
			continue
		}
		sb.WriteString("evidence:\n")
		for _, cit := range c.Citations {
			fmt.Fprintf(&sb, "- [%s] %s\n", cit.Source, cit.Title)
			if cit.Publisher != "" {
				fmt.Fprintf(&sb, "  publisher: %s\n", cit.Publisher)
			}
			if cit.Rating != "" {
				fmt.Fprintf(&sb, "  rating: %s\n", cit.Rating)
			}
			if cit.Snippet != "" {
				fmt.Fprintf(&sb, "  snippet: %s\n", cit.Snippet)
			}
			fmt.Fprintf(&sb, "  url: %s\n", cit.URL)
		}
	}

	sb.WriteString("\nJudge every claim and return the structured verdicts.")
	return sb.String()
}

func toVerdictSet(response VerdictResponse) *model.VerdictSet {
	set := &model.VerdictSet{Summary: response.OverallSummary}
	for _, v := range response.ClaimVerdicts {
		set.Verdicts = append(set.Verdicts, model.Verdict{
			ClaimID:       v.ClaimID,
			ClaimText:     v.ClaimText,
			Verdict:       model.NormalizeVerdict(v.Verdict),
			Justification: v.Justification,
		})
	}
	return set
}
