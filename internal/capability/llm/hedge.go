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

// HedgeAdjudicator judges claims from the model's own knowledge, without
// waiting for gathered evidence. It runs in parallel with evidence gathering
// as a safety net for when the primary adjudication comes back empty.
type HedgeAdjudicator struct {
	llm commonllm.Client
}

func NewHedgeAdjudicator(client commonllm.Client) *HedgeAdjudicator {
	return &HedgeAdjudicator{llm: client}
}

func (h *HedgeAdjudicator) AdjudicateDirect(ctx context.Context, claims []model.Claim, extra string) (*model.VerdictSet, error) {
	if len(claims) == 0 {
		return &model.VerdictSet{}, nil
	}

	var response VerdictResponse
	start := time.Now()

	_, err := h.llm.Chat(ctx, commonllm.Request{
		SystemPrompt: hedgeSystemPrompt,
		UserPrompt:   buildHedgeInput(claims, extra),
		SchemaName:   "verdict_response",
		Schema:       verdictSchema,
		Temperature:  commonllm.Temp(0.2),
	}, &response)
	if err != nil {
		return nil, fmt.Errorf("hedge adjudication: %w", err)
	}

	set := toVerdictSet(response)

	slog.InfoContext(ctx, "claims adjudicated from model knowledge",
		"claim_count", len(claims),
		"verdict_count", len(set.Verdicts),
		"latency_ms", time.Since(start).Milliseconds())

	return set, nil
}

func buildHedgeInput(claims []model.Claim, extra string) string {
	var sb strings.Builder

	if extra != "" {
		sb.WriteString("====Original Content====\n")
		sb.WriteString(extra)
		sb.WriteString("\n\n")
	}

	sb.WriteString("====Claims====\n")
	for i, c := range claims {
		fmt.Fprintf(&sb, "\n## Claim %d\nid: %s\ntext: %s\n", i+1, c.ID, c.Text)
		if len(c.Entities) > 0 {
			fmt.Fprintf(&sb, "entities: %s\n", strings.Join(c.Entities, ", "))
		}
	}

	sb.WriteString("\nJudge every claim from your own knowledge and return the structured verdicts.")
	return sb.String()
}
