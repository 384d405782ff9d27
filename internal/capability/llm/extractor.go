package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	commonllm "clearcheck.app/engine/common/llm"
	"clearcheck.app/engine/internal/model"
)

type ExtractionResponse struct {
	Claims []ClaimItem `json:"claims" jsonschema_description:"Verifiable claims extracted from the text"`
}

type ClaimItem struct {
	Text     string   `json:"text" jsonschema_description:"The normalized, self-contained claim text"`
	Entities []string `json:"entities" jsonschema_description:"Main named entities mentioned in the claim"`
	Note     string   `json:"note" jsonschema_description:"Brief analysis of why this claim is checkable"`
}

var extractionSchema = commonllm.GenerateSchema[ExtractionResponse]()

// Extractor pulls verifiable claims out of a content unit using a structured
// LLM call. An empty claim list is a valid result, not an error.
type Extractor struct {
	llm commonllm.Client
}

func NewExtractor(client commonllm.Client) *Extractor {
	return &Extractor{llm: client}
}

func (e *Extractor) Extract(ctx context.Context, unit model.ContentUnit) ([]model.Claim, error) {
	var response ExtractionResponse
	start := time.Now()

	_, err := e.llm.Chat(ctx, commonllm.Request{
		SystemPrompt: extractionSystemPrompt,
		UserPrompt:   fmt.Sprintf(extractionUserPrompt, unit.Text),
		SchemaName:   "extraction_response",
		Schema:       extractionSchema,
		Temperature:  commonllm.Temp(0.1), // Low temp for consistent extraction
	}, &response)
	if err != nil {
		return nil, fmt.Errorf("claim extraction: %w", err)
	}

	claims := make([]model.Claim, 0, len(response.Claims))
	for _, c := range response.Claims {
		if c.Text == "" {
			continue
		}
		claims = append(claims, model.Claim{
			ID:       uuid.NewString(),
			Text:     c.Text,
			Entities: c.Entities,
			Note:     c.Note,
			UnitID:   unit.ID,
		})
	}

	slog.InfoContext(ctx, "claims extracted",
		"unit_id", unit.ID,
		"claim_count", len(claims),
		"latency_ms", time.Since(start).Milliseconds())

	return claims, nil
}
