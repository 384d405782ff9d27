package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	commonllm "clearcheck.app/engine/common/llm"
)

type FallbackResponse struct {
	Explanation string `json:"explanation" jsonschema_description:"Friendly explanation for why no claims were found"`
}

var fallbackSchema = commonllm.GenerateSchema[FallbackResponse]()

// Fallback generates the user-facing explanation when extraction found no
// verifiable claims in the submitted content.
type Fallback struct {
	llm commonllm.Client
}

func NewFallback(client commonllm.Client) *Fallback {
	return &Fallback{llm: client}
}

func (f *Fallback) Explain(ctx context.Context, originalText string) (string, error) {
	var response FallbackResponse
	start := time.Now()

	_, err := f.llm.Chat(ctx, commonllm.Request{
		SystemPrompt: fallbackSystemPrompt,
		UserPrompt:   fmt.Sprintf(fallbackUserPrompt, originalText),
		SchemaName:   "fallback_response",
		Schema:       fallbackSchema,
		Temperature:  commonllm.Temp(0.7), // Moderate temp for a natural, friendly reply
	}, &response)
	if err != nil {
		return "", fmt.Errorf("no-claims fallback: %w", err)
	}

	slog.InfoContext(ctx, "no-claims explanation generated",
		"latency_ms", time.Since(start).Milliseconds())

	return response.Explanation, nil
}
