package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// ReasoningEffort controls the amount of reasoning for supported models.
type ReasoningEffort string

const (
	ReasoningEffortLow    ReasoningEffort = "low"
	ReasoningEffortMedium ReasoningEffort = "medium"
	ReasoningEffortHigh   ReasoningEffort = "high"
)

// Config holds LLM client configuration.
type Config struct {
	Provider        string          // "openai" or "anthropic"
	APIKey          string          // Required: API key for the provider
	BaseURL         string          // Optional: custom API endpoint
	Model           string          // Model name (e.g., "gpt-5.2", "claude-sonnet-4-5")
	MaxTokens       int             // Default max tokens per request
	ReasoningEffort ReasoningEffort // Optional: for models that support reasoning
}

// Client produces one structured completion per call: the model's output is
// unmarshaled into the caller's result value according to the request schema.
type Client interface {
	Chat(ctx context.Context, req Request, result any) (*Response, error)
	Model() string
}

type Request struct {
	SystemPrompt string
	UserPrompt   string
	SchemaName   string
	Schema       any
	MaxTokens    int
	Temperature  *float64 // nil = model default, explicit 0 = deterministic
}

type Response struct {
	PromptTokens     int
	CompletionTokens int
}

// New creates a Client for the configured provider.
// Defaults to OpenAI if no provider is specified.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderOpenAI
	}

	switch provider {
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	case ProviderAnthropic:
		return newAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// GenerateSchema builds a strict JSON schema for T, suitable for both
// OpenAI's response_format and Anthropic's tool input schema.
func GenerateSchema[T any]() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

func Temp(t float64) *float64 {
	return &t
}

// IsRetryable classifies an LLM error: rate limits, server errors and network
// failures are retryable; context cancellation and client errors are not.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	var oaiErr *openai.Error
	if errors.As(err, &oaiErr) {
		return retryableStatus(ctx, oaiErr.StatusCode)
	}

	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return retryableStatus(ctx, antErr.StatusCode)
	}

	// Network errors (no API response) are generally retryable
	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}

func retryableStatus(ctx context.Context, code int) bool {
	switch {
	case code == 429:
		slog.WarnContext(ctx, "llm rate limited, will retry", "status_code", code)
		return true
	case code >= 500:
		slog.WarnContext(ctx, "llm server error, will retry", "status_code", code)
		return true
	default:
		slog.ErrorContext(ctx, "llm client error, not retryable", "status_code", code)
		return false
	}
}
