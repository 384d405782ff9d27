package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// recordResultTool is the forced tool Anthropic models answer through.
// Anthropic has no response_format equivalent, so the request schema becomes
// the tool's input schema and the tool_use block carries the structured
// output.
const recordResultTool = "record_result"

type anthropicClient struct {
	client anthropic.Client
	model  string
	cfg    Config
}

func newAnthropicClient(cfg Config) (Client, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-5"
	}

	return &anthropicClient{
		client: anthropic.NewClient(opts...),
		model:  model,
		cfg:    cfg,
	}, nil
}

func (c *anthropicClient) Chat(ctx context.Context, req Request, result any) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.cfg.MaxTokens
	}
	if maxTokens == 0 {
		maxTokens = 8192
	}

	inputSchema := anthropic.ToolInputSchemaParam{
		Type: "object",
	}
	if props := schemaProperties(req.Schema); props != nil {
		inputSchema.Properties = props
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: req.SystemPrompt},
		},
		Messages: []anthropic.MessageParam{
			{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(req.UserPrompt),
				},
			},
		},
		Tools: []anthropic.ToolUnionParam{
			{
				OfTool: &anthropic.ToolParam{
					Name:        recordResultTool,
					Description: anthropic.String("Record the structured result of the task."),
					InputSchema: inputSchema,
				},
			},
		},
		ToolChoice: anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: recordResultTool},
		},
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}

	start := time.Now()
	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}

	slog.DebugContext(ctx, "llm chat completed",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"stop_reason", resp.StopReason)

	var input []byte
	for _, block := range resp.Content {
		if block.Type == "tool_use" && block.Name == recordResultTool {
			input = []byte(block.Input)
			break
		}
	}
	if input == nil {
		return nil, fmt.Errorf("no %s tool call in response", recordResultTool)
	}

	if err := json.Unmarshal(input, result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	return &Response{
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

func (c *anthropicClient) Model() string {
	return c.model
}

// schemaProperties pulls the properties map out of a generated JSON schema so
// it can be spliced into the tool's input schema.
func schemaProperties(schema any) any {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	if props, ok := m["properties"]; ok {
		return props
	}
	return nil
}
