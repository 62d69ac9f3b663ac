// Package anthropicchat implements provider.ChatModel against Anthropic's
// Messages API, grounded on haasonsaas-nexus's AnthropicProvider (client
// construction, message/tool conversion, retryable-error classification),
// adapted from that provider's streaming Complete into a single blocking
// call matching the teacher's own non-streaming OpenAICompletionExecutor
// shape, since the model/llm node executor issues one call per node visit.
package anthropicchat

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/flowcore/chatflow/internal/domain"
	"github.com/flowcore/chatflow/internal/provider"
)

// Model adapts the Anthropic SDK client to provider.ChatModel.
type Model struct {
	client       anthropic.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

var _ provider.ChatModel = (*Model)(nil)

// Config configures a Model.
type Config struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// New creates a Model, applying the same defaults the teacher's provider
// stack uses for retry count/backoff.
func New(cfg Config) (*Model, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropicchat: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Model{
		client:       anthropic.NewClient(opts...),
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
		defaultModel: cfg.DefaultModel,
	}, nil
}

// Complete sends req as a single non-streaming Messages.New call, retrying
// transient failures with exponential backoff.
func (m *Model) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	params, err := m.buildParams(req)
	if err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("anthropicchat: %w", err)
	}

	var resp *anthropic.Message
	var lastErr error
	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		resp, lastErr = m.client.Messages.New(ctx, params)
		if lastErr == nil {
			break
		}
		if !isRetryable(lastErr) {
			return provider.CompletionResponse{}, fmt.Errorf("anthropicchat: completion: %w", lastErr)
		}
		if attempt == m.maxRetries {
			break
		}
		backoff := m.retryDelay * time.Duration(math.Pow(2, float64(attempt)))
		select {
		case <-ctx.Done():
			return provider.CompletionResponse{}, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if lastErr != nil {
		return provider.CompletionResponse{}, fmt.Errorf("anthropicchat: max retries exceeded: %w", lastErr)
	}

	return toCompletionResponse(resp), nil
}

func (m *Model) buildParams(req provider.CompletionRequest) (anthropic.MessageNewParams, error) {
	model := req.Model
	if model == "" {
		model = m.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var system string
	var messages []anthropic.MessageParam
	for _, msg := range req.Messages {
		if msg.Role == domain.RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += msg.Content
			continue
		}
		messages = append(messages, toAnthropicMessage(msg))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(req.Tools) > 0 {
		tools, err := toAnthropicTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}
	return params, nil
}

func toAnthropicMessage(msg domain.Message) anthropic.MessageParam {
	var blocks []anthropic.ContentBlockParamUnion
	if msg.Content != "" {
		blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
	}
	if msg.ToolCallID != "" {
		blocks = append(blocks, anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false))
	}
	for _, tc := range msg.ToolCalls {
		blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
	}

	if msg.Role == domain.RoleAssistant {
		return anthropic.NewAssistantMessage(blocks...)
	}
	return anthropic.NewUserMessage(blocks...)
}

func toAnthropicTools(tools []provider.ToolBinding) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		raw, err := json.Marshal(t.Parameters)
		if err != nil {
			return nil, fmt.Errorf("marshal schema for tool %s: %w", t.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(raw, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", t.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, t.Name)
		if toolParam.OfTool != nil {
			toolParam.OfTool.Description = anthropic.String(t.Description)
		}
		out = append(out, toolParam)
	}
	return out, nil
}

func toCompletionResponse(resp *anthropic.Message) provider.CompletionResponse {
	var text strings.Builder
	var toolCalls []domain.ToolCall
	for _, block := range resp.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			var args map[string]any
			_ = json.Unmarshal(variant.Input, &args)
			toolCalls = append(toolCalls, domain.ToolCall{
				ID:        variant.ID,
				Name:      variant.Name,
				Arguments: args,
			})
		}
	}

	return provider.CompletionResponse{
		Message: domain.Message{
			Role:      domain.RoleAssistant,
			Content:   strings.TrimSpace(text.String()),
			ToolCalls: toolCalls,
		},
		Usage: domain.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}
}

func isRetryable(err error) bool {
	msg := err.Error()
	for _, substr := range []string{
		"rate_limit", "429", "too many requests",
		"500", "502", "503", "504",
		"internal server error", "bad gateway", "service unavailable", "gateway timeout",
		"timeout", "deadline exceeded",
		"connection reset", "connection refused", "no such host",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}
