// Package openaichat implements provider.ChatModel against OpenAI's chat
// completions API, grounded on the teacher's
// internal/application/executor/node_executors.go OpenAICompletionExecutor
// (same client construction, non-streaming CreateChatCompletion call, and
// usage-field extraction), generalized from a single hardcoded node type
// into the provider interface SPEC_FULL.md's model executor depends on.
package openaichat

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/flowcore/chatflow/internal/domain"
	"github.com/flowcore/chatflow/internal/provider"
)

// Model adapts an *openai.Client to provider.ChatModel.
type Model struct {
	client *openai.Client
}

var _ provider.ChatModel = (*Model)(nil)

// New creates a Model using apiKey, optionally against a custom base URL
// (for OpenAI-compatible gateways).
func New(apiKey, baseURL string) *Model {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Model{client: openai.NewClientWithConfig(cfg)}
}

// Complete sends req as a non-streaming chat completion.
func (m *Model) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	chatReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: float32(req.Temperature),
		Messages:    toOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxCompletionTokens = req.MaxTokens
	}
	if len(req.Tools) > 0 {
		chatReq.Tools = toOpenAITools(req.Tools)
	}

	resp, err := m.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return provider.CompletionResponse{}, fmt.Errorf("openaichat: completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return provider.CompletionResponse{}, fmt.Errorf("openaichat: no choices returned")
	}

	choice := resp.Choices[0]
	msg := domain.Message{
		Role:    domain.RoleAssistant,
		Content: strings.TrimSpace(choice.Message.Content),
	}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, domain.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: parseArguments(tc.Function.Arguments),
		})
	}

	return provider.CompletionResponse{
		Message: msg,
		Usage: domain.TokenUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func toOpenAIMessages(msgs []domain.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		})
	}
	return out
}

func toOpenAITools(tools []provider.ToolBinding) []openai.Tool {
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func parseArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	// Arguments arrive as a JSON object string; a malformed payload is kept
	// as a single "_raw" field rather than dropped, so the tool executor
	// can still surface it in an error message.
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"_raw": raw}
	}
	return args
}
