// Package provider defines the model-provider contract the "model"/"llm"
// node executor (C6) invokes (SPEC_FULL.md §4.6), plus the tool-binding
// shape it passes through when enable_tools is set. Concrete providers live
// in the openaichat and anthropicchat subpackages.
package provider

import (
	"context"

	"github.com/flowcore/chatflow/internal/domain"
)

// ToolBinding describes one callable tool surfaced to the model, sourced
// from the tool registry when enable_tools is active.
type ToolBinding struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// CompletionRequest is the provider-agnostic shape the model executor
// builds from node config and ExecutionContext.
type CompletionRequest struct {
	Model       string
	Messages    []domain.Message
	Temperature float64
	MaxTokens   int
	Tools       []ToolBinding
}

// CompletionResponse is the provider-agnostic reply.
type CompletionResponse struct {
	Message domain.Message
	Usage   domain.TokenUsage
}

// ChatModel is implemented by each concrete model provider (OpenAI,
// Anthropic, ...).
type ChatModel interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
}
