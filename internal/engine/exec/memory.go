package exec

import (
	"context"
	"strings"

	"github.com/flowcore/chatflow/internal/domain"
	domainerrors "github.com/flowcore/chatflow/internal/domain/errors"
	"github.com/flowcore/chatflow/internal/provider"
)

const defaultSummaryPrompt = "Summarize the following conversation so far in a few sentences, preserving any facts, decisions, and open questions."

// executeMemory summarizes the part of the conversation older than
// memory_window into conversation_summary and truncates messages to the
// tail window (spec.md §4.6 "memory"). A memory_window of 0 means "never
// summarize" (spec.md §8): messages and conversation_summary are left
// untouched rather than falling back to a default window.
func executeMemory(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error) {
	entered := deps.now()

	window := configInt(node.Config, "memory_window", deps.Capabilities.MemoryWindow)

	clone := ec.Clone()
	if window <= 0 || len(clone.Messages) <= window {
		clone.RecordHistory(node.ID, entered, deps.now(), "noop")
		return Result{Context: clone}, nil
	}

	stale := clone.Messages[:len(clone.Messages)-window]
	tail := clone.Messages[len(clone.Messages)-window:]

	providerName := configString(node.Config, "provider", "openai")
	model, err := deps.model(providerName)
	if err != nil {
		return Result{}, err
	}

	summaryPrompt := configString(node.Config, "summary_prompt", defaultSummaryPrompt)
	req := provider.CompletionRequest{
		Model: configString(node.Config, "model", "gpt-4"),
		Messages: append([]domain.Message{
			{Role: domain.RoleSystem, Content: summaryPrompt},
		}, stale...),
		Temperature: configFloat(node.Config, "temperature", 0.3),
		MaxTokens:   configInt(node.Config, "max_tokens", 300),
	}

	resp, err := model.Complete(ctx, req)
	if err != nil {
		return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, err)
	}

	summary := strings.TrimSpace(resp.Message.Content)
	if clone.ConversationSummary != "" {
		clone.ConversationSummary = clone.ConversationSummary + "\n" + summary
	} else {
		clone.ConversationSummary = summary
	}
	clone.Messages = append([]domain.Message{}, tail...)

	exited := deps.now()
	clone.RecordHistory(node.ID, entered, exited, "ok")
	deps.publish(ctx, domain.EventNodeExecuted, clone, exited, map[string]any{
		"node_id": node.ID, "kind": string(node.Kind), "outcome": "ok", "summarized": len(stale),
	})
	return Result{Context: clone}, nil
}
