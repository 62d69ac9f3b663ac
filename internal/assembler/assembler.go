// Package assembler implements the Result Assembler (C9): the pure mapping
// from a finished domain.ExecutionContext to the canonical
// domain.ExecutionResult (spec.md §4.9), ported directly from
// original_source/chatter/core/workflow_execution_result.py's
// ExecutionResult.from_raw.
package assembler

import (
	"time"

	"github.com/flowcore/chatflow/internal/domain"
)

// Assemble converts a finished ExecutionContext into an ExecutionResult.
// startedAt/finishedAt come from the engine's clock collaborator, not
// time.Now(), so assembly stays deterministic under test.
func Assemble(ec *domain.ExecutionContext, startedAt, finishedAt time.Time) domain.ExecutionResult {
	var finalMessage string
	if msg, ok := ec.LastAssistantMessage(); ok {
		finalMessage = msg.Content
	}

	promptTokens, completionTokens, totalTokens := usageFromMetadata(ec.Metadata)
	cost, _ := ec.Metadata["cost"].(float64)

	status := domain.ExecutionStatusCompleted
	var errStage domain.ErrorStage
	var errMsg string
	if len(ec.Errors) > 0 {
		status = domain.ExecutionStatusFailed
		errMsg = ec.Errors[0]
		errStage = domain.ErrorStageRuntime
	}

	return domain.ExecutionResult{
		ExecutionID:      ec.ExecutionID,
		Status:           status,
		FinalMessage:     finalMessage,
		Messages:         append([]domain.Message{}, ec.Messages...),
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      totalTokens,
		ToolCallCount:    ec.ToolCallCount,
		NodesExecuted:    len(ec.ExecutionHistory),
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
		Error:            errMsg,
		ErrorStage:       errStage,
		Metadata:         mergeCost(ec.Metadata, cost),
	}
}

// usageFromMetadata reads metadata.usage_metadata, accepting either the
// {input_tokens, output_tokens} or {prompt_tokens, completion_tokens}
// spellings (spec.md §4.9), and computes total_tokens when absent.
func usageFromMetadata(metadata map[string]any) (prompt, completion, total int) {
	usage, _ := metadata["usage_metadata"].(map[string]any)
	if usage == nil {
		return 0, 0, 0
	}

	prompt = firstNonZero(usage, "input_tokens", "prompt_tokens")
	completion = firstNonZero(usage, "output_tokens", "completion_tokens")
	total = firstNonZero(usage, "total_tokens")
	if total == 0 {
		total = prompt + completion
	}
	return prompt, completion, total
}

func firstNonZero(m map[string]any, keys ...string) int {
	for _, key := range keys {
		if v, ok := toInt(m[key]); ok && v != 0 {
			return v
		}
	}
	return 0
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func mergeCost(metadata map[string]any, cost float64) map[string]any {
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		out[k] = v
	}
	out["cost"] = cost
	return out
}
