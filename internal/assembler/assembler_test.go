package assembler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/flowcore/chatflow/internal/domain"
)

func TestAssemble_AcceptsBothUsageSpellings(t *testing.T) {
	ec := domain.NewExecutionContext("exec-1", "user-1", "conv-1", nil)
	ec.Messages = append(ec.Messages, domain.Message{Role: domain.RoleAssistant, Content: "done"})
	ec.Metadata["usage_metadata"] = map[string]any{"input_tokens": 10, "output_tokens": 4}

	result := Assemble(ec, time.Unix(0, 0), time.Unix(1, 0))
	assert.Equal(t, "done", result.FinalMessage)
	assert.Equal(t, 10, result.PromptTokens)
	assert.Equal(t, 4, result.CompletionTokens)
	assert.Equal(t, 14, result.TotalTokens)
	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)
}

func TestAssemble_PromptCompletionSpelling(t *testing.T) {
	ec := domain.NewExecutionContext("exec-2", "user-1", "conv-1", nil)
	ec.Metadata["usage_metadata"] = map[string]any{"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}

	result := Assemble(ec, time.Unix(0, 0), time.Unix(1, 0))
	assert.Equal(t, 3, result.PromptTokens)
	assert.Equal(t, 2, result.CompletionTokens)
	assert.Equal(t, 5, result.TotalTokens)
}

func TestAssemble_FailedWhenErrorsPresent(t *testing.T) {
	ec := domain.NewExecutionContext("exec-3", "user-1", "conv-1", nil)
	ec.Errors = append(ec.Errors, "boom")

	result := Assemble(ec, time.Unix(0, 0), time.Unix(1, 0))
	assert.Equal(t, domain.ExecutionStatusFailed, result.Status)
	assert.Equal(t, "boom", result.Error)
}
