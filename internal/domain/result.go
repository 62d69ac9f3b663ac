package domain

import "time"

// ExecutionResult is the value the Result Assembler produces at the end of
// a successful or failed execution. It is the last thing the engine touches
// before handing control back to the caller. It is not persisted itself;
// eventbus.DatabaseSubscriber writes execution rows from lifecycle events.
type ExecutionResult struct {
	ExecutionID string
	Status      ExecutionStatus

	FinalMessage string
	Messages     []Message

	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	ToolCallCount int
	NodesExecuted int

	StartedAt  time.Time
	FinishedAt time.Time

	Error      string
	ErrorStage ErrorStage

	Metadata map[string]any
}

// Duration returns the wall-clock span of the execution.
func (r ExecutionResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the execution reached the completed status.
func (r ExecutionResult) Succeeded() bool {
	return r.Status == ExecutionStatusCompleted
}
