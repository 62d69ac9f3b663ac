package domain

import "time"

// ExecutionRecord is the durable, storage-layer view of one execution. It is
// distinct from ExecutionResult (the in-process value returned to a caller).
// internal/storage does not persist this type; execution rows are written to
// the "executions" table by eventbus.DatabaseSubscriber, keyed by the
// execution id the engine generates (a UUID).
type ExecutionRecord struct {
	ID             string // execution id
	TemplateID     string
	UserID         string
	ConversationID string
	Status         ExecutionStatus

	InputMessages  []Message
	OutputMessages []Message

	PromptTokens     int
	CompletionTokens int
	TotalTokens      int

	Error      string
	ErrorStage ErrorStage

	StartedAt  time.Time
	FinishedAt time.Time
	CreatedAt  time.Time
}

// ToResult derives the in-process ExecutionResult view of a stored record.
func (r ExecutionRecord) ToResult() ExecutionResult {
	var final string
	if n := len(r.OutputMessages); n > 0 {
		final = r.OutputMessages[n-1].Content
	}
	return ExecutionResult{
		ExecutionID:      r.ID,
		Status:           r.Status,
		FinalMessage:     final,
		Messages:         append(append([]Message{}, r.InputMessages...), r.OutputMessages...),
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
		TotalTokens:      r.TotalTokens,
		StartedAt:        r.StartedAt,
		FinishedAt:       r.FinishedAt,
		Error:            r.Error,
		ErrorStage:       r.ErrorStage,
	}
}
