package domain

import "time"

// WorkflowEvent is a single lifecycle notification published to the Event Bus
// (see SPEC_FULL.md §4.8). Handlers receive it by value; Data is
// handler-specific payload (token counts, tool names, node ids, ...).
type WorkflowEvent struct {
	Type           EventType
	ExecutionID    string
	UserID         string
	ConversationID string
	Timestamp      time.Time
	Data           map[string]any
}

// NewWorkflowEvent builds a WorkflowEvent stamped with the given timestamp.
// The engine supplies Timestamp explicitly (via its clock collaborator)
// rather than calling time.Now() here, keeping event construction
// deterministic under test.
func NewWorkflowEvent(typ EventType, executionID, userID, conversationID string, at time.Time, data map[string]any) WorkflowEvent {
	if data == nil {
		data = make(map[string]any)
	}
	return WorkflowEvent{
		Type:           typ,
		ExecutionID:    executionID,
		UserID:         userID,
		ConversationID: conversationID,
		Timestamp:      at,
		Data:           data,
	}
}
