package domain

import "time"

// LoopState tracks a loop node's iteration count across re-entries.
type LoopState struct {
	Iteration int
	StartedAt time.Time
}

// ErrorHandlerState tracks retry bookkeeping for an active error_handler
// region (spec.md §9's "auxiliary map {handler_node_id -> {reset_edge,
// retries_remaining}}"). RetriesRemaining counts down from the node's
// configured retry_count; Fallback is the outgoing edge label to take once
// retries are exhausted, if the node config set one.
type ErrorHandlerState struct {
	RetriesRemaining int
	Fallback         string
	LastError        string
}

// HistoryEntry is one node's entry in the execution's audit trail.
type HistoryEntry struct {
	NodeID    string
	EnteredAt time.Time
	ExitedAt  time.Time
	Outcome   string
}

// ExecutionContext is the mutable state threaded through node executors for
// the lifetime of a single execution. It is created by the Execution Engine
// at run start, mutated only by the currently-running node executor
// (single-writer discipline — see SPEC_FULL.md §5), and discarded once the
// Result Assembler has produced the final ExecutionResult.
type ExecutionContext struct {
	ExecutionID string
	UserID      string
	ConversationID string

	Messages          []Message
	RetrievalContext  string
	ConversationSummary string
	ToolCallCount     int

	Variables *VariableSet

	LoopState          map[string]*LoopState
	ErrorState         map[string]*ErrorHandlerState
	ConditionalResults map[string]bool
	ExecutionHistory   []HistoryEntry

	Metadata map[string]any
	Errors   []string
}

// NewExecutionContext creates a fresh ExecutionContext for one execution.
func NewExecutionContext(executionID, userID, conversationID string, initial []Message) *ExecutionContext {
	return &ExecutionContext{
		ExecutionID:        executionID,
		UserID:             userID,
		ConversationID:     conversationID,
		Messages:           append([]Message{}, initial...),
		Variables:          NewVariableSet(nil),
		LoopState:          make(map[string]*LoopState),
		ErrorState:         make(map[string]*ErrorHandlerState),
		ConditionalResults: make(map[string]bool),
		ExecutionHistory:   nil,
		Metadata:           make(map[string]any),
		Errors:             nil,
	}
}

// Clone returns a shallow-structural copy of the context with its own
// top-level slices/maps, so a node executor can mutate its copy and hand it
// back to the engine without another goroutine (there is none, within one
// execution — see SPEC_FULL.md §5) observing a half-mutated context.
func (c *ExecutionContext) Clone() *ExecutionContext {
	clone := &ExecutionContext{
		ExecutionID:         c.ExecutionID,
		UserID:              c.UserID,
		ConversationID:      c.ConversationID,
		Messages:            append([]Message{}, c.Messages...),
		RetrievalContext:    c.RetrievalContext,
		ConversationSummary: c.ConversationSummary,
		ToolCallCount:       c.ToolCallCount,
		Variables:           c.Variables.Clone(),
		LoopState:           make(map[string]*LoopState, len(c.LoopState)),
		ErrorState:          make(map[string]*ErrorHandlerState, len(c.ErrorState)),
		ConditionalResults:  make(map[string]bool, len(c.ConditionalResults)),
		ExecutionHistory:    append([]HistoryEntry{}, c.ExecutionHistory...),
		Metadata:            make(map[string]any, len(c.Metadata)),
		Errors:              append([]string{}, c.Errors...),
	}
	for k, v := range c.LoopState {
		cp := *v
		clone.LoopState[k] = &cp
	}
	for k, v := range c.ErrorState {
		cp := *v
		clone.ErrorState[k] = &cp
	}
	for k, v := range c.ConditionalResults {
		clone.ConditionalResults[k] = v
	}
	for k, v := range c.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// LastUserMessage returns the content of the most recent user-role message.
func (c *ExecutionContext) LastUserMessage() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleUser {
			return c.Messages[i].Content
		}
	}
	return ""
}

// LastAssistantMessage returns the most recent assistant-role message, if any.
func (c *ExecutionContext) LastAssistantMessage() (Message, bool) {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i].Role == RoleAssistant {
			return c.Messages[i], true
		}
	}
	return Message{}, false
}

// RecordHistory appends a completed node's entry to the execution history.
func (c *ExecutionContext) RecordHistory(nodeID string, entered, exited time.Time, outcome string) {
	c.ExecutionHistory = append(c.ExecutionHistory, HistoryEntry{
		NodeID:    nodeID,
		EnteredAt: entered,
		ExitedAt:  exited,
		Outcome:   outcome,
	})
}
