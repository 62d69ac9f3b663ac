// Package errors defines the execution error taxonomy a workflow run can
// surface, per SPEC_FULL.md §7. Each stage of Plan -> Execute -> Finalize
// fails into exactly one of these types, so callers can type-switch on the
// returned error to decide whether to retry, surface validation findings, or
// treat the run as a lost cause.
package errors

import "fmt"

// ValidationError is returned when the four-layer Validator (C4) rejects a
// compiled graph. It is always surfaced before any node has executed, and
// carries every layer finding, not just the first.
type ValidationError struct {
	Layer    string
	Findings []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed at layer %s: %d finding(s): %v", e.Layer, len(e.Findings), e.Findings)
}

// NewValidationError builds a ValidationError for the named layer.
func NewValidationError(layer string, findings []string) *ValidationError {
	return &ValidationError{Layer: layer, Findings: findings}
}

// PreparationError is returned when a model, tool, or retriever collaborator
// fails to initialize before the graph is entered. The execution never ran
// a single node.
type PreparationError struct {
	Component string
	Cause     error
}

func (e *PreparationError) Error() string {
	return fmt.Sprintf("preparation failed for %s: %v", e.Component, e.Cause)
}

func (e *PreparationError) Unwrap() error { return e.Cause }

// NewPreparationError builds a PreparationError for the named collaborator.
func NewPreparationError(component string, cause error) *PreparationError {
	return &PreparationError{Component: component, Cause: cause}
}

// RuntimeError is returned when a node raises during execution. It may be
// caught by an enclosing error_handler region; NodeID and Attempt identify
// the failing node and retry count for the handler's decision.
type RuntimeError struct {
	NodeID  string
	Kind    string
	Attempt int
	Cause   error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("node %s (%s) failed on attempt %d: %v", e.NodeID, e.Kind, e.Attempt, e.Cause)
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// NewRuntimeError builds a RuntimeError for the given node and attempt.
func NewRuntimeError(nodeID, kind string, attempt int, cause error) *RuntimeError {
	return &RuntimeError{NodeID: nodeID, Kind: kind, Attempt: attempt, Cause: cause}
}

// ResultProcessingError is returned when result assembly or persistence
// fails after the graph has finished running. The raw ExecutionContext
// should still be salvageable by the caller.
type ResultProcessingError struct {
	Stage string
	Cause error
}

func (e *ResultProcessingError) Error() string {
	return fmt.Sprintf("result processing failed at %s: %v", e.Stage, e.Cause)
}

func (e *ResultProcessingError) Unwrap() error { return e.Cause }

// NewResultProcessingError builds a ResultProcessingError for the given stage.
func NewResultProcessingError(stage string, cause error) *ResultProcessingError {
	return &ResultProcessingError{Stage: stage, Cause: cause}
}

// ResourceLimitExceeded is returned when a node attempts to exceed a declared
// limit derived from the active CapabilitySet (max_tool_calls, max_documents,
// memory_window, max_nodes, max_iterations, ...).
type ResourceLimitExceeded struct {
	Limit    string
	Declared int
	Attempted int
}

func (e *ResourceLimitExceeded) Error() string {
	return fmt.Sprintf("resource limit %s exceeded: declared %d, attempted %d", e.Limit, e.Declared, e.Attempted)
}

// NewResourceLimitExceeded builds a ResourceLimitExceeded error.
func NewResourceLimitExceeded(limit string, declared, attempted int) *ResourceLimitExceeded {
	return &ResourceLimitExceeded{Limit: limit, Declared: declared, Attempted: attempted}
}

// Cancelled is returned when the client or a deadline signals cancellation
// of a running execution via its context.Context.
type Cancelled struct {
	ExecutionID string
	Cause       error
}

func (e *Cancelled) Error() string {
	return fmt.Sprintf("execution %s cancelled: %v", e.ExecutionID, e.Cause)
}

func (e *Cancelled) Unwrap() error { return e.Cause }

// NewCancelled builds a Cancelled error wrapping the context's error.
func NewCancelled(executionID string, cause error) *Cancelled {
	return &Cancelled{ExecutionID: executionID, Cause: cause}
}

// Timeout is returned when an execution exceeds its configured wall-clock
// budget. It is distinct from Cancelled so callers can tell a deadline from
// an explicit client abort.
type Timeout struct {
	ExecutionID string
	Budget      string
}

func (e *Timeout) Error() string {
	return fmt.Sprintf("execution %s exceeded its %s budget", e.ExecutionID, e.Budget)
}

// NewTimeout builds a Timeout error.
func NewTimeout(executionID, budget string) *Timeout {
	return &Timeout{ExecutionID: executionID, Budget: budget}
}

// RetrieverError is returned by the Retriever Adapter when embedding or
// vector search fails. It is non-fatal at the retrieval node by default: the
// node catches it, empties retrieval_context, and attaches the error to the
// execution's non-fatal error log. It is only fatal if the node's config
// sets require_results.
type RetrieverError struct {
	Stage string // "embed" or "search"
	Cause error
}

func (e *RetrieverError) Error() string {
	return fmt.Sprintf("retriever %s failed: %v", e.Stage, e.Cause)
}

func (e *RetrieverError) Unwrap() error { return e.Cause }

// NewRetrieverError builds a RetrieverError for the given stage.
func NewRetrieverError(stage string, cause error) *RetrieverError {
	return &RetrieverError{Stage: stage, Cause: cause}
}

// IsRetryable reports whether err is a kind the engine's retry policy should
// re-attempt: runtime failures and retriever failures are candidates;
// validation/preparation/resource-limit/cancellation/timeout errors are not.
func IsRetryable(err error) bool {
	switch err.(type) {
	case *RuntimeError, *RetrieverError:
		return true
	default:
		return false
	}
}
