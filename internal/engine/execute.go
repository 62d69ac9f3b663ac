package engine

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/flowcore/chatflow/internal/assembler"
	"github.com/flowcore/chatflow/internal/domain"
	domainerrors "github.com/flowcore/chatflow/internal/domain/errors"
	"github.com/flowcore/chatflow/internal/engine/exec"
	"github.com/flowcore/chatflow/internal/utils"
)

// RetryPolicy configures per-node retry backoff, ported from the teacher's
// internal/application/executor/retry.go RetryPolicy/calculateDelay.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryPolicy mirrors the teacher's DefaultRetryPolicy: 3 attempts,
// 1s initial delay, 30s cap, 2x multiplier, jitter on.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialDelay: time.Second, MaxDelay: 30 * time.Second, Multiplier: 2.0, Jitter: true}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.InitialDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if cap := float64(p.MaxDelay); d > cap {
		d = cap
	}
	if p.Jitter {
		jitterAmount := d * 0.1
		d += (2*rand.Float64() - 1) * jitterAmount
		if d < 0 {
			d = 0
		}
	}
	return time.Duration(d)
}

// executeWorkflow is Phase 2: walk graph from its start node, dispatching
// each node to exec.Dispatch and following the selected outgoing edge,
// until an "end" node is reached, the context is cancelled, the execution
// timeout elapses, or the walk's step backstop trips (SPEC_FULL.md §4.7
// step 5-6), grounded on the teacher's WorkflowEngine.executeWorkflow /
// executeNode.
func (e *Engine) executeWorkflow(ctx context.Context, graph *domain.WorkflowGraph, ec *domain.ExecutionContext, deps exec.Deps) (*domain.ExecutionContext, error) {
	start, ok := graph.StartNode()
	if !ok {
		return ec, domainerrors.NewPreparationError("graph", errNoStartNode)
	}

	currentID := start.ID
	policy := DefaultRetryPolicy()

	for steps := 0; steps < maxWalkSteps; steps++ {
		select {
		case <-ctx.Done():
			return ec, domainerrors.NewCancelled(ec.ExecutionID, ctx.Err())
		default:
		}

		node, ok := graph.Node(currentID)
		if !ok {
			return ec, domainerrors.NewRuntimeError(currentID, "", 1, errDanglingEdge)
		}

		result, err := e.executeNodeWithRetry(ctx, node, ec, deps, policy)
		if err != nil {
			if cerr, ok := err.(*domainerrors.Cancelled); ok {
				return ec, cerr
			}
			next, nextID, handled := rewindToErrorHandler(graph, ec, err)
			if handled {
				ec = next
				currentID = nextID
				continue
			}
			ec = recordFatalError(ec, node, err)
			if endID, ok := firstReachableEnd(graph, currentID); ok {
				currentID = endID
				continue
			}
			return ec, err
		}

		ec = result.Context
		if result.Terminal || node.Kind == domain.NodeKindEnd {
			return ec, nil
		}

		nextID, err := selectNextEdge(graph, node, ec, result)
		if err != nil {
			return ec, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, err)
		}
		currentID = nextID
	}
	return ec, domainerrors.NewRuntimeError(currentID, "", 1, errWalkBudgetExceeded)
}

// executeNodeWithRetry runs one node under its own timeout, retrying
// RuntimeError/RetrieverError failures per policy (teacher's retryNode).
// Non-retryable errors (PreparationError, Cancelled, ResourceLimitExceeded,
// ...) are returned immediately on the first attempt.
func (e *Engine) executeNodeWithRetry(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps exec.Deps, policy RetryPolicy) (exec.Result, error) {
	executor, err := exec.Dispatch(node.Kind)
	if err != nil {
		return exec.Result{}, domainerrors.NewPreparationError("dispatch", err)
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		nodeCtx, cancel := context.WithTimeout(ctx, e.nodeTimeout())
		result, err := executor.Execute(nodeCtx, node, ec, deps)
		cancel()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if nodeCtx.Err() != nil && ctx.Err() == nil {
			// the per-node deadline fired, not the parent: surface as a
			// runtime error so the retry/error_handler path can see it.
			lastErr = domainerrors.NewRuntimeError(node.ID, string(node.Kind), attempt, nodeCtx.Err())
		}
		if ctx.Err() != nil {
			return exec.Result{}, domainerrors.NewCancelled(ec.ExecutionID, ctx.Err())
		}
		if !domainerrors.IsRetryable(lastErr) || attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return exec.Result{}, domainerrors.NewCancelled(ec.ExecutionID, ctx.Err())
		case <-time.After(policy.delay(attempt)):
		}
	}
	return exec.Result{}, lastErr
}

func (e *Engine) nodeTimeout() time.Duration {
	return utils.DefaultValue(e.NodeTimeout, DefaultNodeTimeout)
}

// rewindToErrorHandler implements spec.md §4.7 step 6's catch branch and
// §9's "auxiliary map {handler_node_id -> {reset_edge, retries_remaining}}":
// find the nearest (most recently entered) active error_handler region —
// walking ec.ExecutionHistory backward, since regions nest by graph
// position, not call stack — and either rewind to its reset edge (retries
// remaining) or take its configured fallback edge (retries exhausted).
// ec.ErrorState is populated by executeErrorHandler
// (internal/engine/exec/error_handler.go) when a region is entered; this
// function only consults and mutates it, never creates an entry.
func rewindToErrorHandler(graph *domain.WorkflowGraph, ec *domain.ExecutionContext, cause error) (*domain.ExecutionContext, string, bool) {
	for i := len(ec.ExecutionHistory) - 1; i >= 0; i-- {
		handlerID := ec.ExecutionHistory[i].NodeID
		if _, ok := ec.ErrorState[handlerID]; !ok {
			continue
		}

		clone := ec.Clone()
		cloneState := clone.ErrorState[handlerID]
		cloneState.LastError = cause.Error()

		if cloneState.RetriesRemaining > 0 {
			cloneState.RetriesRemaining--
			if target, err := selectNextEdge(graph, domain.NodeSpec{ID: handlerID}, clone, exec.Result{}); err == nil {
				return clone, target, true
			}
			return clone, "", false
		}

		if cloneState.Fallback != "" {
			if target, err := selectNextEdge(graph, domain.NodeSpec{ID: handlerID}, clone, exec.Result{NextEdgeLabel: cloneState.Fallback}); err == nil {
				return clone, target, true
			}
		}
		return ec, "", false
	}
	return ec, "", false
}

// recordFatalError appends cause to ec.Errors so the Result Assembler marks
// the execution failed (C9 reads ec.Errors, not a separate status field).
func recordFatalError(ec *domain.ExecutionContext, node domain.NodeSpec, cause error) *domain.ExecutionContext {
	clone := ec.Clone()
	clone.Errors = append(clone.Errors, cause.Error())
	clone.RecordHistory(node.ID, time.Time{}, time.Time{}, "error")
	return clone
}

// firstReachableEnd finds the nearest "end" node reachable from fromID,
// breadth-first, for the "jump to the first reachable end" half of spec.md
// §4.7 step 6.
func firstReachableEnd(graph *domain.WorkflowGraph, fromID string) (string, bool) {
	visited := map[string]bool{fromID: true}
	queue := []string{fromID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if n, ok := graph.Node(id); ok && n.Kind == domain.NodeKindEnd {
			return id, true
		}
		for _, edge := range graph.OutgoingEdges(id) {
			if !visited[edge.Target] {
				visited[edge.Target] = true
				queue = append(queue, edge.Target)
			}
		}
	}
	return "", false
}

// selectNextEdge implements the engine's unified edge-selection algorithm,
// reconciling two distinct routing styles the compiler produces
// (SPEC_FULL.md §4.7, discovered from internal/compiler/compiler.go's
// compileUniversalChat):
//
//  1. Label match: if the node executor returned a NextEdgeLabel (loop's
//     "loop"/"exit", conditional's "true"/"false"), prefer the outgoing
//     edge whose own Label equals it.
//  2. Condition evaluation: otherwise, if more than one outgoing edge
//     carries non-empty Condition text, evaluate each in declaration order
//     via exec.EvalCondition and take the first that is true — this is how
//     the universal-chat topology's conditional nodes actually branch.
//  3. Default: a single outgoing edge with no label/condition requirement.
//
// Returns an error if no edge can be selected, which the caller surfaces as
// a RuntimeError (a dead end the Validator's Layer 1 reachability check
// should have already ruled out, but the engine does not trust that blindly).
func selectNextEdge(graph *domain.WorkflowGraph, node domain.NodeSpec, ec *domain.ExecutionContext, result exec.Result) (string, error) {
	edges := graph.OutgoingEdges(node.ID)
	if len(edges) == 0 {
		return "", errDanglingEdge
	}
	if len(edges) == 1 && edges[0].Condition == "" && result.NextEdgeLabel == "" {
		return edges[0].Target, nil
	}

	if result.NextEdgeLabel != "" {
		for _, edge := range edges {
			if edge.Label == result.NextEdgeLabel {
				return edge.Target, nil
			}
		}
	}

	var fallback string
	haveFallback := false
	for _, edge := range edges {
		if edge.Condition == "" {
			if !haveFallback {
				fallback = edge.Target
				haveFallback = true
			}
			continue
		}
		ok, err := exec.EvalCondition(edge.Condition, ec)
		if err != nil {
			return "", err
		}
		if ok {
			return edge.Target, nil
		}
	}
	if haveFallback {
		return fallback, nil
	}
	return "", errNoEdgeSelected
}

// finalizeExecution is Phase 3: assemble the final ExecutionResult from the
// terminal ExecutionContext and publish EXECUTION_COMPLETED or
// EXECUTION_FAILED (spec.md §4.7 step 7 / §4.9).
func (e *Engine) finalizeExecution(ctx context.Context, executionID string, req Request, ec *domain.ExecutionContext, runErr error, startedAt, finishedAt time.Time) (domain.ExecutionResult, error) {
	if runErr != nil && ec == nil {
		e.publish(ctx, domain.EventExecutionFailed, executionID, req.UserID, req.ConversationID, map[string]any{"error": runErr.Error()})
		return failedResult(executionID, startedAt, finishedAt, runErr, domain.ErrorStageRuntime), runErr
	}

	result := assembler.Assemble(ec, startedAt, finishedAt)

	if runErr != nil {
		if result.Error == "" {
			result.Error = runErr.Error()
		}
		result.ErrorStage = domain.ErrorStageRuntime
		result.Status = domain.ExecutionStatusFailed
		if _, cancelled := runErr.(*domainerrors.Cancelled); cancelled {
			result.Status = domain.ExecutionStatusCancelled
		}
		e.publish(ctx, domain.EventExecutionFailed, executionID, req.UserID, req.ConversationID, map[string]any{"error": result.Error})
		return result, runErr
	}

	if result.Succeeded() {
		e.publish(ctx, domain.EventExecutionCompleted, executionID, req.UserID, req.ConversationID, map[string]any{
			"total_tokens":   result.TotalTokens,
			"tool_calls":     result.ToolCallCount,
			"nodes_executed": result.NodesExecuted,
		})
		return result, nil
	}

	// ec.Errors was non-empty even though the walk itself didn't error (a
	// node recorded a non-fatal error and routed to "end" on its own).
	e.publish(ctx, domain.EventExecutionFailed, executionID, req.UserID, req.ConversationID, map[string]any{"error": result.Error})
	return result, domainerrors.NewResultProcessingError("assembly", errExecutionEndedInError)
}
