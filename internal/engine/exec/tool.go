package exec

import (
	"context"
	"sync"
	"time"

	"github.com/flowcore/chatflow/internal/domain"
	domainerrors "github.com/flowcore/chatflow/internal/domain/errors"
)

var errNoToolRegistry = domain.NewDomainError(domain.ErrCodeInvalidState, "no tool registry configured", nil)

// toolOutcome is one tool call's result: either a message to append, or a
// fatal error that aborts the whole node (spec.md §4.6 "otherwise raises").
type toolOutcome struct {
	message domain.Message
	err     error
}

// executeTool runs the tool calls attached to the most recent assistant
// message, one call per requested tool, honoring a per-call timeout and
// optionally fanning calls out in parallel (spec.md §4.6 "tool / tools"),
// grounded on the teacher's internal/application/executor/engine.go
// executeWave bounded-parallelism shape.
func executeTool(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error) {
	if deps.Tools == nil {
		return Result{}, domainerrors.NewPreparationError("tool_registry", errNoToolRegistry)
	}

	entered := deps.now()
	last, ok := ec.LastAssistantMessage()
	if !ok || !last.HasToolCalls() {
		clone := ec.Clone()
		clone.RecordHistory(node.ID, entered, deps.now(), "ok")
		return Result{Context: clone}, nil
	}

	calls := last.ToolCalls
	maxToolCalls := deps.Capabilities.MaxToolCalls
	if ec.ToolCallCount+len(calls) > maxToolCalls {
		return Result{}, domainerrors.NewResourceLimitExceeded("max_tool_calls", maxToolCalls, ec.ToolCallCount+len(calls))
	}

	timeout := time.Duration(configInt(node.Config, "tool_timeout_ms", 30000)) * time.Millisecond
	parallel := configBool(node.Config, "parallel_calls", false)

	var outcomes []toolOutcome
	if parallel {
		outcomes = runToolsParallel(ctx, ec, calls, timeout, deps, node.ID)
	} else {
		outcomes = make([]toolOutcome, len(calls))
		for i, call := range calls {
			outcomes[i] = runOneTool(ctx, ec, call, timeout, deps, node.ID)
		}
	}

	results := make([]domain.Message, 0, len(outcomes))
	for _, outcome := range outcomes {
		if outcome.err != nil {
			return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, outcome.err)
		}
		results = append(results, outcome.message)
	}

	clone := ec.Clone()
	clone.Messages = append(clone.Messages, results...)
	clone.ToolCallCount += len(calls)
	exited := deps.now()
	clone.RecordHistory(node.ID, entered, exited, "ok")
	deps.publish(ctx, domain.EventNodeExecuted, clone, exited, map[string]any{
		"node_id": node.ID, "kind": string(node.Kind), "outcome": "ok", "tool_call_count": len(calls),
	})
	return Result{Context: clone}, nil
}

func runToolsParallel(ctx context.Context, ec *domain.ExecutionContext, calls []domain.ToolCall, timeout time.Duration, deps Deps, nodeID string) []toolOutcome {
	outcomes := make([]toolOutcome, len(calls))
	sem := make(chan struct{}, maxParallelism(deps))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, call domain.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[i] = runOneTool(ctx, ec, call, timeout, deps, nodeID)
		}(i, call)
	}
	wg.Wait()
	return outcomes
}

// maxParallelism bounds concurrent tool calls by the capability-declared
// max_tool_calls, falling back to a small fixed width when unset.
func maxParallelism(deps Deps) int {
	if deps.Capabilities.MaxToolCalls > 0 {
		return deps.Capabilities.MaxToolCalls
	}
	return 4
}

func runOneTool(ctx context.Context, ec *domain.ExecutionContext, call domain.ToolCall, timeout time.Duration, deps Deps, nodeID string) toolOutcome {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := deps.Tools.Invoke(callCtx, call.Name, call.Arguments)
	at := deps.now()
	if err != nil {
		deps.publish(ctx, domain.EventToolCalled, ec, at, map[string]any{
			"node_id": nodeID, "tool": call.Name, "outcome": "error",
		})
		if deps.Tools.BypassWhenUnavailable(call.Name) {
			return toolOutcome{message: domain.Message{
				Role: domain.RoleTool, ToolCallID: call.ID, Content: "tool error: " + err.Error(),
			}}
		}
		return toolOutcome{err: err}
	}
	deps.publish(ctx, domain.EventToolCalled, ec, at, map[string]any{
		"node_id": nodeID, "tool": call.Name, "outcome": "ok",
	})
	return toolOutcome{message: domain.Message{Role: domain.RoleTool, ToolCallID: call.ID, Content: result}}
}
