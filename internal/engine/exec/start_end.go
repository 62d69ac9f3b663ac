package exec

import (
	"context"

	"github.com/flowcore/chatflow/internal/domain"
)

// executeStart is the identity executor: it selects the sole outgoing edge
// without touching the context (spec.md §4.6 "start").
func executeStart(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error) {
	entered := deps.now()
	clone := ec.Clone()
	clone.RecordHistory(node.ID, entered, deps.now(), "ok")
	deps.publish(ctx, domain.EventNodeExecuted, clone, deps.now(), map[string]any{
		"node_id": node.ID, "kind": string(node.Kind), "outcome": "ok",
	})
	return Result{Context: clone}, nil
}

// executeEnd marks the execution terminal; the engine halts once it sees
// Result.Terminal (spec.md §4.6 "end").
func executeEnd(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error) {
	entered := deps.now()
	clone := ec.Clone()
	clone.RecordHistory(node.ID, entered, deps.now(), "ok")
	deps.publish(ctx, domain.EventNodeExecuted, clone, deps.now(), map[string]any{
		"node_id": node.ID, "kind": string(node.Kind), "outcome": "ok",
	})
	return Result{Context: clone, Terminal: true}, nil
}
