package exec

import (
	"context"

	"github.com/flowcore/chatflow/internal/domain"
)

// executeErrorHandler marks the start of a retry-guarded region: it resets
// the node's ErrorHandlerState so the Execution Engine (C7) knows retries
// are available again for this pass through the graph. The actual "catch a
// downstream failure and rewind here" behavior described in spec.md §4.6
// ("error_handler") is the engine's job, not this executor's — a single
// node executor only ever sees its own node, while catching belongs to the
// graph walk that spans the whole guarded region.
func executeErrorHandler(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error) {
	entered := deps.now()
	clone := ec.Clone()

	clone.ErrorState[node.ID] = &domain.ErrorHandlerState{
		RetriesRemaining: configInt(node.Config, "retry_count", 0),
		Fallback:         configString(node.Config, "fallback_action", ""),
	}

	exited := deps.now()
	clone.RecordHistory(node.ID, entered, exited, "ok")
	deps.publish(ctx, domain.EventNodeExecuted, clone, exited, map[string]any{
		"node_id": node.ID, "kind": string(node.Kind), "outcome": "ok",
	})
	return Result{Context: clone}, nil
}
