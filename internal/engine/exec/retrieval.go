package exec

import (
	"context"

	"github.com/flowcore/chatflow/internal/domain"
	domainerrors "github.com/flowcore/chatflow/internal/domain/errors"
	"github.com/flowcore/chatflow/internal/retriever"
)

// executeRetrieval invokes the Retriever Adapter (C5) and joins the top-k
// documents into retrieval_context (spec.md §4.6 "retrieval").
func executeRetrieval(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error) {
	entered := deps.now()
	query := configString(node.Config, "query", ec.LastUserMessage())

	clone := ec.Clone()

	if deps.Retriever == nil || deps.Retriever.IsNoop() {
		clone.RetrievalContext = ""
		clone.RecordHistory(node.ID, entered, deps.now(), "noop")
		return Result{Context: clone}, nil
	}

	limit := configInt(node.Config, "limit", deps.Capabilities.MaxDocuments)
	if deps.Capabilities.MaxDocuments > 0 && (limit <= 0 || limit > deps.Capabilities.MaxDocuments) {
		limit = deps.Capabilities.MaxDocuments
	}

	docs, err := deps.Retriever.Retrieve(ctx, query)
	if err != nil {
		requireResults := configBool(node.Config, "require_results", false)
		if requireResults {
			return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, err)
		}
		clone.RetrievalContext = ""
		clone.Errors = append(clone.Errors, err.Error())
		clone.RecordHistory(node.ID, entered, deps.now(), "degraded")
		return Result{Context: clone}, nil
	}

	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	clone.RetrievalContext = retriever.JoinPageContent(docs)

	exited := deps.now()
	clone.RecordHistory(node.ID, entered, exited, "ok")
	deps.publish(ctx, domain.EventRetrieverLoaded, clone, exited, map[string]any{
		"node_id": node.ID, "documents": len(docs),
	})
	deps.publish(ctx, domain.EventNodeExecuted, clone, exited, map[string]any{
		"node_id": node.ID, "kind": string(node.Kind), "outcome": "ok",
	})
	return Result{Context: clone}, nil
}
