package exec

import (
	"context"

	"github.com/flowcore/chatflow/internal/domain"
	domainerrors "github.com/flowcore/chatflow/internal/domain/errors"
	"github.com/flowcore/chatflow/internal/engine/exec/condition"
)

// ecEvaluator adapts a domain.ExecutionContext to condition.Evaluator.
type ecEvaluator struct {
	ec *domain.ExecutionContext
}

func (e ecEvaluator) Variable(name string) (any, bool) {
	return e.ec.Variables.Get(name)
}

func (e ecEvaluator) ToolCallCount() int {
	return e.ec.ToolCallCount
}

func (e ecEvaluator) HasToolCalls() bool {
	last, ok := e.ec.LastAssistantMessage()
	return ok && last.HasToolCalls()
}

// EvalCondition evaluates src (the same grammar executeConditional uses)
// against ec, for callers outside this package that need the same
// evaluation without going through a conditional node — namely the engine's
// per-edge condition routing for the compiler's conditional-node topology,
// where branching is driven by each outgoing EdgeSpec's own Condition text
// rather than the node's single true/false NextEdgeLabel.
func EvalCondition(src string, ec *domain.ExecutionContext) (bool, error) {
	return condition.Eval(src, ecEvaluator{ec: ec})
}

// executeConditional evaluates config.condition over the restricted
// condition grammar, records the boolean outcome, and routes to the "true"
// or "false" outgoing edge label (spec.md §4.6 "conditional"). The
// condition string was already eagerly parsed by the Validator (Layer 1);
// re-parsing here trades a little CPU for not having to thread the
// compiled AST through the graph representation.
func executeConditional(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error) {
	entered := deps.now()
	src := configString(node.Config, "condition", "")
	if src == "" {
		return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, errEmptyCondition)
	}

	outcome, err := condition.Eval(src, ecEvaluator{ec: ec})
	if err != nil {
		return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, err)
	}

	clone := ec.Clone()
	clone.ConditionalResults[node.ID] = outcome

	exited := deps.now()
	clone.RecordHistory(node.ID, entered, exited, "ok")
	deps.publish(ctx, domain.EventNodeExecuted, clone, exited, map[string]any{
		"node_id": node.ID, "kind": string(node.Kind), "outcome": "ok", "result": outcome,
	})

	label := "false"
	if outcome {
		label = "true"
	}
	return Result{Context: clone, NextEdgeLabel: label}, nil
}

var errEmptyCondition = domain.NewDomainError(domain.ErrCodeInvalidInput, "conditional node has no condition configured", nil)
