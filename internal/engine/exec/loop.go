package exec

import (
	"context"

	"github.com/flowcore/chatflow/internal/domain"
	domainerrors "github.com/flowcore/chatflow/internal/domain/errors"
)

// hardLoopIterationCap is the Layer-4 hard cap on loop iterations
// (SPEC_FULL.md §4.4), independent of whatever max_iterations a workflow
// author configures, so a misconfigured loop can't spin forever.
const hardLoopIterationCap = 1000

// executeLoop tracks iteration count across re-entries and halts once
// max_iterations is reached or config.condition evaluates false (spec.md
// §4.6 "loop"). Unlike the conditional node, loop conditions are evaluated
// with the general-purpose expr-lang/expr engine (SPEC_FULL.md §9), since
// loop/variable expressions are allowed to reference arbitrary variables
// and arithmetic that the restricted conditional grammar doesn't cover.
func executeLoop(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error) {
	entered := deps.now()
	clone := ec.Clone()

	state, exists := clone.LoopState[node.ID]
	if !exists {
		state = &domain.LoopState{Iteration: 0, StartedAt: entered}
		clone.LoopState[node.ID] = state
	} else {
		state.Iteration++
	}

	maxIterations := configInt(node.Config, "max_iterations", 10)
	if maxIterations <= 0 || maxIterations > hardLoopIterationCap {
		maxIterations = hardLoopIterationCap
	}

	exit := state.Iteration >= maxIterations
	if !exit {
		if src := configString(node.Config, "condition", ""); src != "" {
			env := loopEnv(clone, state)
			keepGoing, err := deps.expr().EvalBool(src, env)
			if err != nil {
				return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), state.Iteration, err)
			}
			exit = !keepGoing
		}
	}

	exited := deps.now()
	clone.RecordHistory(node.ID, entered, exited, "ok")
	deps.publish(ctx, domain.EventNodeExecuted, clone, exited, map[string]any{
		"node_id": node.ID, "kind": string(node.Kind), "outcome": "ok", "iteration": state.Iteration, "exit": exit,
	})

	label := "loop"
	if exit {
		label = "exit"
	}
	return Result{Context: clone, NextEdgeLabel: label}, nil
}

func loopEnv(ec *domain.ExecutionContext, state *domain.LoopState) map[string]any {
	env := ec.Variables.All()
	env["iteration"] = state.Iteration
	env["tool_call_count"] = ec.ToolCallCount
	return env
}
