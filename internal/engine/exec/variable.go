package exec

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flowcore/chatflow/internal/domain"
	domainerrors "github.com/flowcore/chatflow/internal/domain/errors"
)

// executeVariable performs one of set|set_many|get|append|increment|decrement
// over variables (spec.md §4.6 "variable"). For "set", a string value of the
// form "variable NAME" resolves to another variable's current value instead
// of being taken literally, mirroring the condition grammar's own
// "variable NAME" operand so authors only need to learn one convention.
// "set_many" seeds config.values as one top-level variable per key — the
// compiler's set_capabilities step uses it so the condition grammar's flat
// "variable <name>" operand can read each capability flag/limit directly,
// rather than nesting them under a single map variable it cannot address.
func executeVariable(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error) {
	entered := deps.now()
	op := configString(node.Config, "operation", "set")

	if op == "set_many" {
		return executeSetMany(ctx, node, ec, deps, entered)
	}

	name := configString(node.Config, "variable_name", "")
	if name == "" {
		return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, errMissingVariableName)
	}

	clone := ec.Clone()

	switch op {
	case "set":
		value := resolveValue(node.Config["value"], clone)
		if err := clone.Variables.Set(name, value); err != nil {
			return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, err)
		}

	case "get":
		// Reads through context.variables directly; nothing to mutate.

	case "append":
		value := resolveValue(node.Config["value"], clone)
		existing, _ := clone.Variables.Get(name)
		list, _ := existing.([]any)
		list = append(list, value)
		if err := clone.Variables.Set(name, list); err != nil {
			return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, err)
		}

	case "increment", "decrement":
		delta := configFloat(node.Config, "value", 1)
		if op == "decrement" {
			delta = -delta
		}
		current, _ := clone.Variables.Get(name)
		base, _ := toNumber(current)
		if err := clone.Variables.Set(name, base+delta); err != nil {
			return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, err)
		}

	default:
		return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, fmt.Errorf("variable: unknown operation %q", op))
	}

	exited := deps.now()
	clone.RecordHistory(node.ID, entered, exited, "ok")
	deps.publish(ctx, domain.EventNodeExecuted, clone, exited, map[string]any{
		"node_id": node.ID, "kind": string(node.Kind), "outcome": "ok", "operation": op, "variable_name": name,
	})
	return Result{Context: clone}, nil
}

// executeSetMany sets config.values[k] as variable k for every key, in a
// single node step.
func executeSetMany(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps, entered time.Time) (Result, error) {
	values, _ := node.Config["values"].(map[string]any)
	if len(values) == 0 {
		return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, errMissingValues)
	}

	clone := ec.Clone()
	names := make([]string, 0, len(values))
	for name, value := range values {
		if err := clone.Variables.Set(name, value); err != nil {
			return Result{}, domainerrors.NewRuntimeError(node.ID, string(node.Kind), 1, err)
		}
		names = append(names, name)
	}

	exited := deps.now()
	clone.RecordHistory(node.ID, entered, exited, "ok")
	deps.publish(ctx, domain.EventNodeExecuted, clone, exited, map[string]any{
		"node_id": node.ID, "kind": string(node.Kind), "outcome": "ok", "operation": "set_many", "variables": names,
	})
	return Result{Context: clone}, nil
}

var errMissingVariableName = domain.NewDomainError(domain.ErrCodeInvalidInput, "variable node has no variable_name configured", nil)
var errMissingValues = domain.NewDomainError(domain.ErrCodeInvalidInput, "variable node has no values configured for set_many", nil)

func resolveValue(raw any, ec *domain.ExecutionContext) any {
	if s, ok := raw.(string); ok {
		if rest, found := strings.CutPrefix(s, "variable "); found {
			if v, ok := ec.Variables.Get(strings.TrimSpace(rest)); ok {
				return v
			}
			return nil
		}
	}
	return raw
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
