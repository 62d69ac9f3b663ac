// Package exec implements one executor per domain.NodeKind (C6), dispatched
// via a tagged-union switch over NodeKind rather than a registered-objects
// map (SPEC_FULL.md §9), grounded on the teacher's
// internal/application/executor/node_executors.go switch-dispatch
// structure, retargeted at the spec's node kinds.
package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowcore/chatflow/internal/capability"
	"github.com/flowcore/chatflow/internal/domain"
	domainerrors "github.com/flowcore/chatflow/internal/domain/errors"
	"github.com/flowcore/chatflow/internal/engine/exec/exprcache"
	"github.com/flowcore/chatflow/internal/provider"
	"github.com/flowcore/chatflow/internal/retriever"
)

// EventPublisher is the narrow slice of the event bus (C8) node executors
// need: one fire-and-forget publish call per lifecycle event. Defined here
// rather than depending on internal/eventbus directly, so this package
// doesn't care which concrete bus implementation the engine wires in.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.WorkflowEvent)
}

// ToolHandler invokes one registered tool by name.
type ToolHandler interface {
	// Invoke calls the tool with the given arguments and returns its
	// textual result (or an error on failure).
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
	// BypassWhenUnavailable reports whether a failing call to name should
	// be swallowed into a synthetic error-result message instead of
	// raising (spec.md §4.6 "tool / tools").
	BypassWhenUnavailable(name string) bool
	// Binding returns the provider.ToolBinding surfaced to the model for
	// name, if registered.
	Binding(name string) (provider.ToolBinding, bool)
}

// Deps bundles every external collaborator a node executor may need. A
// zero-value field means "not configured" — executors for kinds that don't
// need a given collaborator never touch it. A missing tool registry or an
// unregistered model provider is reported as a PreparationError, not a
// panic; a nil Retriever makes the retrieval node a no-op.
type Deps struct {
	Models       map[string]provider.ChatModel // keyed by provider name, e.g. "openai", "anthropic"
	Tools        ToolHandler
	Retriever    *retriever.Retriever
	Events       EventPublisher
	Capabilities capability.CapabilitySet
	Expr         *exprcache.Cache
	Logger       zerolog.Logger
	Now          func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d Deps) publish(ctx context.Context, typ domain.EventType, ec *domain.ExecutionContext, at time.Time, data map[string]any) {
	if d.Events == nil {
		return
	}
	d.Events.Publish(ctx, domain.NewWorkflowEvent(typ, ec.ExecutionID, ec.UserID, ec.ConversationID, at, data))
}

func (d Deps) expr() *exprcache.Cache {
	if d.Expr != nil {
		return d.Expr
	}
	return exprcache.New()
}

func (d Deps) model(name string) (provider.ChatModel, error) {
	if name == "" {
		name = "openai"
	}
	m, ok := d.Models[name]
	if !ok {
		return nil, domainerrors.NewPreparationError("model_provider", fmt.Errorf("no provider registered for %q", name))
	}
	return m, nil
}

// Result is what a node executor returns: the mutated (cloned) context plus
// routing instructions for the engine.
type Result struct {
	Context *domain.ExecutionContext
	// NextEdgeLabel, when non-empty, is the label of the outgoing edge
	// the engine should follow (used by conditional/loop). Empty means
	// "the single default outgoing edge", or, for start, the sole edge.
	NextEdgeLabel string
	// Terminal is true for the "end" node: the engine halts after this
	// result is processed.
	Terminal bool
}

// Executor is the common contract every per-kind node executor satisfies.
type Executor interface {
	Execute(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, node domain.NodeSpec, ec *domain.ExecutionContext, deps Deps) (Result, error) {
	return f(ctx, node, ec, deps)
}

// Dispatch returns the Executor for kind, or an error if kind is not one of
// the closed set of node kinds this package implements.
func Dispatch(kind domain.NodeKind) (Executor, error) {
	switch kind {
	case domain.NodeKindStart:
		return ExecutorFunc(executeStart), nil
	case domain.NodeKindEnd:
		return ExecutorFunc(executeEnd), nil
	case domain.NodeKindModel, domain.NodeKindLLM:
		return ExecutorFunc(executeModel), nil
	case domain.NodeKindTool, domain.NodeKindTools:
		return ExecutorFunc(executeTool), nil
	case domain.NodeKindRetrieval:
		return ExecutorFunc(executeRetrieval), nil
	case domain.NodeKindMemory:
		return ExecutorFunc(executeMemory), nil
	case domain.NodeKindConditional:
		return ExecutorFunc(executeConditional), nil
	case domain.NodeKindLoop:
		return ExecutorFunc(executeLoop), nil
	case domain.NodeKindVariable:
		return ExecutorFunc(executeVariable), nil
	case domain.NodeKindDelay:
		return ExecutorFunc(executeDelay), nil
	case domain.NodeKindErrorHandler:
		return ExecutorFunc(executeErrorHandler), nil
	default:
		return nil, fmt.Errorf("exec: no executor registered for node kind %q", kind)
	}
}

func configString(cfg map[string]any, key, fallback string) string {
	if v, ok := cfg[key]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	return fallback
}

func configInt(cfg map[string]any, key string, fallback int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func configFloat(cfg map[string]any, key string, fallback float64) float64 {
	switch v := cfg[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return fallback
	}
}

func configBool(cfg map[string]any, key string, fallback bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return fallback
}
