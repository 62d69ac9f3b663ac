// Package engine implements the Execution Engine (C7): the three-phase
// Plan -> Execute -> Finalize orchestrator that resolves a workflow graph,
// validates it, walks it node by node, and hands the terminal
// ExecutionContext to the Result Assembler (SPEC_FULL.md §4.7), grounded on
// the teacher's WorkflowEngine (internal/application/executor/engine.go).
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flowcore/chatflow/internal/capability"
	"github.com/flowcore/chatflow/internal/compiler"
	"github.com/flowcore/chatflow/internal/domain"
	domainerrors "github.com/flowcore/chatflow/internal/domain/errors"
	"github.com/flowcore/chatflow/internal/engine/exec"
	"github.com/flowcore/chatflow/internal/engine/exec/exprcache"
	"github.com/flowcore/chatflow/internal/eventbus"
	"github.com/flowcore/chatflow/internal/provider"
	"github.com/flowcore/chatflow/internal/retriever"
	"github.com/flowcore/chatflow/internal/validator"
)

// Default timeouts, per spec.md §4.7 step 5.
const (
	DefaultExecutionTimeout = 120 * time.Second
	DefaultNodeTimeout      = 60 * time.Second

	maxWalkSteps = 10_000 // backstop against a validator gap letting an unreachable-end graph through
)

// TemplateStore resolves a stored template by id for request variant (a).
type TemplateStore interface {
	GetTemplate(ctx context.Context, id string) (domain.WorkflowTemplate, error)
}

// DefinitionStore resolves a stored, already-compiled graph by id for
// request variant (b). Per spec.md §4.7 step 4, template-mode execution
// (variant a) must never write a temporary WorkflowDefinition into this
// store — only variant (b) reads from it.
type DefinitionStore interface {
	GetDefinition(ctx context.Context, id string) (*domain.WorkflowGraph, capability.CapabilitySet, error)
}

// Request is the single Execute entry point's input, carrying exactly one
// of the three graph-resolution variants (spec.md §4.7).
type Request struct {
	UserID         string
	ConversationID string
	InputMessage   string

	// Variant (a): template + params
	TemplateID string
	Params     map[string]any

	// Variant (b): stored definition id
	DefinitionID string

	// Variant (c): inline graph
	Nodes        []domain.NodeSpec
	Edges        []domain.EdgeSpec
	Capabilities capability.CapabilitySet

	Caller validator.Caller
}

// Engine resolves, validates, and runs workflow graphs. One Engine is
// shared process-wide; Execute is safe to call concurrently for unrelated
// requests (spec.md §5 "the engine may execute unrelated requests in
// parallel") since all per-run state lives in the ExecutionContext the call
// allocates, never on the Engine itself.
type Engine struct {
	Templates   TemplateStore
	Definitions DefinitionStore

	Models    map[string]provider.ChatModel
	Tools     exec.ToolHandler
	Retriever *retriever.Retriever

	Bus    *eventbus.Bus
	Expr   *exprcache.Cache
	Logger zerolog.Logger
	Now    func() time.Time

	Limits           validator.ResourceLimits
	ExecutionTimeout time.Duration
	NodeTimeout      time.Duration
}

// New builds an Engine with spec-default timeouts and resource limits; a
// caller can override any zero-value field afterward.
func New() *Engine {
	return &Engine{
		Expr:             exprcache.New(),
		Logger:           zerolog.Nop(),
		Now:              time.Now,
		Limits:           validator.DefaultResourceLimits(),
		ExecutionTimeout: DefaultExecutionTimeout,
		NodeTimeout:      DefaultNodeTimeout,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) publish(ctx context.Context, typ domain.EventType, executionID, userID, conversationID string, data map[string]any) {
	if e.Bus == nil {
		return
	}
	e.Bus.Publish(ctx, domain.NewWorkflowEvent(typ, executionID, userID, conversationID, e.now(), data))
}

// Execute runs req to completion (or to a handled failure) and returns the
// assembled result. It never panics a Go error out for a failed/cancelled
// execution — those are reported via ExecutionResult.Status plus the
// returned error, matching spec.md §6's Execute error set.
func (e *Engine) Execute(ctx context.Context, req Request) (domain.ExecutionResult, error) {
	executionID := uuid.NewString()
	startedAt := e.now()

	graph, caps, err := e.planExecution(ctx, req)
	if err != nil {
		e.publish(ctx, domain.EventExecutionFailed, executionID, req.UserID, req.ConversationID, map[string]any{"error": err.Error(), "stage": "planning"})
		return failedResult(executionID, startedAt, e.now(), err, domain.ErrorStagePreparation), err
	}

	report := validator.Validate(graph, caps, req.Caller, e.Limits)
	if !report.Valid() {
		findings := make([]string, 0, len(report.Errors))
		for _, f := range report.Errors {
			findings = append(findings, fmt.Sprintf("[%s] %s: %s", f.Layer, f.NodeID, f.Message))
		}
		verr := domainerrors.NewValidationError("validator", findings)
		e.publish(ctx, domain.EventExecutionFailed, executionID, req.UserID, req.ConversationID, map[string]any{"error": verr.Error(), "stage": "validation"})
		return failedResult(executionID, startedAt, e.now(), verr, domain.ErrorStagePreparation), verr
	}

	ec := domain.NewExecutionContext(executionID, req.UserID, req.ConversationID, initialMessages(req.InputMessage))
	e.publish(ctx, domain.EventStarted, executionID, req.UserID, req.ConversationID, nil)
	e.publish(ctx, domain.EventExecutionStarted, executionID, req.UserID, req.ConversationID, nil)

	deps, err := e.prepareExecutors(ctx, executionID, req, caps)
	if err != nil {
		e.publish(ctx, domain.EventExecutionFailed, executionID, req.UserID, req.ConversationID, map[string]any{"error": err.Error(), "stage": "preparation"})
		return failedResult(executionID, startedAt, e.now(), err, domain.ErrorStagePreparation), err
	}

	runCtx, cancel := context.WithTimeout(ctx, e.ExecutionTimeout)
	defer cancel()

	ec, runErr := e.executeWorkflow(runCtx, graph, ec, deps)
	finishedAt := e.now()

	return e.finalizeExecution(ctx, executionID, req, ec, runErr, startedAt, finishedAt)
}

// planExecution resolves req into a graph + effective CapabilitySet
// (Phase 1 — spec.md §4.7 step 1's first half).
func (e *Engine) planExecution(ctx context.Context, req Request) (*domain.WorkflowGraph, capability.CapabilitySet, error) {
	switch {
	case req.TemplateID != "":
		if e.Templates == nil {
			return nil, capability.CapabilitySet{}, domainerrors.NewPreparationError("template_store", fmt.Errorf("no template store configured"))
		}
		tmpl, err := e.Templates.GetTemplate(ctx, req.TemplateID)
		if err != nil {
			return nil, capability.CapabilitySet{}, domainerrors.NewPreparationError("template_store", err)
		}
		graph, err := compiler.CompileTemplate(tmpl, req.Params)
		if err != nil {
			return nil, capability.CapabilitySet{}, domainerrors.NewPreparationError("compiler", err)
		}
		return graph, capability.FromTemplateConfiguration(tmpl), nil

	case req.DefinitionID != "":
		if e.Definitions == nil {
			return nil, capability.CapabilitySet{}, domainerrors.NewPreparationError("definition_store", fmt.Errorf("no definition store configured"))
		}
		graph, caps, err := e.Definitions.GetDefinition(ctx, req.DefinitionID)
		if err != nil {
			return nil, capability.CapabilitySet{}, domainerrors.NewPreparationError("definition_store", err)
		}
		return graph, caps, nil

	default:
		return domain.NewWorkflowGraph(req.Nodes, req.Edges, nil), req.Capabilities, nil
	}
}

// prepareExecutors builds the per-run exec.Deps, publishing LLM_LOADED /
// TOOLS_LOADED / RETRIEVER_LOADED as each collaborator is confirmed present
// (spec.md §4.7 step 4). The Engine's Models/Tools/Retriever are themselves
// process-wide collaborators resolved once at Engine construction, not
// re-dialed per execution — "initialize executors" here means binding this
// run's publisher/capabilities into a fresh Deps value, not opening new
// connections.
func (e *Engine) prepareExecutors(ctx context.Context, executionID string, req Request, caps capability.CapabilitySet) (exec.Deps, error) {
	deps := exec.Deps{
		Models:       e.Models,
		Tools:        e.Tools,
		Retriever:    e.Retriever,
		Capabilities: caps,
		Expr:         e.Expr,
		Logger:       e.Logger,
		Now:          e.Now,
		Events:       busPublisher{bus: e.Bus, userID: req.UserID, conversationID: req.ConversationID},
	}

	if len(deps.Models) > 0 {
		e.publish(ctx, domain.EventLLMLoaded, executionID, req.UserID, req.ConversationID, map[string]any{"providers": modelNames(deps.Models)})
	}
	if caps.EnableTools && deps.Tools != nil {
		e.publish(ctx, domain.EventToolsLoaded, executionID, req.UserID, req.ConversationID, nil)
	}
	if caps.EnableRetrieval && deps.Retriever != nil {
		e.publish(ctx, domain.EventRetrieverLoaded, executionID, req.UserID, req.ConversationID, nil)
	}

	return deps, nil
}

func modelNames(models map[string]provider.ChatModel) []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	return names
}

// busPublisher adapts *eventbus.Bus to exec.EventPublisher, stamping every
// event with the run's user/conversation ids so subscribers don't need a
// side channel to find them.
type busPublisher struct {
	bus            *eventbus.Bus
	userID         string
	conversationID string
}

func (p busPublisher) Publish(ctx context.Context, event domain.WorkflowEvent) {
	if p.bus == nil {
		return
	}
	event.UserID = p.userID
	event.ConversationID = p.conversationID
	p.bus.Publish(ctx, event)
}

func initialMessages(input string) []domain.Message {
	if input == "" {
		return nil
	}
	return []domain.Message{{Role: domain.RoleUser, Content: input}}
}

func failedResult(executionID string, startedAt, finishedAt time.Time, err error, stage domain.ErrorStage) domain.ExecutionResult {
	return domain.ExecutionResult{
		ExecutionID: executionID,
		Status:      domain.ExecutionStatusFailed,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
		Error:       err.Error(),
		ErrorStage:  stage,
	}
}
