package eventbus

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowcore/chatflow/internal/domain"
)

// TracingSubscriber opens one OpenTelemetry span per execution, started on
// EXECUTION_STARTED and ended on EXECUTION_COMPLETED/EXECUTION_FAILED, with
// a child span per node wrapping that node's own entered/exited window —
// adapted from internal/infrastructure/monitoring/trace.go's ExecutionTrace
// (a hand-rolled, in-memory-only per-execution event list) onto a real
// tracer so executions show up in whatever OTel backend the deployment
// already has, rather than a structure only readable via String().
type TracingSubscriber struct {
	tracer trace.Tracer

	mu    sync.Mutex
	spans map[string]tracedExecution
}

type tracedExecution struct {
	ctx  context.Context
	span trace.Span
	// nodes holds the still-open child span per node id, for node kinds
	// whose NODE_EXECUTED event fires after a separate "entered" signal;
	// chatflow's executors report entered+exited atomically in one event,
	// so in practice every node span opens and closes within Handle.
	nodes map[string]trace.Span
}

// NewTracingSubscriber builds a subscriber using the named tracer from the
// global otel TracerProvider (wired by whatever SDK the deployment
// installs; a no-op provider if none was installed, matching the rest of
// chatflow's "absent collaborator is inert, never a panic" discipline).
func NewTracingSubscriber() *TracingSubscriber {
	return &TracingSubscriber{
		tracer: otel.Tracer("chatflow/engine"),
		spans:  make(map[string]tracedExecution),
	}
}

func (s *TracingSubscriber) Handle(ctx context.Context, event domain.WorkflowEvent) {
	switch event.Type {
	case domain.EventExecutionStarted:
		s.onStarted(ctx, event)
	case domain.EventNodeExecuted:
		s.onNodeExecuted(event)
	case domain.EventExecutionCompleted:
		s.onFinished(event, codes.Ok, "")
	case domain.EventExecutionFailed:
		msg, _ := event.Data["error"].(string)
		s.onFinished(event, codes.Error, msg)
	}
}

func (s *TracingSubscriber) onStarted(ctx context.Context, event domain.WorkflowEvent) {
	spanCtx, span := s.tracer.Start(ctx, "workflow.execution",
		trace.WithAttributes(
			attribute.String("execution_id", event.ExecutionID),
			attribute.String("user_id", event.UserID),
			attribute.String("conversation_id", event.ConversationID),
		),
	)
	s.mu.Lock()
	s.spans[event.ExecutionID] = tracedExecution{ctx: spanCtx, span: span, nodes: make(map[string]trace.Span)}
	s.mu.Unlock()
}

func (s *TracingSubscriber) onNodeExecuted(event domain.WorkflowEvent) {
	s.mu.Lock()
	exec, ok := s.spans[event.ExecutionID]
	s.mu.Unlock()
	if !ok {
		return
	}

	nodeID, _ := event.Data["node_id"].(string)
	kind, _ := event.Data["kind"].(string)
	outcome, _ := event.Data["outcome"].(string)

	_, span := s.tracer.Start(exec.ctx, "workflow.node."+kind,
		trace.WithAttributes(
			attribute.String("node_id", nodeID),
			attribute.String("node_kind", kind),
			attribute.String("outcome", outcome),
		),
	)
	if outcome != "" && outcome != "ok" {
		span.SetStatus(codes.Error, outcome)
	}
	span.End()
}

func (s *TracingSubscriber) onFinished(event domain.WorkflowEvent, status codes.Code, message string) {
	s.mu.Lock()
	exec, ok := s.spans[event.ExecutionID]
	delete(s.spans, event.ExecutionID)
	s.mu.Unlock()
	if !ok {
		return
	}
	exec.span.SetStatus(status, message)
	exec.span.End()
}
