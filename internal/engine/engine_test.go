package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/chatflow/internal/capability"
	"github.com/flowcore/chatflow/internal/domain"
	"github.com/flowcore/chatflow/internal/engine"
	"github.com/flowcore/chatflow/internal/provider"
	"github.com/flowcore/chatflow/internal/validator"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type fakeModel struct {
	reply domain.Message
}

func (f fakeModel) Complete(ctx context.Context, req provider.CompletionRequest) (provider.CompletionResponse, error) {
	return provider.CompletionResponse{Message: f.reply}, nil
}

func linearGraph() (*domain.WorkflowGraph, capability.CapabilitySet) {
	nodes := []domain.NodeSpec{
		{ID: "start", Kind: domain.NodeKindStart},
		{ID: "model", Kind: domain.NodeKindModel, Config: map[string]any{"provider": "openai", "model": "gpt-4"}},
		{ID: "end", Kind: domain.NodeKindEnd},
	}
	edges := []domain.EdgeSpec{
		{ID: "e1", Source: "start", Target: "model", Kind: domain.EdgeKindDefault},
		{ID: "e2", Source: "model", Target: "end", Kind: domain.EdgeKindDefault},
	}
	return domain.NewWorkflowGraph(nodes, edges, nil), capability.CapabilitySet{}
}

func newEngineFor(graph *domain.WorkflowGraph, caps capability.CapabilitySet) *engine.Engine {
	e := engine.New()
	e.Now = fixedClock(time.Unix(100, 0))
	e.Models = map[string]provider.ChatModel{
		"openai": fakeModel{reply: domain.Message{Role: domain.RoleAssistant, Content: "hi"}},
	}
	e.Definitions = fakeDefinitions{graph: graph, caps: caps}
	return e
}

type fakeDefinitions struct {
	graph *domain.WorkflowGraph
	caps  capability.CapabilitySet
	err   error
}

func (f fakeDefinitions) GetDefinition(ctx context.Context, id string) (*domain.WorkflowGraph, capability.CapabilitySet, error) {
	if f.err != nil {
		return nil, capability.CapabilitySet{}, f.err
	}
	return f.graph, f.caps, nil
}

func TestExecute_LinearGraphSucceeds(t *testing.T) {
	graph, caps := linearGraph()
	e := newEngineFor(graph, caps)

	result, err := e.Execute(context.Background(), engine.Request{
		DefinitionID: "def-1",
		UserID:       "user-1",
		InputMessage: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, "hi", result.FinalMessage)
	assert.Equal(t, 3, result.NodesExecuted)
}

func TestExecute_ValidationFailureNeverEntersGraph(t *testing.T) {
	// Two start nodes: Layer 1 structure check must reject this before any
	// node executes.
	nodes := []domain.NodeSpec{
		{ID: "start1", Kind: domain.NodeKindStart},
		{ID: "start2", Kind: domain.NodeKindStart},
		{ID: "end", Kind: domain.NodeKindEnd},
	}
	edges := []domain.EdgeSpec{
		{ID: "e1", Source: "start1", Target: "end"},
		{ID: "e2", Source: "start2", Target: "end"},
	}
	graph := domain.NewWorkflowGraph(nodes, edges, nil)
	e := newEngineFor(graph, capability.CapabilitySet{})

	result, err := e.Execute(context.Background(), engine.Request{DefinitionID: "def-1", InputMessage: "hi"})
	require.Error(t, err)
	assert.Equal(t, domain.ExecutionStatusFailed, result.Status)
	assert.Equal(t, domain.ErrorStagePreparation, result.ErrorStage)
}

func TestExecute_ConditionalEdgeRoutingByCondition(t *testing.T) {
	nodes := []domain.NodeSpec{
		{ID: "start", Kind: domain.NodeKindStart},
		{ID: "seed", Kind: domain.NodeKindVariable, Config: map[string]any{"operation": "set", "variable_name": "go", "value": true}},
		{ID: "branch", Kind: domain.NodeKindConditional, Config: map[string]any{"condition": "variable go equals true"}},
		{ID: "yes", Kind: domain.NodeKindVariable, Config: map[string]any{"operation": "set", "variable_name": "hit", "value": "yes"}},
		{ID: "no", Kind: domain.NodeKindVariable, Config: map[string]any{"operation": "set", "variable_name": "hit", "value": "no"}},
		{ID: "end", Kind: domain.NodeKindEnd},
	}
	edges := []domain.EdgeSpec{
		{ID: "e0", Source: "start", Target: "seed"},
		{ID: "e1", Source: "seed", Target: "branch"},
		{ID: "e2", Source: "branch", Target: "yes", Condition: "variable go equals true"},
		{ID: "e3", Source: "branch", Target: "no", Condition: "variable go equals false"},
		{ID: "e4", Source: "yes", Target: "end"},
		{ID: "e5", Source: "no", Target: "end"},
	}
	graph := domain.NewWorkflowGraph(nodes, edges, nil)
	e := engine.New()
	e.Now = fixedClock(time.Unix(0, 0))
	e.Definitions = fakeDefinitions{graph: graph}

	result, err := e.Execute(context.Background(), engine.Request{DefinitionID: "def-1", InputMessage: "hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)
}

func TestExecute_LoopExitsViaLabel(t *testing.T) {
	nodes := []domain.NodeSpec{
		{ID: "start", Kind: domain.NodeKindStart},
		{ID: "loop", Kind: domain.NodeKindLoop, Config: map[string]any{"max_iterations": 2}},
		{ID: "body", Kind: domain.NodeKindVariable, Config: map[string]any{"operation": "increment", "variable_name": "n"}},
		{ID: "end", Kind: domain.NodeKindEnd},
	}
	edges := []domain.EdgeSpec{
		{ID: "e1", Source: "start", Target: "loop"},
		{ID: "e2", Source: "loop", Target: "body", Label: "loop"},
		{ID: "e3", Source: "loop", Target: "end", Label: "exit"},
		{ID: "e4", Source: "body", Target: "loop"},
	}
	graph := domain.NewWorkflowGraph(nodes, edges, nil)
	e := engine.New()
	e.Now = fixedClock(time.Unix(0, 0))
	e.Definitions = fakeDefinitions{graph: graph}

	result, err := e.Execute(context.Background(), engine.Request{DefinitionID: "def-1", InputMessage: "hi"})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)
}

func TestExecute_CancellationSurfacesBeforeGraphTimeout(t *testing.T) {
	graph, caps := linearGraph()
	e := newEngineFor(graph, caps)
	e.ExecutionTimeout = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.Execute(ctx, engine.Request{DefinitionID: "def-1", InputMessage: "hi"})
	require.Error(t, err)
	assert.Equal(t, domain.ExecutionStatusCancelled, result.Status)
}

func TestExecute_NoTemplateOrDefinitionOrNodesFailsPreparation(t *testing.T) {
	e := engine.New()
	_, err := e.Execute(context.Background(), engine.Request{})
	// inline/raw mode with zero nodes is a structural validation failure,
	// not a preparation failure: no start node.
	require.Error(t, err)
}

func TestExecute_RawModeNeverTouchesDefinitionStore(t *testing.T) {
	nodes := []domain.NodeSpec{
		{ID: "start", Kind: domain.NodeKindStart},
		{ID: "end", Kind: domain.NodeKindEnd},
	}
	edges := []domain.EdgeSpec{{ID: "e1", Source: "start", Target: "end"}}

	e := engine.New()
	e.Now = fixedClock(time.Unix(0, 0))
	e.Definitions = explodingDefinitions{t: t}

	result, err := e.Execute(context.Background(), engine.Request{
		Nodes:        nodes,
		Edges:        edges,
		Capabilities: capability.CapabilitySet{},
		Caller:       validator.Caller{UserID: "user-1"},
		InputMessage: "hi",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)
}

type fakeTemplates struct {
	tmpl domain.WorkflowTemplate
}

func (f fakeTemplates) GetTemplate(ctx context.Context, id string) (domain.WorkflowTemplate, error) {
	return f.tmpl, nil
}

// TestExecute_UniversalChatTemplateRunsEndToEnd exercises the compiler's
// fixed universal-chat topology through the real engine, not just its
// shape (compiler_test.go's TestCompileTemplate_UniversalChatHasFixedTopology
// never executes it). With every optional capability off, the run must
// still reach "end": set_capabilities has to seed variables the
// conditional_memory/conditional_retrieval/conditional_tools nodes can
// actually read, or the first conditional's edges both evaluate false and
// the walk dead-ends.
func TestExecute_UniversalChatTemplateRunsEndToEnd(t *testing.T) {
	tmpl := domain.WorkflowTemplate{
		ID:           "tmpl-chat",
		Name:         "universal_chat",
		WorkflowType: domain.WorkflowTypeUniversalChat,
	}
	e := engine.New()
	e.Now = fixedClock(time.Unix(0, 0))
	e.Templates = fakeTemplates{tmpl: tmpl}
	e.Models = map[string]provider.ChatModel{
		"openai": fakeModel{reply: domain.Message{Role: domain.RoleAssistant, Content: "hi"}},
	}

	result, err := e.Execute(context.Background(), engine.Request{
		TemplateID:   "tmpl-chat",
		UserID:       "user-1",
		InputMessage: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)
	assert.Equal(t, "hi", result.FinalMessage)
}

// TestExecute_UniversalChatTemplateWithMemoryAndRetrievalEnabled drives the
// manage_memory and retrieve_context branches too, so both outgoing edges
// of conditional_memory and conditional_retrieval get exercised against
// real seeded variables rather than only the "false" branch.
func TestExecute_UniversalChatTemplateWithMemoryAndRetrievalEnabled(t *testing.T) {
	tmpl := domain.WorkflowTemplate{
		ID:           "tmpl-chat",
		Name:         "universal_chat",
		WorkflowType: domain.WorkflowTypeUniversalChat,
	}
	e := engine.New()
	e.Now = fixedClock(time.Unix(0, 0))
	e.Templates = fakeTemplates{tmpl: tmpl}
	e.Models = map[string]provider.ChatModel{
		"openai": fakeModel{reply: domain.Message{Role: domain.RoleAssistant, Content: "hi"}},
	}

	result, err := e.Execute(context.Background(), engine.Request{
		TemplateID: "tmpl-chat",
		UserID:     "user-1",
		Params: map[string]any{
			"enable_memory":    true,
			"enable_retrieval": true,
			"memory_window":    1,
		},
		InputMessage: "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusCompleted, result.Status)
}

type explodingDefinitions struct{ t *testing.T }

func (e explodingDefinitions) GetDefinition(ctx context.Context, id string) (*domain.WorkflowGraph, capability.CapabilitySet, error) {
	e.t.Fatal("raw-mode execution must never consult the definition store")
	return nil, capability.CapabilitySet{}, nil
}
