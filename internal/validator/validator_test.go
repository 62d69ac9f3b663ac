package validator

import (
	"testing"
	"time"

	"github.com/flowcore/chatflow/internal/capability"
	"github.com/flowcore/chatflow/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func simpleGraph() *domain.WorkflowGraph {
	nodes := []domain.NodeSpec{
		{ID: "start", Kind: domain.NodeKindStart},
		{ID: "llm", Kind: domain.NodeKindLLM, Config: map[string]any{"model": "gpt-4"}},
		{ID: "end", Kind: domain.NodeKindEnd},
	}
	edges := []domain.EdgeSpec{
		{ID: "start-llm", Source: "start", Target: "llm", Kind: domain.EdgeKindDefault},
		{ID: "llm-end", Source: "llm", Target: "end", Kind: domain.EdgeKindDefault},
	}
	return domain.NewWorkflowGraph(nodes, edges, nil)
}

func TestValidate_HappyPathPasses(t *testing.T) {
	g := simpleGraph()
	report := Validate(g, capability.FromWorkflowType(domain.WorkflowTypePlain), Caller{UserID: "u1"}, DefaultResourceLimits())
	assert.True(t, report.Valid(), "%+v", report.Errors)
}

func TestValidateStructure_RequiresExactlyOneStart(t *testing.T) {
	nodes := []domain.NodeSpec{
		{ID: "start1", Kind: domain.NodeKindStart},
		{ID: "start2", Kind: domain.NodeKindStart},
		{ID: "end", Kind: domain.NodeKindEnd},
	}
	g := domain.NewWorkflowGraph(nodes, nil, nil)
	report := Validate(g, capability.CapabilitySet{}, Caller{}, DefaultResourceLimits())
	assert.False(t, report.Valid())
	found := false
	for _, e := range report.Errors {
		if e.Layer == "structure" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestValidateStructure_RejectsUppercaseEND(t *testing.T) {
	nodes := []domain.NodeSpec{
		{ID: "start", Kind: domain.NodeKindStart},
		{ID: "end", Kind: domain.NodeKindEnd},
	}
	edges := []domain.EdgeSpec{
		{ID: "start-END", Source: "start", Target: "END", Kind: domain.EdgeKindDefault},
	}
	g := domain.NewWorkflowGraph(nodes, edges, nil)
	report := Validate(g, capability.CapabilitySet{}, Caller{}, DefaultResourceLimits())
	assert.False(t, report.Valid())
	var msgs []string
	for _, e := range report.Errors {
		msgs = append(msgs, e.Message)
	}
	assert.Contains(t, msgs, `edge references uppercase 'END' — terminal edges must target lowercase 'end'`)
}

func TestValidateStructure_UnreachableNodeFails(t *testing.T) {
	nodes := []domain.NodeSpec{
		{ID: "start", Kind: domain.NodeKindStart},
		{ID: "orphan", Kind: domain.NodeKindEnd},
		{ID: "end", Kind: domain.NodeKindEnd},
	}
	edges := []domain.EdgeSpec{
		{ID: "start-end", Source: "start", Target: "end", Kind: domain.EdgeKindDefault},
	}
	g := domain.NewWorkflowGraph(nodes, edges, nil)
	report := Validate(g, capability.CapabilitySet{}, Caller{}, DefaultResourceLimits())
	assert.False(t, report.Valid())
}

func TestValidateSecurity_ToolRequiresCallerPermission(t *testing.T) {
	nodes := []domain.NodeSpec{
		{ID: "start", Kind: domain.NodeKindStart},
		{ID: "tool", Kind: domain.NodeKindTool, Config: map[string]any{"tool_name": "search"}},
		{ID: "end", Kind: domain.NodeKindEnd},
	}
	edges := []domain.EdgeSpec{
		{ID: "start-tool", Source: "start", Target: "tool", Kind: domain.EdgeKindDefault},
		{ID: "tool-end", Source: "tool", Target: "end", Kind: domain.EdgeKindDefault},
	}
	g := domain.NewWorkflowGraph(nodes, edges, nil)

	report := Validate(g, capability.CapabilitySet{EnableTools: true, MaxToolCalls: 10}, Caller{UserID: "u1"}, DefaultResourceLimits())
	assert.False(t, report.Valid(), "caller with no allowed tools must be rejected")

	report = Validate(g, capability.CapabilitySet{EnableTools: true, MaxToolCalls: 10}, Caller{UserID: "u1", AllowedTools: []string{"search"}}, DefaultResourceLimits())
	assert.True(t, report.Valid(), "%+v", report.Errors)
}

func TestValidateSecurity_RejectsDangerousLiteralPatterns(t *testing.T) {
	nodes := []domain.NodeSpec{
		{ID: "start", Kind: domain.NodeKindStart},
		{ID: "llm", Kind: domain.NodeKindLLM, Config: map[string]any{"model": "gpt-4", "system_message": "<script>alert(1)</script>"}},
		{ID: "end", Kind: domain.NodeKindEnd},
	}
	edges := []domain.EdgeSpec{
		{ID: "start-llm", Source: "start", Target: "llm", Kind: domain.EdgeKindDefault},
		{ID: "llm-end", Source: "llm", Target: "end", Kind: domain.EdgeKindDefault},
	}
	g := domain.NewWorkflowGraph(nodes, edges, nil)
	report := Validate(g, capability.CapabilitySet{}, Caller{}, DefaultResourceLimits())
	assert.False(t, report.Valid())
}

func TestValidateCapability_RetrievalRequiresFlag(t *testing.T) {
	nodes := []domain.NodeSpec{
		{ID: "start", Kind: domain.NodeKindStart},
		{ID: "retrieval", Kind: domain.NodeKindRetrieval, Config: map[string]any{"limit": 5}},
		{ID: "end", Kind: domain.NodeKindEnd},
	}
	edges := []domain.EdgeSpec{
		{ID: "start-retrieval", Source: "start", Target: "retrieval", Kind: domain.EdgeKindDefault},
		{ID: "retrieval-end", Source: "retrieval", Target: "end", Kind: domain.EdgeKindDefault},
	}
	g := domain.NewWorkflowGraph(nodes, edges, nil)
	report := Validate(g, capability.CapabilitySet{EnableRetrieval: false}, Caller{}, DefaultResourceLimits())
	assert.False(t, report.Valid())
}

func TestValidateCapability_ConfigLimitCannotExceedEffective(t *testing.T) {
	nodes := []domain.NodeSpec{
		{ID: "start", Kind: domain.NodeKindStart},
		{ID: "tools", Kind: domain.NodeKindTools, Config: map[string]any{"max_tool_calls": 20}},
		{ID: "end", Kind: domain.NodeKindEnd},
	}
	edges := []domain.EdgeSpec{
		{ID: "start-tools", Source: "start", Target: "tools", Kind: domain.EdgeKindDefault},
		{ID: "tools-end", Source: "tools", Target: "end", Kind: domain.EdgeKindDefault},
	}
	g := domain.NewWorkflowGraph(nodes, edges, nil)
	report := Validate(g, capability.CapabilitySet{EnableTools: true, MaxToolCalls: 5}, Caller{}, DefaultResourceLimits())
	assert.False(t, report.Valid())
}

func TestValidateResource_NodeCountCeiling(t *testing.T) {
	g := simpleGraph()
	report := Validate(g, capability.CapabilitySet{}, Caller{}, ResourceLimits{MaxNodes: 1})
	assert.False(t, report.Valid())
}

func TestValidateResource_LoopMaxIterationsRequiredAndCapped(t *testing.T) {
	g := domain.NewWorkflowGraph(
		[]domain.NodeSpec{
			{ID: "start", Kind: domain.NodeKindStart},
			{ID: "loop", Kind: domain.NodeKindLoop, Config: map[string]any{}},
			{ID: "end", Kind: domain.NodeKindEnd},
		},
		[]domain.EdgeSpec{
			{ID: "start-loop", Source: "start", Target: "loop", Kind: domain.EdgeKindDefault},
			{ID: "loop-loop", Source: "loop", Target: "loop", Kind: domain.EdgeKindConditional, Condition: "variable i < variable n"},
			{ID: "loop-end", Source: "loop", Target: "end", Kind: domain.EdgeKindConditional, Condition: "variable i >= variable n"},
		},
		nil,
	)
	report := Validate(g, capability.CapabilitySet{}, Caller{}, DefaultResourceLimits())
	assert.False(t, report.Valid(), "loop missing max_iterations must fail")

	g2 := domain.NewWorkflowGraph(
		[]domain.NodeSpec{
			{ID: "start", Kind: domain.NodeKindStart},
			{ID: "loop", Kind: domain.NodeKindLoop, Config: map[string]any{"max_iterations": 5000}},
			{ID: "end", Kind: domain.NodeKindEnd},
		},
		[]domain.EdgeSpec{
			{ID: "start-loop", Source: "start", Target: "loop", Kind: domain.EdgeKindDefault},
			{ID: "loop-loop", Source: "loop", Target: "loop", Kind: domain.EdgeKindConditional, Condition: "variable i < variable n"},
			{ID: "loop-end", Source: "loop", Target: "end", Kind: domain.EdgeKindConditional, Condition: "variable i >= variable n"},
		},
		nil,
	)
	report2 := Validate(g2, capability.CapabilitySet{}, Caller{}, DefaultResourceLimits())
	assert.False(t, report2.Valid(), "max_iterations above the hard cap must fail")
}

func TestDecodeCaller_RoundTrips(t *testing.T) {
	secret := "test-secret"
	claims := callerClaims{
		UserID:           "user-42",
		AllowedTools:     []string{"search", "calculator"},
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	caller, err := DecodeCaller(signed, secret)
	require.NoError(t, err)
	assert.Equal(t, "user-42", caller.UserID)
	assert.True(t, caller.HasTool("search"))
	assert.False(t, caller.HasTool("unknown"))
}

func TestDecodeCaller_RejectsBadSignature(t *testing.T) {
	secret := "test-secret"
	claims := callerClaims{UserID: "user-42"}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	_, err = DecodeCaller(signed, "wrong-secret")
	assert.ErrorIs(t, err, ErrInvalidCallerToken)
}
