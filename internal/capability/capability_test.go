package capability

import (
	"testing"

	"github.com/flowcore/chatflow/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromWorkflowType_Presets(t *testing.T) {
	plain := FromWorkflowType(domain.WorkflowTypePlain)
	assert.True(t, plain.EnableMemory)
	assert.False(t, plain.EnableRetrieval)
	assert.False(t, plain.EnableTools)

	rag := FromWorkflowType(domain.WorkflowTypeRAG)
	assert.True(t, rag.EnableRetrieval)
	assert.Equal(t, 10, rag.MaxDocuments)
	assert.Equal(t, 30, rag.MemoryWindow)

	tools := FromWorkflowType(domain.WorkflowTypeTools)
	assert.True(t, tools.EnableTools)
	assert.Equal(t, 10, tools.MaxToolCalls)
	assert.Equal(t, 100, tools.MemoryWindow)

	full := FromWorkflowType(domain.WorkflowTypeFull)
	assert.True(t, full.EnableRetrieval)
	assert.True(t, full.EnableTools)
	assert.Equal(t, 5, full.MaxToolCalls)
	assert.Equal(t, 10, full.MaxDocuments)

	unknown := FromWorkflowType(domain.WorkflowType("nonsense"))
	assert.Equal(t, plain, unknown)
}

func TestFromTemplateConfiguration_DerivesFromRequiredLists(t *testing.T) {
	tmpl := domain.WorkflowTemplate{
		WorkflowType:       domain.WorkflowTypePlain,
		RequiredTools:      []string{"search"},
		RequiredRetrievers: []string{"docs"},
		DefaultParams:      map[string]any{"temperature": 0.2},
	}
	cs := FromTemplateConfiguration(tmpl)
	require.True(t, cs.EnableTools)
	require.True(t, cs.EnableRetrieval)
	assert.Equal(t, 10, cs.MaxToolCalls)
	assert.Equal(t, 10, cs.MaxDocuments)
	assert.Equal(t, 0.2, cs.Extensions["temperature"])
}

func TestMergeWith_UnionOfFlagsMaxOfLimits(t *testing.T) {
	a := CapabilitySet{EnableTools: true, MaxToolCalls: 5, Extensions: map[string]any{"x": 1}}
	b := CapabilitySet{EnableRetrieval: true, MaxToolCalls: 10, Extensions: map[string]any{"x": 2, "y": 3}}

	merged := a.MergeWith(b)
	assert.True(t, merged.EnableTools)
	assert.True(t, merged.EnableRetrieval)
	assert.Equal(t, 10, merged.MaxToolCalls)
	assert.Equal(t, 2, merged.Extensions["x"], "other's value wins on conflict")
	assert.Equal(t, 3, merged.Extensions["y"])
}

func TestMergeWith_StreamingAndCachingAreUnionNotIntersection(t *testing.T) {
	a := CapabilitySet{EnableStreaming: true, EnableCaching: false, Extensions: map[string]any{}}
	b := CapabilitySet{EnableStreaming: false, EnableCaching: true, Extensions: map[string]any{}}

	merged := a.MergeWith(b)
	assert.True(t, merged.EnableStreaming)
	assert.True(t, merged.EnableCaching)
}

func TestWorkflowTypeOf(t *testing.T) {
	assert.Equal(t, domain.WorkflowTypePlain, CapabilitySet{}.WorkflowTypeOf())
	assert.Equal(t, domain.WorkflowTypeRAG, CapabilitySet{EnableRetrieval: true}.WorkflowTypeOf())
	assert.Equal(t, domain.WorkflowTypeTools, CapabilitySet{EnableTools: true}.WorkflowTypeOf())
	assert.Equal(t, domain.WorkflowTypeFull, CapabilitySet{EnableRetrieval: true, EnableTools: true}.WorkflowTypeOf())
}

func TestClone_IsIndependent(t *testing.T) {
	cs := CapabilitySet{Extensions: map[string]any{"a": 1}}
	clone := cs.Clone()
	clone.Extensions["a"] = 2
	assert.Equal(t, 1, cs.Extensions["a"])
	assert.Equal(t, 2, clone.Extensions["a"])
}
