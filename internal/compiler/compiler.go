// Package compiler implements the Template Compiler (C3): it expands a
// domain.WorkflowTemplate plus request-time parameters into a concrete
// domain.WorkflowGraph (SPEC_FULL.md §4.3). Grounded on the original's
// workflow_template_generator.py, restructured in the teacher's
// graph-builder idiom (internal/engine/graph_builder.go) as a fluent
// builder rather than a sequence of literal map/slice appends.
package compiler

import (
	"fmt"

	"github.com/flowcore/chatflow/internal/capability"
	"github.com/flowcore/chatflow/internal/domain"
)

// CompileTemplate selects universal-chat or capability-based emission per
// spec.md §4.3 and returns the resulting graph. params overlay the
// template's DefaultParams, request values winning on conflict.
func CompileTemplate(tmpl domain.WorkflowTemplate, params map[string]any) (*domain.WorkflowGraph, error) {
	merged := mergeParams(tmpl.DefaultParams, params)

	if tmpl.IsUniversalChat() || stringParam(merged, "workflow_type", "") == string(domain.WorkflowTypeUniversalChat) {
		return compileUniversalChat(tmpl, merged), nil
	}
	return compileCapabilityBased(tmpl, merged), nil
}

func mergeParams(defaults, request map[string]any) map[string]any {
	out := make(map[string]any, len(defaults)+len(request))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range request {
		out[k] = v
	}
	return out
}

// builder is a thin fluent accumulator over node/edge slices, in the spirit
// of the teacher's engine.GraphBuilder (AddNode/AddEdge/Build), generalized
// to carry full domain.NodeSpec/EdgeSpec values instead of bare ids.
type builder struct {
	nodes []domain.NodeSpec
	edges []domain.EdgeSpec
	x     float64
}

func newBuilder() *builder { return &builder{x: 100} }

func (b *builder) node(id string, kind domain.NodeKind, label string, y float64, cfg map[string]any) *builder {
	b.nodes = append(b.nodes, domain.NodeSpec{
		ID:       id,
		Kind:     kind,
		Position: domain.Position{X: b.x, Y: y},
		Config:   cfg,
		Label:    label,
	})
	return b
}

func (b *builder) advance(dx float64) *builder {
	b.x += dx
	return b
}

func (b *builder) edge(source, target string, kind domain.EdgeKind, condition, label string) *builder {
	b.edges = append(b.edges, domain.EdgeSpec{
		ID:        fmt.Sprintf("%s-%s", source, target),
		Source:    source,
		Target:    target,
		Kind:      kind,
		Condition: condition,
		Label:     label,
	})
	return b
}

func (b *builder) build(metadata map[string]any) *domain.WorkflowGraph {
	return domain.NewWorkflowGraph(b.nodes, b.edges, metadata)
}

// compileUniversalChat emits the fixed 12-node topology (SPEC_FULL.md §4.3
// universal-chat mode). All terminal edges target the lowercase id "end" —
// the original generator's _generate_capability_based_workflow and
// _generate_universal_chat_workflow both emit an uppercase "END" target for
// terminal edges; spec.md §9 calls this a bug to reject, not preserve, so
// this compiler never emits it (see DESIGN.md "uppercase END").
func compileUniversalChat(tmpl domain.WorkflowTemplate, params map[string]any) *domain.WorkflowGraph {
	b := newBuilder()

	b.node("start", domain.NodeKindStart, "Start", 100, map[string]any{})
	b.advance(200)

	b.node("set_capabilities", domain.NodeKindVariable, "Set Capabilities", 100, map[string]any{
		"operation": "set_many",
		"values": map[string]any{
			"enable_memory":    boolParam(params, "enable_memory", false),
			"enable_retrieval": boolParam(params, "enable_retrieval", false),
			"enable_tools":     boolParam(params, "enable_tools", false),
			"memory_window":    intParam(params, "memory_window", 10),
			"max_tool_calls":   intParam(params, "max_tool_calls", 10),
			"max_documents":    intParam(params, "max_documents", 5),
		},
	})
	b.advance(200)

	b.node("conditional_memory", domain.NodeKindConditional, "Memory Check", 100, map[string]any{
		"condition": "variable enable_memory equals true",
	})
	b.node("manage_memory", domain.NodeKindMemory, "Manage Memory", 200, map[string]any{
		"memory_window": intParam(params, "memory_window", 10),
	})
	b.advance(200)

	b.node("conditional_retrieval", domain.NodeKindConditional, "Retrieval Check", 100, map[string]any{
		"condition": "variable enable_retrieval equals true",
	})
	b.node("retrieve_context", domain.NodeKindRetrieval, "Retrieve Context", 200, map[string]any{
		"max_documents":   intParam(params, "max_documents", 5),
		"score_threshold": floatParam(params, "score_threshold", 0.5),
	})
	b.advance(200)

	b.node("call_model", domain.NodeKindLLM, "LLM Response", 100, map[string]any{
		"provider":       stringParam(params, "provider", "openai"),
		"model":          stringParam(params, "model", "gpt-4"),
		"temperature":    floatParam(params, "temperature", 0.7),
		"max_tokens":     intParam(params, "max_tokens", 1000),
		"system_message": stringParam(params, "system_message", defaultString(tmpl.DefaultParams, "system_message", "You are a helpful assistant.")),
	})
	b.advance(200)

	b.node("conditional_tools", domain.NodeKindConditional, "Tools Check", 100, map[string]any{
		"condition": "variable enable_tools equals true AND has_tool_calls",
	})
	b.node("execute_tools", domain.NodeKindTools, "Execute Tools", 200, map[string]any{
		"max_tool_calls":  intParam(params, "max_tool_calls", 10),
		"tool_timeout_ms": intParam(params, "tool_timeout_ms", 30000),
	})
	b.advance(200)

	b.node("conditional_finalize", domain.NodeKindConditional, "Finalize Check", 100, map[string]any{
		"condition": "tool_calls >= variable max_tool_calls",
	})
	b.node("finalize_response", domain.NodeKindLLM, "Finalize Response", 200, map[string]any{
		"provider":       stringParam(params, "provider", "openai"),
		"model":          stringParam(params, "model", "gpt-4"),
		"temperature":    floatParam(params, "temperature", 0.7),
		"max_tokens":     intParam(params, "max_tokens", 1000),
		"system_message": "Provide a final response based on the tool results.",
	})
	b.advance(200)

	b.node("end", domain.NodeKindEnd, "End", 100, map[string]any{})

	b.edge("start", "set_capabilities", domain.EdgeKindDefault, "", "")
	b.edge("set_capabilities", "conditional_memory", domain.EdgeKindDefault, "", "")

	b.edge("conditional_memory", "manage_memory", domain.EdgeKindConditional, "variable enable_memory equals true", "")
	b.edge("conditional_memory", "conditional_retrieval", domain.EdgeKindConditional, "variable enable_memory equals false", "")
	b.edge("manage_memory", "conditional_retrieval", domain.EdgeKindDefault, "", "")

	b.edge("conditional_retrieval", "retrieve_context", domain.EdgeKindConditional, "variable enable_retrieval equals true", "")
	b.edge("conditional_retrieval", "call_model", domain.EdgeKindConditional, "variable enable_retrieval equals false", "")
	b.edge("retrieve_context", "call_model", domain.EdgeKindDefault, "", "")

	b.edge("call_model", "conditional_tools", domain.EdgeKindDefault, "", "")

	b.edge("conditional_tools", "execute_tools", domain.EdgeKindConditional, "variable enable_tools equals true AND has_tool_calls", "")
	b.edge("conditional_tools", "end", domain.EdgeKindConditional, "variable enable_tools equals false OR no_tool_calls", "")

	b.edge("execute_tools", "conditional_finalize", domain.EdgeKindDefault, "", "")
	b.edge("conditional_finalize", "call_model", domain.EdgeKindConditional, "tool_calls < variable max_tool_calls", "")
	b.edge("conditional_finalize", "finalize_response", domain.EdgeKindConditional, "tool_calls >= variable max_tool_calls", "")
	b.edge("finalize_response", "end", domain.EdgeKindDefault, "", "")

	return b.build(map[string]any{"template_id": tmpl.ID, "mode": "universal_chat"})
}

// compileCapabilityBased emits the minimal linear graph derived from the
// template's required-tools/required-retrievers lists: start ->
// [retrieval?] -> llm <-> [tools?] -> end, per spec.md §4.3.
func compileCapabilityBased(tmpl domain.WorkflowTemplate, params map[string]any) *domain.WorkflowGraph {
	caps := capability.FromTemplateConfiguration(tmpl)
	b := newBuilder()

	b.node("start", domain.NodeKindStart, "Start", 100, map[string]any{})
	b.advance(200)
	previous := "start"

	if caps.EnableRetrieval {
		b.node("retrieval", domain.NodeKindRetrieval, "Document Retrieval", 100, map[string]any{
			"retriever":       stringParam(params, "retriever", "default"),
			"limit":           caps.MaxDocuments,
			"score_threshold": floatParam(params, "score_threshold", 0.5),
		})
		b.edge(previous, "retrieval", domain.EdgeKindDefault, "", "")
		previous = "retrieval"
		b.advance(200)
	}

	label := "LLM Response"
	switch {
	case caps.EnableTools && caps.EnableRetrieval:
		label = "LLM with Tools & Context"
	case caps.EnableTools:
		label = "LLM with Tools"
	case caps.EnableRetrieval:
		label = "LLM with Context"
	}
	maxToolCalls := 0
	if caps.EnableTools {
		maxToolCalls = caps.MaxToolCalls
	}
	b.node("llm", domain.NodeKindLLM, label, 100, map[string]any{
		"provider":       stringParam(params, "provider", "openai"),
		"model":          stringParam(params, "model", "gpt-4"),
		"temperature":    floatParam(params, "temperature", 0.7),
		"max_tokens":     intParam(params, "max_tokens", 1000),
		"system_message": stringParam(params, "system_prompt", "You are a helpful assistant."),
		"use_context":    caps.EnableRetrieval,
		"enable_tools":   caps.EnableTools,
		"max_tool_calls": maxToolCalls,
	})
	b.edge(previous, "llm", domain.EdgeKindDefault, "", "")
	previous = "llm"
	b.advance(200)

	if caps.EnableTools {
		b.node("tools", domain.NodeKindTools, "Tool Execution", 200, map[string]any{
			"max_tool_calls":  caps.MaxToolCalls,
			"parallel_calls":  boolParam(params, "parallel_tool_calls", false),
			"tool_timeout_ms": intParam(params, "tool_timeout_ms", 30000),
		})
		b.edge("llm", "tools", domain.EdgeKindDefault, "has_tool_calls", "tool_call")
		b.edge("tools", "llm", domain.EdgeKindDefault, "", "tool_result")
		b.advance(200)
	}

	b.node("end", domain.NodeKindEnd, "End", 100, map[string]any{})
	b.edge(previous, "end", domain.EdgeKindDefault, "", "")

	return b.build(map[string]any{
		"template_id":   tmpl.ID,
		"mode":          "capability_based",
		"workflow_type": string(caps.WorkflowTypeOf()),
	})
}

func defaultString(params map[string]any, key, fallback string) string {
	return stringParam(params, key, fallback)
}

func stringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

func boolParam(params map[string]any, key string, fallback bool) bool {
	if v, ok := params[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return fallback
}

func intParam(params map[string]any, key string, fallback int) int {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return fallback
}

func floatParam(params map[string]any, key string, fallback float64) float64 {
	if v, ok := params[key]; ok {
		switch n := v.(type) {
		case float64:
			return n
		case int:
			return float64(n)
		}
	}
	return fallback
}
