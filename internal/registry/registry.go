// Package registry is the node-kind catalog: a process-wide, read-only table
// describing every domain.NodeKind's display name, category, and config
// schema (SPEC_FULL.md §4.2). Unlike the teacher's internal/node.Registry —
// a mutable runtime table of live Node instances — this catalog holds no
// state a caller can register into; it exists entirely as data, compiled
// once at package init, so the Validator can consult it without taking a
// lock or worrying about registration order.
package registry

import (
	"fmt"

	"github.com/flowcore/chatflow/internal/domain"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Category groups node kinds for UI/editor presentation purposes only; it
// carries no semantic weight for the compiler, validator, or engine.
type Category string

const (
	CategoryControl    Category = "control"
	CategoryProcessing Category = "processing"
	CategoryStorage    Category = "storage"
	CategoryData       Category = "data"
	CategoryUtility    Category = "utility"
)

// PropertyDef describes a single config property of a node kind, mirroring
// the original's workflow_node_registry.py per-property dicts.
type PropertyDef struct {
	Name        string
	Type        string // "string", "text", "number", "boolean", "object", "array", "select", "any"
	Required    bool
	Description string
	Options     []string // populated when Type == "select"
}

// Entry is one node kind's catalog row: its display metadata plus a JSON
// Schema compiled once at init from Properties, used by the Validator's
// Layer 1(h) structural check instead of a hand-rolled type switch.
type Entry struct {
	Kind        domain.NodeKind
	Name        string
	Description string
	Category    Category
	Properties  []PropertyDef

	Schema *jsonschema.Schema
}

var catalog map[domain.NodeKind]Entry

func init() {
	catalog = make(map[domain.NodeKind]Entry, len(definitions))
	for _, def := range definitions {
		def.Schema = mustCompile(def.Kind, def.Properties)
		catalog[def.Kind] = def
	}
}

// Lookup returns the catalog entry for kind, if registered.
func Lookup(kind domain.NodeKind) (Entry, bool) {
	e, ok := catalog[kind]
	return e, ok
}

// All returns every catalog entry, in declaration order.
func All() []Entry {
	out := make([]Entry, 0, len(definitions))
	for _, def := range definitions {
		out = append(out, catalog[def.Kind])
	}
	return out
}

// ByCategory returns every catalog entry in the given category.
func ByCategory(cat Category) []Entry {
	var out []Entry
	for _, def := range definitions {
		if def.Category == cat {
			out = append(out, catalog[def.Kind])
		}
	}
	return out
}

// RequiredProperties returns the subset of kind's properties marked required.
func RequiredProperties(kind domain.NodeKind) []PropertyDef {
	e, ok := catalog[kind]
	if !ok {
		return nil
	}
	var out []PropertyDef
	for _, p := range e.Properties {
		if p.Required {
			out = append(out, p)
		}
	}
	return out
}

// definitions is the single source of truth for node-kind metadata, grounded
// on original_source/chatter/core/workflow_node_registry.py's _NODE_TYPES
// table (ported property-for-property) plus the two spellings the teacher's
// compiled form needs (model/llm, tool/tools — see domain.NodeKind.IsModel
// / IsTool).
var definitions = []Entry{
	{
		Kind:        domain.NodeKindStart,
		Name:        "Start",
		Description: "Starting point of the workflow",
		Category:    CategoryControl,
	},
	{
		Kind:        domain.NodeKindModel,
		Name:        "Model",
		Description: "Language model processing node",
		Category:    CategoryProcessing,
		Properties: []PropertyDef{
			{Name: "model", Type: "string", Required: true, Description: "Model name"},
			{Name: "system_message", Type: "text", Description: "System prompt"},
			{Name: "temperature", Type: "number", Description: "Temperature (0-2)"},
			{Name: "max_tokens", Type: "number", Description: "Maximum tokens"},
		},
	},
	{
		Kind:        domain.NodeKindLLM,
		Name:        "LLM",
		Description: "Language model processing node (capability-based)",
		Category:    CategoryProcessing,
		Properties: []PropertyDef{
			{Name: "provider", Type: "string", Description: "Model provider (openai, anthropic, etc.)"},
			{Name: "model", Type: "string", Description: "Model name"},
			{Name: "temperature", Type: "number", Description: "Temperature (0-2)"},
			{Name: "max_tokens", Type: "number", Description: "Maximum tokens"},
			{Name: "system_prompt", Type: "text", Description: "System prompt"},
		},
	},
	{
		Kind:        domain.NodeKindTool,
		Name:        "Tool",
		Description: "Tool execution node",
		Category:    CategoryProcessing,
		Properties: []PropertyDef{
			{Name: "tool_name", Type: "string", Required: true, Description: "Tool name"},
			{Name: "parameters", Type: "object", Description: "Tool parameters"},
		},
	},
	{
		Kind:        domain.NodeKindTools,
		Name:        "Tools",
		Description: "Multi-tool execution node",
		Category:    CategoryProcessing,
		Properties: []PropertyDef{
			{Name: "available_tools", Type: "array", Description: "List of available tools"},
			{Name: "tool_timeout_ms", Type: "number", Description: "Tool execution timeout"},
			{Name: "parallel_calls", Type: "boolean", Description: "Run tool calls concurrently"},
		},
	},
	{
		Kind:        domain.NodeKindMemory,
		Name:        "Memory",
		Description: "Memory storage and retrieval node",
		Category:    CategoryStorage,
		Properties: []PropertyDef{
			{Name: "memory_window", Type: "number", Description: "Turns to retain before summarizing"},
		},
	},
	{
		Kind:        domain.NodeKindRetrieval,
		Name:        "Retrieval",
		Description: "Document retrieval node",
		Category:    CategoryData,
		Properties: []PropertyDef{
			{Name: "query", Type: "string", Description: "Search query"},
			{Name: "limit", Type: "number", Description: "Result limit"},
			{Name: "score_threshold", Type: "number", Description: "Minimum similarity score (0-1)"},
			{Name: "collection", Type: "string", Description: "Vector store collection"},
		},
	},
	{
		Kind:        domain.NodeKindConditional,
		Name:        "Conditional",
		Description: "Conditional logic and branching node",
		Category:    CategoryControl,
		Properties: []PropertyDef{
			{Name: "condition", Type: "string", Required: true, Description: "Condition expression"},
		},
	},
	{
		Kind:        domain.NodeKindLoop,
		Name:        "Loop",
		Description: "Loop iteration and repetitive execution node",
		Category:    CategoryControl,
		Properties: []PropertyDef{
			{Name: "max_iterations", Type: "number", Required: true, Description: "Maximum iterations"},
			{Name: "condition", Type: "string", Description: "Loop condition"},
		},
	},
	{
		Kind:        domain.NodeKindVariable,
		Name:        "Variable",
		Description: "Variable manipulation and state management node",
		Category:    CategoryData,
		Properties: []PropertyDef{
			{Name: "operation", Type: "select", Required: true, Options: []string{"set", "get", "append", "increment", "decrement"}},
			{Name: "variable_name", Type: "string", Required: true, Description: "Variable name"},
			{Name: "value", Type: "any", Description: "Variable value"},
		},
	},
	{
		Kind:        domain.NodeKindErrorHandler,
		Name:        "Error Handler",
		Description: "Error handling and recovery node",
		Category:    CategoryControl,
		Properties: []PropertyDef{
			{Name: "retry_count", Type: "number", Description: "Number of retries"},
			{Name: "fallback_action", Type: "string", Description: "Fallback action"},
		},
	},
	{
		Kind:        domain.NodeKindDelay,
		Name:        "Delay",
		Description: "Time delay and pacing node",
		Category:    CategoryUtility,
		Properties: []PropertyDef{
			{Name: "delay_type", Type: "select", Required: true, Options: []string{"fixed", "random", "exponential", "dynamic"}},
			{Name: "duration", Type: "number", Required: true, Description: "Delay duration (ms)"},
			{Name: "max_duration", Type: "number", Description: "Maximum duration for random/dynamic"},
		},
	},
	{
		Kind:        domain.NodeKindEnd,
		Name:        "End",
		Description: "End point of the workflow",
		Category:    CategoryControl,
	},
}

// mustCompile builds a JSON Schema object for kind's properties and panics
// on failure — a malformed definitions entry is a programming error caught
// at process start, not a runtime condition any caller can recover from.
func mustCompile(kind domain.NodeKind, props []PropertyDef) *jsonschema.Schema {
	raw := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
	properties := raw["properties"].(map[string]any)
	var required []string
	for _, p := range props {
		properties[p.Name] = propertySchema(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	if len(required) > 0 {
		raw["required"] = required
	}

	c := jsonschema.NewCompiler()
	uri := fmt.Sprintf("mem://registry/%s.json", kind)
	if err := c.AddResource(uri, raw); err != nil {
		panic(fmt.Sprintf("registry: compiling schema for %s: %v", kind, err))
	}
	schema, err := c.Compile(uri)
	if err != nil {
		panic(fmt.Sprintf("registry: compiling schema for %s: %v", kind, err))
	}
	return schema
}

func propertySchema(p PropertyDef) map[string]any {
	switch p.Type {
	case "string", "text":
		return map[string]any{"type": "string"}
	case "number":
		return map[string]any{"type": "number"}
	case "boolean":
		return map[string]any{"type": "boolean"}
	case "object":
		return map[string]any{"type": "object"}
	case "array":
		return map[string]any{"type": "array"}
	case "select":
		return map[string]any{"type": "string", "enum": toAnySlice(p.Options)}
	default: // "any"
		return map[string]any{}
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
