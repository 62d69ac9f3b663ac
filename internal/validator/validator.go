// Package validator implements the four-layer Validator (C4): Structure,
// Security, Capability, and Resource checks run in order over a compiled
// domain.WorkflowGraph (SPEC_FULL.md §4.4). A fatal error in an earlier
// layer never skips later layers — the report surfaces every finding so a
// caller sees the whole picture in one round trip, grounded on the
// teacher's ExecutionPlanner.ValidatePlan staged-check pattern
// (internal/application/executor/planner.go).
package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/flowcore/chatflow/internal/capability"
	"github.com/flowcore/chatflow/internal/domain"
	"github.com/flowcore/chatflow/internal/engine/exec/condition"
	"github.com/flowcore/chatflow/internal/registry"
)

// Caller describes the authenticated principal compiling/executing a graph,
// decoded from a JWT by DecodeCaller. Layer 2(a) consults AllowedTools to
// decide whether a tool node's reference is permitted for this caller.
type Caller struct {
	UserID       string
	AllowedTools []string
}

// HasTool reports whether name is in the caller's allowed-tools list. An
// empty AllowedTools list is treated as "no tools permitted", not "all
// tools permitted" — callers that should see every registered tool must
// say so explicitly.
func (c Caller) HasTool(name string) bool {
	for _, t := range c.AllowedTools {
		if t == name {
			return true
		}
	}
	return false
}

// Finding is a single layer's complaint about the graph.
type Finding struct {
	Layer   string
	NodeID  string
	Message string
	Fatal   bool
}

// Report is the accumulated result of all four layers.
type Report struct {
	Errors   []Finding
	Warnings []Finding
}

// Valid reports whether the graph passed every layer with no fatal findings.
func (r Report) Valid() bool { return len(r.Errors) == 0 }

func (r *Report) addError(layer, nodeID, format string, args ...any) {
	r.Errors = append(r.Errors, Finding{Layer: layer, NodeID: nodeID, Message: fmt.Sprintf(format, args...), Fatal: true})
}

func (r *Report) addWarning(layer, nodeID, format string, args ...any) {
	r.Warnings = append(r.Warnings, Finding{Layer: layer, NodeID: nodeID, Message: fmt.Sprintf(format, args...), Fatal: false})
}

// ResourceLimits configures Layer 4's engine-wide ceilings (spec.md §4.4
// Layer 4); callers that don't need to override the defaults use
// DefaultResourceLimits().
type ResourceLimits struct {
	MaxNodes            int
	MaxEdgesPerNode      int
	MaxLoopIterations   int
	MaxAggregateTokens  int
}

// DefaultResourceLimits returns the spec's default Layer 4 ceilings.
func DefaultResourceLimits() ResourceLimits {
	return ResourceLimits{
		MaxNodes:           500,
		MaxEdgesPerNode:    4,
		MaxLoopIterations:  1000,
		MaxAggregateTokens: 0, // 0 means "no aggregate budget configured"
	}
}

var dangerousPattern = regexp.MustCompile(`(?i)<script|javascript:|` + "`" + `|\x00`)

// Validate runs all four layers over g and returns the accumulated report.
func Validate(g *domain.WorkflowGraph, caps capability.CapabilitySet, caller Caller, limits ResourceLimits) Report {
	var report Report
	validateStructure(g, &report)
	validateSecurity(g, caller, &report)
	validateCapability(g, caps, &report)
	validateResource(g, limits, &report)
	return report
}

// --- Layer 1: Structure ---

func validateStructure(g *domain.WorkflowGraph, r *Report) {
	const layer = "structure"

	starts := 0
	ends := 0
	seenIDs := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			r.addError(layer, "", "node id must not be empty")
			continue
		}
		if seenIDs[n.ID] {
			r.addError(layer, n.ID, "duplicate node id %q", n.ID)
		}
		seenIDs[n.ID] = true

		if n.Kind == domain.NodeKindStart {
			starts++
		}
		if n.Kind == domain.NodeKindEnd {
			ends++
		}

		if entry, ok := registry.Lookup(n.Kind); ok && entry.Schema != nil {
			if err := entry.Schema.Validate(n.Config); err != nil {
				r.addError(layer, n.ID, "config failed schema for kind %s: %v", n.Kind, err)
			}
		} else if !n.Kind.IsValid() {
			r.addError(layer, n.ID, "unknown node kind %q", n.Kind)
		}

		if n.Kind == domain.NodeKindConditional {
			if cond, ok := n.Config["condition"].(string); ok && strings.TrimSpace(cond) != "" {
				if _, err := condition.Parse(cond); err != nil {
					r.addError(layer, n.ID, "malformed condition %q: %v", cond, err)
				}
			}
		}
	}

	if starts != 1 {
		r.addError(layer, "", "graph must have exactly one start node, found %d", starts)
	}
	if ends < 1 {
		r.addError(layer, "", "graph must have at least one end node, found %d", ends)
	}

	for _, e := range g.Edges {
		if e.Source == "END" || e.Target == "END" {
			r.addError(layer, e.ID, "edge references uppercase 'END' — terminal edges must target lowercase 'end'")
			continue
		}
		if _, ok := g.Node(e.Source); !ok {
			r.addError(layer, e.ID, "edge source %q does not exist", e.Source)
		}
		if _, ok := g.Node(e.Target); !ok {
			r.addError(layer, e.ID, "edge target %q does not exist", e.Target)
		}
		if e.Source == e.Target {
			if n, ok := g.Node(e.Source); !ok || n.Kind != domain.NodeKindLoop {
				r.addError(layer, e.ID, "self-loop on node %q is only permitted for loop kind", e.Source)
			}
		}
		if e.Kind == domain.EdgeKindConditional {
			if strings.TrimSpace(e.Condition) == "" {
				r.addError(layer, e.ID, "conditional edge must carry a non-empty condition")
			} else if _, err := condition.Parse(e.Condition); err != nil {
				r.addError(layer, e.ID, "malformed condition %q: %v", e.Condition, err)
			}
		}
	}

	reachable := g.ReachableFromStart()
	for _, n := range g.Nodes {
		if n.Kind == domain.NodeKindStart {
			continue
		}
		if !reachable[n.ID] {
			r.addError(layer, n.ID, "node is not reachable from start")
		}
	}

	for _, n := range g.Nodes {
		if n.Kind == domain.NodeKindEnd {
			continue
		}
		if len(g.OutgoingEdges(n.ID)) == 0 {
			r.addError(layer, n.ID, "non-end node has no outgoing edges")
		}
	}
}

// --- Layer 2: Security ---

func validateSecurity(g *domain.WorkflowGraph, caller Caller, r *Report) {
	const layer = "security"

	for _, n := range g.Nodes {
		if n.Kind.IsTool() {
			name, _ := n.Config["tool_name"].(string)
			if name == "" {
				if names, ok := n.Config["available_tools"].([]any); ok {
					for _, raw := range names {
						if s, ok := raw.(string); ok {
							checkToolAllowed(n.ID, s, caller, r, layer)
						}
					}
				}
			} else {
				checkToolAllowed(n.ID, name, caller, r, layer)
			}
		}

		for key, value := range n.Config {
			if len(key) > 50 || !isAlnumUnderscore(key) {
				r.addError(layer, n.ID, "config key %q exceeds 50 alnum/underscore chars", key)
			}
			checkValueSecurity(n.ID, key, value, r, layer)
		}

		if n.Kind == domain.NodeKindTool || n.Kind == domain.NodeKindTools {
			if url, ok := n.Config["url"].(string); ok && url != "" {
				webSearch, _ := n.Config["enable_web_search"].(bool)
				if !webSearch {
					r.addError(layer, n.ID, "inline HTTP command disallowed unless enable_web_search is set")
				}
			}
		}
	}
}

func checkToolAllowed(nodeID, toolName string, caller Caller, r *Report, layer string) {
	if !caller.HasTool(toolName) {
		r.addError(layer, nodeID, "tool %q is not registered for caller %q", toolName, caller.UserID)
	}
}

func checkValueSecurity(nodeID, key string, value any, r *Report, layer string) {
	switch v := value.(type) {
	case string:
		if dangerousPattern.MatchString(v) {
			r.addError(layer, nodeID, "config %q contains a disallowed literal pattern", key)
		}
		if len(v) > 200 {
			r.addError(layer, nodeID, "config %q exceeds 200 chars", key)
		}
	case []any:
		if len(v) > 10 {
			r.addError(layer, nodeID, "config %q array exceeds 10 items", key)
		}
		for _, item := range v {
			checkValueSecurity(nodeID, key, item, r, layer)
		}
	}
}

func isAlnumUnderscore(s string) bool {
	for _, c := range s {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_') {
			return false
		}
	}
	return true
}

// --- Layer 3: Capability ---

func validateCapability(g *domain.WorkflowGraph, caps capability.CapabilitySet, r *Report) {
	const layer = "capability"

	for _, n := range g.Nodes {
		switch n.Kind {
		case domain.NodeKindRetrieval:
			if !caps.EnableRetrieval {
				r.addError(layer, n.ID, "retrieval node requires enable_retrieval")
			}
		case domain.NodeKindTool, domain.NodeKindTools:
			if !caps.EnableTools {
				r.addError(layer, n.ID, "tool node requires enable_tools")
			}
		}

		if limit, ok := intConfig(n.Config, "max_tool_calls"); ok && limit > caps.MaxToolCalls {
			r.addError(layer, n.ID, "max_tool_calls %d exceeds effective limit %d", limit, caps.MaxToolCalls)
		}
		if limit, ok := intConfig(n.Config, "max_documents"); ok && limit > caps.MaxDocuments {
			r.addError(layer, n.ID, "max_documents %d exceeds effective limit %d", limit, caps.MaxDocuments)
		}
		if limit, ok := intConfig(n.Config, "memory_window"); ok && limit > caps.MemoryWindow {
			r.addError(layer, n.ID, "memory_window %d exceeds effective limit %d", limit, caps.MemoryWindow)
		}

		if streamOnly, ok := n.Config["streaming_only"].(bool); ok && streamOnly && !caps.EnableStreaming {
			r.addError(layer, n.ID, "node requires streaming but enable_streaming is false")
		}
	}
}

func intConfig(cfg map[string]any, key string) (int, bool) {
	v, ok := cfg[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// --- Layer 4: Resource ---

func validateResource(g *domain.WorkflowGraph, limits ResourceLimits, r *Report) {
	const layer = "resource"

	if limits.MaxNodes > 0 && len(g.Nodes) > limits.MaxNodes {
		r.addError(layer, "", "node count %d exceeds configured maximum %d", len(g.Nodes), limits.MaxNodes)
	}
	if limits.MaxEdgesPerNode > 0 && len(g.Edges) > len(g.Nodes)*limits.MaxEdgesPerNode {
		r.addError(layer, "", "edge count %d exceeds node_count * %d", len(g.Edges), limits.MaxEdgesPerNode)
	}

	aggregateTokens := 0
	for _, n := range g.Nodes {
		if n.Kind == domain.NodeKindLoop {
			iterations, ok := intConfig(n.Config, "max_iterations")
			if !ok {
				r.addError(layer, n.ID, "loop node missing required max_iterations")
			} else if limits.MaxLoopIterations > 0 && iterations > limits.MaxLoopIterations {
				r.addError(layer, n.ID, "max_iterations %d exceeds hard cap %d", iterations, limits.MaxLoopIterations)
			}
		}
		if n.Kind.IsModel() {
			if tokens, ok := intConfig(n.Config, "max_tokens"); ok {
				aggregateTokens += tokens
			}
		}
	}
	if limits.MaxAggregateTokens > 0 && aggregateTokens > limits.MaxAggregateTokens {
		r.addError(layer, "", "aggregate max_tokens %d across model nodes exceeds per-execution budget %d", aggregateTokens, limits.MaxAggregateTokens)
	}
}
