// Package capability implements the CapabilitySet value type: the feature
// flags and numeric limits that shape how a workflow graph is compiled,
// validated, and executed (SPEC_FULL.md §4.1). It is deliberately free of
// I/O and safe for concurrent reads — every operation is a pure function of
// its inputs, grounded on the original's workflow_capabilities.py dataclass.
package capability

import "github.com/flowcore/chatflow/internal/domain"

// CapabilitySet is the union of a workflow's feature flags, numeric limits,
// and an opaque extension map carried through unchanged by callers that
// need to stash workflow-type-specific settings the core doesn't model.
type CapabilitySet struct {
	EnableRetrieval bool
	EnableTools     bool
	EnableMemory    bool
	EnableWebSearch bool
	EnableStreaming bool
	EnableCaching   bool
	EnableTracing   bool

	MaxToolCalls int
	MaxDocuments int
	MemoryWindow int

	Extensions map[string]any
}

// FromWorkflowType returns the preset CapabilitySet for a workflow type, per
// SPEC_FULL.md §4.1 / spec.md §4.1. Any type outside the closed set falls
// back to the plain preset.
func FromWorkflowType(t domain.WorkflowType) CapabilitySet {
	switch t {
	case domain.WorkflowTypeRAG:
		return CapabilitySet{
			EnableMemory:    true,
			EnableRetrieval: true,
			MaxDocuments:    10,
			MemoryWindow:    30,
			Extensions:      map[string]any{},
		}
	case domain.WorkflowTypeTools:
		return CapabilitySet{
			EnableMemory: true,
			EnableTools:  true,
			MaxToolCalls: 10,
			MemoryWindow: 100,
			Extensions:   map[string]any{},
		}
	case domain.WorkflowTypeFull:
		return CapabilitySet{
			EnableMemory:    true,
			EnableRetrieval: true,
			EnableTools:     true,
			MaxToolCalls:    5,
			MaxDocuments:    10,
			MemoryWindow:    100,
			Extensions:      map[string]any{},
		}
	case domain.WorkflowTypePlain:
		fallthrough
	default:
		return CapabilitySet{
			EnableMemory: true,
			Extensions:   map[string]any{},
		}
	}
}

// FromTemplateConfiguration derives a CapabilitySet for the capability-based
// compiler mode (spec.md §4.3 "all other templates"): it starts from the
// template's declared WorkflowType preset, then turns on retrieval/tools
// whenever the template lists required retrievers/tools, since a template
// that names them obviously intends to use them even if its declared type
// doesn't mention it.
func FromTemplateConfiguration(tmpl domain.WorkflowTemplate) CapabilitySet {
	cs := FromWorkflowType(tmpl.WorkflowType)
	if len(tmpl.RequiredRetrievers) > 0 {
		cs.EnableRetrieval = true
		if cs.MaxDocuments == 0 {
			cs.MaxDocuments = 10
		}
	}
	if len(tmpl.RequiredTools) > 0 {
		cs.EnableTools = true
		if cs.MaxToolCalls == 0 {
			cs.MaxToolCalls = 10
		}
	}
	for k, v := range tmpl.DefaultParams {
		cs.Extensions[k] = v
	}
	return cs
}

// MergeWith combines cs with other: all seven boolean flags union (true
// wins), numeric limits take the max, and the extension map overlays other's
// entries on top of cs's (other wins on key conflict). The original
// dataclass's merge_with intersects enable_streaming and enable_caching
// instead; DESIGN.md (C1, "merge semantics for enable_streaming /
// enable_caching") records why this type unions them too.
func (cs CapabilitySet) MergeWith(other CapabilitySet) CapabilitySet {
	merged := CapabilitySet{
		EnableRetrieval: cs.EnableRetrieval || other.EnableRetrieval,
		EnableTools:     cs.EnableTools || other.EnableTools,
		EnableMemory:    cs.EnableMemory || other.EnableMemory,
		EnableWebSearch: cs.EnableWebSearch || other.EnableWebSearch,
		EnableStreaming: cs.EnableStreaming || other.EnableStreaming,
		EnableCaching:   cs.EnableCaching || other.EnableCaching,
		EnableTracing:   cs.EnableTracing || other.EnableTracing,

		MaxToolCalls: max(cs.MaxToolCalls, other.MaxToolCalls),
		MaxDocuments: max(cs.MaxDocuments, other.MaxDocuments),
		MemoryWindow: max(cs.MemoryWindow, other.MemoryWindow),

		Extensions: make(map[string]any, len(cs.Extensions)+len(other.Extensions)),
	}
	for k, v := range cs.Extensions {
		merged.Extensions[k] = v
	}
	for k, v := range other.Extensions {
		merged.Extensions[k] = v
	}
	return merged
}

// WorkflowTypeOf reports the WorkflowType this CapabilitySet's flags/limits
// best describe, for reporting purposes only. It is the single source of
// truth when a caller needs a type label derived from capabilities rather
// than the template's own stored WorkflowType (which persistence still uses
// verbatim — see spec.md's Design Notes on inconsistent workflow_type
// derivation).
func (cs CapabilitySet) WorkflowTypeOf() domain.WorkflowType {
	switch {
	case cs.EnableRetrieval && cs.EnableTools:
		return domain.WorkflowTypeFull
	case cs.EnableRetrieval:
		return domain.WorkflowTypeRAG
	case cs.EnableTools:
		return domain.WorkflowTypeTools
	default:
		return domain.WorkflowTypePlain
	}
}

// Clone returns a deep-enough copy of cs with its own Extensions map, so a
// caller can mutate the clone without affecting cs.
func (cs CapabilitySet) Clone() CapabilitySet {
	clone := cs
	clone.Extensions = make(map[string]any, len(cs.Extensions))
	for k, v := range cs.Extensions {
		clone.Extensions[k] = v
	}
	return clone
}
