// Package workflow is chatflow's public graph-construction facade: a
// fluent builder over internal/domain's NodeSpec/EdgeSpec, for callers who
// want to submit a raw inline graph (engine.Request's Nodes/Edges/
// Capabilities variant, spec.md §7 request variant (c)) without importing
// internal packages directly.
//
// Grounded on the teacher's pkg/workflow (DefinitionBuilder/NodeDefBuilder/
// EdgeDefBuilder/TriggerDefBuilder over a YAML-style Definition/NodeDef/
// EdgeDef/TriggerDef), retargeted from the teacher's generic handler+config
// node model to chatflow's typed domain.NodeKind/domain.EdgeKind and
// dropping TriggerDef: chatflow workflows are triggered by calling
// engine.Engine.Execute directly, not by a registered Trigger type.
package workflow

import "github.com/flowcore/chatflow/internal/domain"

// Node mirrors domain.NodeSpec with a string-typed Kind so callers outside
// internal/domain can express it without importing domain.NodeKind.
type Node struct {
	ID     string
	Kind   string
	Config map[string]any
	Label  string
}

// Edge mirrors domain.EdgeSpec.
type Edge struct {
	ID        string
	From      string
	To        string
	Kind      string
	Condition string
	Label     string
}

func (n Node) toSpec() domain.NodeSpec {
	return domain.NodeSpec{ID: n.ID, Kind: domain.NodeKind(n.Kind), Config: n.Config, Label: n.Label}
}

func (e Edge) toSpec() domain.EdgeSpec {
	kind := domain.EdgeKindDefault
	if e.Kind != "" {
		kind = domain.EdgeKind(e.Kind)
	}
	return domain.EdgeSpec{ID: e.ID, Source: e.From, Target: e.To, Kind: kind, Condition: e.Condition, Label: e.Label}
}
