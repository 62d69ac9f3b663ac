package workflow

import "github.com/flowcore/chatflow/internal/domain"

// GraphBuilder assembles a raw node/edge graph fluently, then emits it as
// the Nodes/Edges pair engine.Request expects for an ad-hoc (non-template)
// execution, or as a compiled *domain.WorkflowGraph for local inspection.
type GraphBuilder struct {
	nodes []Node
	edges []Edge
}

func NewGraphBuilder() *GraphBuilder { return &GraphBuilder{} }

func (b *GraphBuilder) AddNode(n Node) *GraphBuilder {
	b.nodes = append(b.nodes, n)
	return b
}

func (b *GraphBuilder) AddEdge(e Edge) *GraphBuilder {
	b.edges = append(b.edges, e)
	return b
}

// Build returns the accumulated nodes and edges as domain types, ready to
// populate engine.Request.Nodes / engine.Request.Edges.
func (b *GraphBuilder) Build() ([]domain.NodeSpec, []domain.EdgeSpec) {
	nodes := make([]domain.NodeSpec, len(b.nodes))
	for i, n := range b.nodes {
		nodes[i] = n.toSpec()
	}
	edges := make([]domain.EdgeSpec, len(b.edges))
	for i, e := range b.edges {
		edges[i] = e.toSpec()
	}
	return nodes, edges
}

// Graph compiles the accumulated nodes and edges into a *domain.WorkflowGraph.
func (b *GraphBuilder) Graph(metadata map[string]any) *domain.WorkflowGraph {
	nodes, edges := b.Build()
	return domain.NewWorkflowGraph(nodes, edges, metadata)
}

// NodeBuilder constructs a single Node fluently.
type NodeBuilder struct{ n Node }

func NewNodeBuilder(id string, kind string) *NodeBuilder {
	return &NodeBuilder{n: Node{ID: id, Kind: kind}}
}

func (b *NodeBuilder) Label(label string) *NodeBuilder { b.n.Label = label; return b }

func (b *NodeBuilder) ConfigKV(k string, v any) *NodeBuilder {
	if b.n.Config == nil {
		b.n.Config = map[string]any{}
	}
	b.n.Config[k] = v
	return b
}

func (b *NodeBuilder) Build() Node { return b.n }

// EdgeBuilder constructs a single Edge fluently.
type EdgeBuilder struct{ e Edge }

func NewEdgeBuilder(from, to string) *EdgeBuilder {
	return &EdgeBuilder{e: Edge{From: from, To: to, Kind: string(domain.EdgeKindDefault)}}
}

func (b *EdgeBuilder) ID(id string) *EdgeBuilder          { b.e.ID = id; return b }
func (b *EdgeBuilder) Kind(kind string) *EdgeBuilder      { b.e.Kind = kind; return b }
func (b *EdgeBuilder) Condition(expr string) *EdgeBuilder { b.e.Condition = expr; return b }
func (b *EdgeBuilder) Label(label string) *EdgeBuilder    { b.e.Label = label; return b }
func (b *EdgeBuilder) Build() Edge                        { return b.e }
