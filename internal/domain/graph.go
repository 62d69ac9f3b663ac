package domain

// WorkflowGraph is the compiled, immutable form of a workflow: a flat node
// array plus an edge list, with adjacency maps computed once at build time.
//
// Nodes are referenced by id throughout the engine and validator; the graph
// never holds owning pointers between nodes (see SPEC_FULL.md §9, "cyclic
// references").
type WorkflowGraph struct {
	Nodes    []NodeSpec
	Edges    []EdgeSpec
	Metadata map[string]any

	adjacency        map[string][]EdgeSpec
	reverseAdjacency map[string][]EdgeSpec
	byID             map[string]NodeSpec
}

// NewWorkflowGraph builds a WorkflowGraph and computes its adjacency maps.
func NewWorkflowGraph(nodes []NodeSpec, edges []EdgeSpec, metadata map[string]any) *WorkflowGraph {
	g := &WorkflowGraph{
		Nodes:            nodes,
		Edges:            edges,
		Metadata:         metadata,
		adjacency:        make(map[string][]EdgeSpec, len(nodes)),
		reverseAdjacency: make(map[string][]EdgeSpec, len(nodes)),
		byID:             make(map[string]NodeSpec, len(nodes)),
	}
	for _, n := range nodes {
		g.byID[n.ID] = n
	}
	for _, e := range edges {
		g.adjacency[e.Source] = append(g.adjacency[e.Source], e)
		g.reverseAdjacency[e.Target] = append(g.reverseAdjacency[e.Target], e)
	}
	return g
}

// Node returns the node with the given id, if present.
func (g *WorkflowGraph) Node(id string) (NodeSpec, bool) {
	n, ok := g.byID[id]
	return n, ok
}

// OutgoingEdges returns the edges leaving the given node, in declaration order.
func (g *WorkflowGraph) OutgoingEdges(nodeID string) []EdgeSpec {
	return g.adjacency[nodeID]
}

// IncomingEdges returns the edges entering the given node, in declaration order.
func (g *WorkflowGraph) IncomingEdges(nodeID string) []EdgeSpec {
	return g.reverseAdjacency[nodeID]
}

// StartNode returns the graph's sole start node, if any.
func (g *WorkflowGraph) StartNode() (NodeSpec, bool) {
	for _, n := range g.Nodes {
		if n.Kind == NodeKindStart {
			return n, true
		}
	}
	return NodeSpec{}, false
}

// ReachableFromStart returns the set of node ids reachable from the graph's
// start node via a breadth-first walk of the adjacency map.
func (g *WorkflowGraph) ReachableFromStart() map[string]bool {
	start, ok := g.StartNode()
	reachable := make(map[string]bool, len(g.Nodes))
	if !ok {
		return reachable
	}
	queue := []string{start.ID}
	reachable[start.ID] = true
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, e := range g.adjacency[id] {
			if !reachable[e.Target] {
				reachable[e.Target] = true
				queue = append(queue, e.Target)
			}
		}
	}
	return reachable
}
