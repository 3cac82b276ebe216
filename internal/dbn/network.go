package dbn

// Network is the fixed topology of the model: the slice template's nodes and
// edges. Constructed once by Build and read-only for the lifetime of a run.
type Network struct {
	nodes    map[string]Node
	order    []string
	edges    []Edge
	incoming map[string][]Edge
	outgoing map[string][]Edge
	intraTop []string // hidden-node ids in intra-slice topological order
}

// Build validates the topology and returns an immutable Network.
// Validation failures are ConfigError: empty or duplicate domains, edges
// referencing unknown nodes, hidden nodes depending on observed ones, or a
// cycle among intra-slice edges.
func Build(nodes []Node, edges []Edge) (*Network, error) {
	n := &Network{
		nodes:    make(map[string]Node, len(nodes)),
		incoming: make(map[string][]Edge),
		outgoing: make(map[string][]Edge),
	}

	for _, node := range nodes {
		if node.ID == "" {
			return nil, configErrorf("node with empty id")
		}
		if _, dup := n.nodes[node.ID]; dup {
			return nil, configErrorf("duplicate node %q", node.ID)
		}
		if len(node.Domain) == 0 {
			return nil, configErrorf("node %q has an empty domain", node.ID)
		}
		seen := make(map[string]struct{}, len(node.Domain))
		for _, l := range node.Domain {
			if _, dup := seen[l]; dup {
				return nil, configErrorf("node %q repeats domain label %q", node.ID, l)
			}
			seen[l] = struct{}{}
		}
		n.nodes[node.ID] = node
		n.order = append(n.order, node.ID)
	}

	for _, e := range edges {
		parent, ok := n.nodes[e.Parent]
		if !ok {
			return nil, configErrorf("edge references unknown parent %q", e.Parent)
		}
		if _, ok := n.nodes[e.Child]; !ok {
			return nil, configErrorf("edge references unknown child %q", e.Child)
		}
		if e.Lag != LagIntra && e.Lag != LagInter {
			return nil, configErrorf("edge %s->%s has unsupported lag %d", e.Parent, e.Child, e.Lag)
		}
		if parent.Role == RoleObserved {
			return nil, configErrorf("node %q cannot depend on observed node %q", e.Child, e.Parent)
		}
		n.edges = append(n.edges, e)
		n.incoming[e.Child] = append(n.incoming[e.Child], e)
		n.outgoing[e.Parent] = append(n.outgoing[e.Parent], e)
	}

	top, err := n.intraTopoOrder()
	if err != nil {
		return nil, err
	}
	n.intraTop = top

	return n, nil
}

// intraTopoOrder runs Kahn's algorithm over the lag-0 edges between hidden
// nodes. A leftover node means an intra-slice cycle.
func (n *Network) intraTopoOrder() ([]string, error) {
	indeg := make(map[string]int)
	next := make(map[string][]string)
	for _, id := range n.order {
		if n.nodes[id].Role == RoleHidden {
			indeg[id] = 0
		}
	}
	for _, e := range n.edges {
		if e.Lag != LagIntra {
			continue
		}
		if n.nodes[e.Parent].Role != RoleHidden || n.nodes[e.Child].Role != RoleHidden {
			continue
		}
		indeg[e.Child]++
		next[e.Parent] = append(next[e.Parent], e.Child)
	}

	var queue, out []string
	for _, id := range n.order {
		if deg, ok := indeg[id]; ok && deg == 0 {
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		out = append(out, id)
		for _, c := range next[id] {
			indeg[c]--
			if indeg[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	if len(out) != len(indeg) {
		return nil, configErrorf("intra-slice cycle among hidden nodes")
	}
	return out, nil
}

// Node returns the node with the given id.
func (n *Network) Node(id string) (Node, bool) {
	node, ok := n.nodes[id]
	return node, ok
}

// Nodes returns all nodes in construction order.
func (n *Network) Nodes() []Node {
	out := make([]Node, 0, len(n.order))
	for _, id := range n.order {
		out = append(out, n.nodes[id])
	}
	return out
}

// Edges returns all edges in construction order.
func (n *Network) Edges() []Edge {
	out := make([]Edge, len(n.edges))
	copy(out, n.edges)
	return out
}

// Hidden returns the hidden nodes in construction order.
func (n *Network) Hidden() []Node {
	var out []Node
	for _, id := range n.order {
		if n.nodes[id].Role == RoleHidden {
			out = append(out, n.nodes[id])
		}
	}
	return out
}

// Observed returns the observed nodes in construction order.
func (n *Network) Observed() []Node {
	var out []Node
	for _, id := range n.order {
		if n.nodes[id].Role == RoleObserved {
			out = append(out, n.nodes[id])
		}
	}
	return out
}

// Parents returns the incoming edges of a node in construction order.
func (n *Network) Parents(id string) []Edge {
	return n.incoming[id]
}

// Children returns the outgoing edges of a node in construction order.
func (n *Network) Children(id string) []Edge {
	return n.outgoing[id]
}

// hiddenTopo returns hidden-node ids ordered so that intra-slice parents come
// before their children.
func (n *Network) hiddenTopo() []string {
	return n.intraTop
}
