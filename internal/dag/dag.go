package dag

import (
	"fmt"
	"sort"
)

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node),
	}
}

// AddNode adds a new node with the given ID to the graph. If a node with
// the same ID already exists, the function does nothing.
func (g *Graph) AddNode(id string) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}
	n := &node{
		id:         id,
		index:      len(g.order),
		deps:       make(map[string]*node),
		dependents: make(map[string]*node),
	}
	g.nodes[id] = n
	g.order = append(g.order, n)
}

// Has reports whether a node with the given ID exists.
func (g *Graph) Has(id string) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.order)
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return &CycleError{Node: fromID}
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode
	return nil
}

// Dependencies returns the IDs of the nodes the given node depends on.
func (g *Graph) Dependencies(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return ids(n.deps), nil
}

// Dependents returns the IDs of the nodes that depend on the given node.
func (g *Graph) Dependents(id string) ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return ids(n.dependents), nil
}

func ids(set map[string]*node) []string {
	nodes := make([]*node, 0, len(set))
	for _, n := range set {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].index < nodes[j].index })
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.id
	}
	return out
}

// DetectCycles checks the graph for any cycles. It returns a *CycleError
// naming a node on the first cycle found.
func (g *Graph) DetectCycles() error {
	_, err := g.TopologicalOrder()
	return err
}

// TopologicalOrder lists every node after all of its dependencies. Among
// nodes whose dependencies are satisfied, the earliest added comes first,
// so a graph without edges keeps insertion order.
func (g *Graph) TopologicalOrder() ([]string, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	pending := make(map[string]int, len(g.order))
	for _, n := range g.order {
		pending[n.id] = len(n.deps)
	}
	done := make(map[string]bool, len(g.order))
	out := make([]string, 0, len(g.order))

	// Each pass emits the first ready node; graphs here are small.
	for len(out) < len(g.order) {
		var next *node
		for _, n := range g.order {
			if !done[n.id] && pending[n.id] == 0 {
				next = n
				break
			}
		}
		if next == nil {
			return nil, g.cycleError(done)
		}
		done[next.id] = true
		out = append(out, next.id)
		for id := range next.dependents {
			pending[id]--
		}
	}
	return out, nil
}

// cycleError names the first stuck node that lies on a cycle. Stuck nodes
// only downstream of a cycle are skipped.
func (g *Graph) cycleError(done map[string]bool) error {
	var first string
	for _, n := range g.order {
		if done[n.id] {
			continue
		}
		if first == "" {
			first = n.id
		}
		if g.onCycle(n) {
			return &CycleError{Node: n.id}
		}
	}
	return &CycleError{Node: first}
}

// onCycle reports whether start can reach itself.
func (g *Graph) onCycle(start *node) bool {
	seen := make(map[string]bool)
	stack := []*node{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for id, d := range n.dependents {
			if id == start.id {
				return true
			}
			if !seen[id] {
				seen[id] = true
				stack = append(stack, d)
			}
		}
	}
	return false
}
