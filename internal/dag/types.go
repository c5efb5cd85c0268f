package dag

import "sync"

// Graph is a collection of nodes and their dependencies, representing a DAG.
// All operations on the graph are concurrency-safe. Every listing follows
// the order in which nodes were added.
type Graph struct {
	mutex sync.RWMutex
	nodes map[string]*node
	order []*node
}

// node represents a single vertex in the graph. It is un-exported to
// enforce interaction with the graph via the public API (using string IDs),
// not by direct struct manipulation.
type node struct {
	id    string
	index int
	// deps holds the nodes this node depends on (predecessors).
	deps map[string]*node
	// dependents holds the nodes that depend on this node (successors).
	dependents map[string]*node
}

// CycleError reports a cycle. Node is the first node, in insertion order,
// that lies on one.
type CycleError struct {
	Node string
}

func (e *CycleError) Error() string {
	return "cycle detected involving node '" + e.Node + "'"
}
