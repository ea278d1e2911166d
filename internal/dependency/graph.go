package dependency

import (
	"fmt"
	"sort"
	"strings"
)

// NodeID is the unique identifier for a node inside a dependency graph.
// Plan actions use their action ID.
type NodeID string

// NodeKind categorises nodes.
type NodeKind int

const (
	KindUnknown NodeKind = iota
	KindApply
	KindDelete
	KindNamespace
)

// Node is one unit of work together with its dependency list.
type Node struct {
	ID           NodeID
	FriendlyName string
	Kind         NodeKind
	DependsOn    []NodeID
}

// CycleError is returned by TopologicalOrder when the graph is not a DAG.
type CycleError struct {
	Nodes []NodeID
}

func (e *CycleError) Error() string {
	ids := make([]string, len(e.Nodes))
	for i, id := range e.Nodes {
		ids[i] = string(id)
	}
	return fmt.Sprintf("dependency cycle between %s", strings.Join(ids, ", "))
}

// Graph is a small helper to answer dependency queries. It is *not*
// thread-safe by itself; callers must synchronise if they write concurrently.
type Graph struct {
	nodes map[NodeID]*Node
	order []NodeID
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// AddNode adds (or replaces) a node in the graph. Insertion order is kept
// and used to break ties in TopologicalOrder.
func (g *Graph) AddNode(n Node) {
	if g.nodes == nil {
		g.nodes = make(map[NodeID]*Node)
	}
	if _, exists := g.nodes[n.ID]; !exists {
		g.order = append(g.order, n.ID)
	}
	// Copy to avoid external mutations
	copied := n
	copied.DependsOn = append([]NodeID(nil), n.DependsOn...)
	g.nodes[n.ID] = &copied
}

// AddEdge records that from depends on to. Unknown nodes are ignored.
func (g *Graph) AddEdge(from, to NodeID) {
	n, ok := g.nodes[from]
	if !ok || from == to {
		return
	}
	if _, ok := g.nodes[to]; !ok {
		return
	}
	for _, dep := range n.DependsOn {
		if dep == to {
			return
		}
	}
	n.DependsOn = append(n.DependsOn, to)
}

// Get returns a pointer to the stored node or nil if it does not exist.
func (g *Graph) Get(id NodeID) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Dependencies returns a slice of immediate dependency IDs for the given node.
func (g *Graph) Dependencies(id NodeID) []NodeID {
	if n, ok := g.nodes[id]; ok {
		// Return a copy to avoid callers modifying internal slice.
		depsCopy := make([]NodeID, len(n.DependsOn))
		copy(depsCopy, n.DependsOn)
		return depsCopy
	}
	return nil
}

// Dependents returns all node IDs that have a direct dependency on the given
// node, in insertion order.
func (g *Graph) Dependents(id NodeID) []NodeID {
	var res []NodeID
	for _, nid := range g.order {
		for _, dep := range g.nodes[nid].DependsOn {
			if dep == id {
				res = append(res, nid)
				break
			}
		}
	}
	return res
}

// TransitiveDependents returns every node that directly or indirectly
// depends on id.
func (g *Graph) TransitiveDependents(id NodeID) []NodeID {
	seen := map[NodeID]bool{}
	queue := []NodeID{id}
	var res []NodeID
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, dep := range g.Dependents(cur) {
			if !seen[dep] {
				seen[dep] = true
				res = append(res, dep)
				queue = append(queue, dep)
			}
		}
	}
	return res
}

// TopologicalOrder returns the node IDs with every node after all of its
// dependencies. Among ready nodes insertion order wins, so the result is
// deterministic. Dependencies on unknown nodes are ignored.
func (g *Graph) TopologicalOrder() ([]NodeID, error) {
	indegree := make(map[NodeID]int, len(g.nodes))
	for _, id := range g.order {
		for _, dep := range g.nodes[id].DependsOn {
			if _, ok := g.nodes[dep]; ok {
				indegree[id]++
			}
		}
	}

	position := make(map[NodeID]int, len(g.order))
	for i, id := range g.order {
		position[id] = i
	}

	var ready []NodeID
	for _, id := range g.order {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	out := make([]NodeID, 0, len(g.nodes))
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		out = append(out, cur)
		for _, dependent := range g.Dependents(cur) {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
		sort.SliceStable(ready, func(i, j int) bool { return position[ready[i]] < position[ready[j]] })
	}

	if len(out) != len(g.nodes) {
		var cycle []NodeID
		for _, id := range g.order {
			if indegree[id] > 0 {
				cycle = append(cycle, id)
			}
		}
		return nil, &CycleError{Nodes: cycle}
	}
	return out, nil
}
