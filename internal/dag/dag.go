// Package dag provides the dependency graph between metrics.
// It supports cycle detection, deterministic topological sorting and
// dependency levels.
package dag

import (
	"fmt"
	"sort"
	"strings"
)

// Node represents a node in the DAG.
type Node struct {
	// ID is the unique identifier (metric name)
	ID string
	// Data holds arbitrary node data
	Data any
}

// Graph is a directed graph where an edge parent -> child means the child
// depends on the parent.
type Graph struct {
	nodes   map[string]*Node
	edges   map[string][]string // parent -> children (dependents)
	parents map[string][]string // child -> parents (dependencies)
}

// CycleError reports a dependency cycle. Path starts and ends with the same
// node, e.g. [a b a].
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return "cycle detected: " + strings.Join(e.Path, " -> ")
}

// Members returns the distinct nodes on the cycle, sorted.
func (e *CycleError) Members() []string {
	seen := make(map[string]bool, len(e.Path))
	var out []string
	for _, id := range e.Path {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// NewGraph creates a new empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:   make(map[string]*Node),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}
}

// AddNode adds a node to the graph, replacing the data of an existing node.
func (g *Graph) AddNode(id string, data any) {
	if n, exists := g.nodes[id]; exists {
		n.Data = data
		return
	}
	g.nodes[id] = &Node{ID: id, Data: data}
	g.edges[id] = []string{}
	g.parents[id] = []string{}
}

// AddEdge adds a directed edge from parent to child (child depends on parent).
// Self-edges are kept so they surface as one-node cycles.
func (g *Graph) AddEdge(parentID, childID string) error {
	if _, exists := g.nodes[parentID]; !exists {
		return fmt.Errorf("parent node %q does not exist", parentID)
	}
	if _, exists := g.nodes[childID]; !exists {
		return fmt.Errorf("child node %q does not exist", childID)
	}

	if !contains(g.edges[parentID], childID) {
		g.edges[parentID] = append(g.edges[parentID], childID)
	}
	if !contains(g.parents[childID], parentID) {
		g.parents[childID] = append(g.parents[childID], parentID)
	}
	return nil
}

// GetNode returns a node by ID.
func (g *Graph) GetNode(id string) (*Node, bool) {
	node, exists := g.nodes[id]
	return node, exists
}

// GetParents returns the direct dependencies of a node, sorted.
func (g *Graph) GetParents(id string) []string {
	return sorted(g.parents[id])
}

// GetChildren returns the direct dependents of a node, sorted.
func (g *Graph) GetChildren(id string) []string {
	return sorted(g.edges[id])
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	count := 0
	for _, children := range g.edges {
		count += len(children)
	}
	return count
}

// visit states for the three-color depth-first search.
const (
	white = iota // unvisited
	grey         // on the current path
	black        // finished
)

// Cycles returns one cycle per back edge found by a depth-first search that
// starts from nodes in ID order. Each cycle path starts and ends with the
// same node. An acyclic graph returns nil.
func (g *Graph) Cycles() []*CycleError {
	color := make(map[string]int, len(g.nodes))
	var stack []string
	var cycles []*CycleError

	var dfs func(id string)
	dfs = func(id string) {
		color[id] = grey
		stack = append(stack, id)

		for _, child := range sorted(g.edges[id]) {
			switch color[child] {
			case white:
				dfs(child)
			case grey:
				start := len(stack) - 1
				for stack[start] != child {
					start--
				}
				path := append([]string(nil), stack[start:]...)
				cycles = append(cycles, &CycleError{Path: append(path, child)})
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
	}

	for _, id := range g.ids() {
		if color[id] == white {
			dfs(id)
		}
	}
	return cycles
}

// HasCycle returns true if the graph contains a cycle, along with the first
// cycle path found.
func (g *Graph) HasCycle() (bool, []string) {
	cycles := g.Cycles()
	if len(cycles) == 0 {
		return false, nil
	}
	return true, cycles[0].Path
}

// TopologicalSort returns nodes in topological order (dependencies before
// dependents). Nodes are visited in ID order and so are their parents, so
// unrelated nodes come out alphabetically. Returns a *CycleError if the
// graph contains a cycle.
func (g *Graph) TopologicalSort() ([]*Node, error) {
	if cycles := g.Cycles(); len(cycles) > 0 {
		return nil, cycles[0]
	}

	done := make(map[string]bool, len(g.nodes))
	result := make([]*Node, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if done[id] {
			return
		}
		done[id] = true
		for _, parentID := range sorted(g.parents[id]) {
			visit(parentID)
		}
		result = append(result, g.nodes[id])
	}

	for _, id := range g.ids() {
		visit(id)
	}
	return result, nil
}

// GetExecutionLevels returns nodes grouped by dependency depth.
// Level 0 contains nodes with no dependencies; a node at level N depends
// only on nodes below N.
func (g *Graph) GetExecutionLevels() ([][]string, error) {
	if cycles := g.Cycles(); len(cycles) > 0 {
		return nil, cycles[0]
	}

	assigned := make(map[string]int, len(g.nodes))
	var getLevel func(id string) int
	getLevel = func(id string) int {
		if level, ok := assigned[id]; ok {
			return level
		}
		level := 0
		for _, parentID := range g.parents[id] {
			if l := getLevel(parentID) + 1; l > level {
				level = l
			}
		}
		assigned[id] = level
		return level
	}

	maxLevel := -1
	for _, id := range g.ids() {
		if level := getLevel(id); level > maxLevel {
			maxLevel = level
		}
	}

	levels := make([][]string, maxLevel+1)
	for _, id := range g.ids() {
		levels[assigned[id]] = append(levels[assigned[id]], id)
	}
	return levels, nil
}

// GetAffectedNodes returns the given nodes plus everything downstream of
// them, sorted.
func (g *Graph) GetAffectedNodes(ids []string) []string {
	affected := make(map[string]bool)

	var mark func(id string)
	mark = func(id string) {
		if affected[id] {
			return
		}
		affected[id] = true
		for _, childID := range g.edges[id] {
			mark(childID)
		}
	}

	for _, id := range ids {
		if _, exists := g.nodes[id]; exists {
			mark(id)
		}
	}
	return keys(affected)
}

// GetUpstreamNodes returns every transitive dependency of id, sorted.
func (g *Graph) GetUpstreamNodes(id string) []string {
	upstream := make(map[string]bool)

	var mark func(nodeID string)
	mark = func(nodeID string) {
		for _, parentID := range g.parents[nodeID] {
			if !upstream[parentID] {
				upstream[parentID] = true
				mark(parentID)
			}
		}
	}

	mark(id)
	delete(upstream, id)
	return keys(upstream)
}

// Without returns a copy of the graph with the given nodes and their edges
// removed.
func (g *Graph) Without(ids []string) *Graph {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	out := NewGraph()
	for _, id := range g.ids() {
		if !drop[id] {
			out.AddNode(id, g.nodes[id].Data)
		}
	}
	for _, id := range g.ids() {
		if drop[id] {
			continue
		}
		for _, childID := range g.edges[id] {
			if !drop[childID] {
				_ = out.AddEdge(id, childID)
			}
		}
	}
	return out
}

func (g *Graph) ids() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func sorted(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}

func keys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// contains checks if a slice contains a string.
func contains(slice []string, str string) bool {
	for _, s := range slice {
		if s == str {
			return true
		}
	}
	return false
}
