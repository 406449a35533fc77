// Package dag orders project reference graphs. Edges point from a
// dependency to its dependent: an edge from A to B means A is built before
// B.
package dag

import (
	"fmt"
	"sort"
	"strings"
)

// CycleError reports nodes that could not be ordered because they lie on
// or behind a cycle.
type CycleError struct {
	// Cycles lists each strongly connected component that forms a cycle,
	// members in insertion order.
	Cycles [][]string
	// Blocked lists nodes that are not on a cycle but depend on one.
	Blocked []string
}

func (e *CycleError) Error() string {
	parts := make([]string, 0, len(e.Cycles))
	for _, c := range e.Cycles {
		loop := append(append([]string(nil), c...), c[0])
		parts = append(parts, strings.Join(loop, " -> "))
	}
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(parts, "; "))
}

// Graph is a directed graph whose nodes keep their insertion order.
type Graph struct {
	adjacency map[string][]string
	nodes     []string
	index     map[string]int
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{
		adjacency: make(map[string][]string),
		index:     make(map[string]int),
	}
}

// AddNode adds a node. Adding an existing node is a no-op.
func (g *Graph) AddNode(name string) {
	if _, ok := g.index[name]; ok {
		return
	}
	g.index[name] = len(g.nodes)
	g.nodes = append(g.nodes, name)
}

// AddEdge adds an edge from -> to, adding both nodes if needed. Duplicate
// edges are ignored.
func (g *Graph) AddEdge(from, to string) {
	g.AddNode(from)
	g.AddNode(to)
	for _, n := range g.adjacency[from] {
		if n == to {
			return
		}
	}
	g.adjacency[from] = append(g.adjacency[from], to)
}

// Has reports whether name is a node.
func (g *Graph) Has(name string) bool {
	_, ok := g.index[name]
	return ok
}

// Nodes returns the nodes in insertion order.
func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

// Successors returns the nodes that depend on name.
func (g *Graph) Successors(name string) []string {
	return append([]string(nil), g.adjacency[name]...)
}

// TopologicalSort orders the graph with Kahn's algorithm. Among ready
// nodes the earliest inserted goes first, so inserting nodes in
// dependency-first discovery order reproduces that order exactly. When the
// graph has cycles the acyclic prefix is returned together with a
// *CycleError describing the rest.
func (g *Graph) TopologicalSort() ([]string, error) {
	if len(g.nodes) == 0 {
		return nil, nil
	}

	inDegree := make(map[string]int, len(g.nodes))
	for _, neighbors := range g.adjacency {
		for _, n := range neighbors {
			inDegree[n]++
		}
	}

	var ready []int
	push := func(node string) {
		i := g.index[node]
		at := sort.SearchInts(ready, i)
		ready = append(ready, 0)
		copy(ready[at+1:], ready[at:])
		ready[at] = i
	}
	for _, node := range g.nodes {
		if inDegree[node] == 0 {
			push(node)
		}
	}

	result := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		node := g.nodes[ready[0]]
		ready = ready[1:]
		result = append(result, node)
		for _, n := range g.adjacency[node] {
			inDegree[n]--
			if inDegree[n] == 0 {
				push(n)
			}
		}
	}

	if len(result) == len(g.nodes) {
		return result, nil
	}
	return result, g.cycleError(result)
}

func (g *Graph) cycleError(ordered []string) *CycleError {
	done := make(map[string]bool, len(ordered))
	for _, n := range ordered {
		done[n] = true
	}
	onCycle := make(map[string]bool)
	err := &CycleError{}
	for _, c := range g.Cycles() {
		err.Cycles = append(err.Cycles, c)
		for _, n := range c {
			onCycle[n] = true
		}
	}
	for _, n := range g.nodes {
		if !done[n] && !onCycle[n] {
			err.Blocked = append(err.Blocked, n)
		}
	}
	return err
}

// Components returns the strongly connected components (Tarjan), each
// with members in insertion order, ordered by their first member.
func (g *Graph) Components() [][]string {
	var (
		counter int
		stack   []string
		onStack = make(map[string]bool)
		low     = make(map[string]int)
		order   = make(map[string]int)
		out     [][]string
	)

	var visit func(string)
	visit = func(v string) {
		counter++
		order[v], low[v] = counter, counter
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.adjacency[v] {
			if _, seen := order[w]; !seen {
				visit(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], order[w])
			}
		}

		if low[v] == order[v] {
			var comp []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			sort.Slice(comp, func(i, j int) bool { return g.index[comp[i]] < g.index[comp[j]] })
			out = append(out, comp)
		}
	}

	for _, n := range g.nodes {
		if _, seen := order[n]; !seen {
			visit(n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return g.index[out[i][0]] < g.index[out[j][0]] })
	return out
}

// Cycles returns the components that form cycles: those with more than
// one member, and single nodes with an edge to themselves.
func (g *Graph) Cycles() [][]string {
	var out [][]string
	for _, c := range g.Components() {
		if len(c) > 1 || g.selfLoop(c[0]) {
			out = append(out, c)
		}
	}
	return out
}

func (g *Graph) selfLoop(n string) bool {
	for _, w := range g.adjacency[n] {
		if w == n {
			return true
		}
	}
	return false
}
