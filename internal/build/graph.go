package build

import (
	"projd/internal/dag"
	"projd/internal/paths"
	"projd/internal/projconfig"
)

// node is one configured project in the reference graph.
type node struct {
	key    string
	parsed *projconfig.Parsed
	// upstream holds the referenced nodes in declaration order. Missing
	// configs are not nodes; the engine reports them.
	upstream []*node
}

func (n *node) path() string { return n.parsed.ConfigPath }

// graph is the reference graph reachable from the requested roots.
type graph struct {
	nodes   map[string]*node
	dag     *dag.Graph
	missing []string
}

// collect walks the references of roots depth first. Nodes enter the dag
// in post order, so the Kahn order with insertion tie-break is the
// dependency-first discovery order.
func (b *Builder) collect(roots []string) *graph {
	g := &graph{nodes: make(map[string]*node), dag: dag.New()}
	type edge struct{ from, to string }
	var edges []edge

	var visit func(path string) *node
	visit = func(path string) *node {
		key := b.fs.Canonical(paths.Normalize(path))
		if n, ok := g.nodes[key]; ok {
			return n
		}
		parsed := b.loader.Load(path)
		if !parsed.Exists {
			return nil
		}
		n := &node{key: key, parsed: parsed}
		g.nodes[key] = n
		for _, ref := range parsed.References {
			up := visit(ref.Path)
			if up == nil {
				continue
			}
			n.upstream = append(n.upstream, up)
			edges = append(edges, edge{from: up.key, to: key})
		}
		g.dag.AddNode(key)
		return n
	}

	for _, root := range roots {
		if visit(root) == nil {
			g.missing = append(g.missing, paths.Normalize(root))
		}
	}
	for _, e := range edges {
		g.dag.AddEdge(e.from, e.to)
	}
	return g
}

// displayPath maps a node key back to its config path.
func (g *graph) displayPath(key string) string {
	if n, ok := g.nodes[key]; ok {
		return n.path()
	}
	return key
}
