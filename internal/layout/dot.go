package layout

import (
	"github.com/awalterschulze/gographviz"
)

// dotGraph collects what a layout needs from a DOT document. Unlike
// gographviz.Graph it accepts any attribute name, so layout services may
// annotate nodes with their own keys.
type dotGraph struct {
	name  string
	attrs map[string]string
	nodes map[string]map[string]string
	order []string
	edges []dotEdge
}

type dotEdge struct {
	src, dst string
}

var _ gographviz.Interface = (*dotGraph)(nil)

// readDOT tokenizes and walks raw. Errors come only from the parser.
func readDOT(raw string) (*dotGraph, error) {
	ast, err := gographviz.ParseString(raw)
	if err != nil {
		return nil, err
	}
	g := &dotGraph{
		attrs: make(map[string]string),
		nodes: make(map[string]map[string]string),
	}
	if err := gographviz.Analyse(ast, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *dotGraph) SetStrict(bool) error { return nil }
func (g *dotGraph) SetDir(bool) error    { return nil }

func (g *dotGraph) SetName(name string) error {
	g.name = name
	return nil
}

// AddNode merges attributes when a node is mentioned more than once
func (g *dotGraph) AddNode(_ string, name string, attrs map[string]string) error {
	node, ok := g.nodes[name]
	if !ok {
		node = make(map[string]string, len(attrs))
		g.nodes[name] = node
		g.order = append(g.order, name)
	}
	for k, v := range attrs {
		node[k] = v
	}
	return nil
}

func (g *dotGraph) AddEdge(src, dst string, _ bool, _ map[string]string) error {
	g.edges = append(g.edges, dotEdge{src: src, dst: dst})
	return nil
}

func (g *dotGraph) AddPortEdge(src, _, dst, _ string, directed bool, attrs map[string]string) error {
	return g.AddEdge(src, dst, directed, attrs)
}

// AddAttr keeps root graph attributes only; subgraph ones carry no layout data
func (g *dotGraph) AddAttr(parent, field, value string) error {
	if parent == g.name {
		g.attrs[field] = value
	}
	return nil
}

func (g *dotGraph) AddSubGraph(string, string, map[string]string) error { return nil }

func (g *dotGraph) String() string { return g.name }
