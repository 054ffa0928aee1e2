package domain

import (
	"fmt"
	"strings"
)

// Shape hints understood by the diagram renderer
const (
	ShapeBox     = "box"
	ShapeCircle  = "circle"
	ShapeDiamond = "diamond"
)

// Graph is the derived view of a valley for diagram rendering
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
	// Placeholders lists referenced names with no entity, in first-seen order
	Placeholders []string `json:"placeholders,omitempty"`
}

// GraphNode represents an entity in the visualization
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  Kind   `json:"kind"`
	Shape string `json:"shape"`
	Color string `json:"color"`
	Title string `json:"title"` // Tooltip content
}

// GraphEdge represents a water path in the visualization
type GraphEdge struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Target   string `json:"target"`
	Dangling bool   `json:"dangling,omitempty"`
}

// NodeIndex returns the position of the node id in Nodes, or -1
func (g *Graph) NodeIndex(id string) int {
	for i, n := range g.Nodes {
		if n.ID == id {
			return i
		}
	}
	return -1
}

// BuildGraph converts a ValleyModel into a Graph. Output ordering depends
// only on declaration order so repeated builds are identical.
func BuildGraph(m *ValleyModel) *Graph {
	idx := NewEntityIndex(m)
	graph := &Graph{
		Nodes: make([]GraphNode, 0, m.Len()),
		Edges: make([]GraphEdge, 0),
	}
	if m == nil {
		return graph
	}

	for _, e := range m.Entities() {
		kind := e.EntityKind()
		graph.Nodes = append(graph.Nodes, GraphNode{
			ID:    e.EntityName(),
			Label: e.EntityName(),
			Kind:  kind,
			Shape: ShapeFor(kind),
			Color: ColorFor(kind),
			Title: buildTooltip(e, idx),
		})
	}

	seen := make(map[string]bool)
	addPlaceholder := func(name string) {
		if !seen[name] {
			seen[name] = true
			graph.Placeholders = append(graph.Placeholders, name)
		}
	}

	for _, u := range m.Units {
		if u.Upstream != "" {
			dangling := !idx.Has(u.Upstream)
			if dangling {
				addPlaceholder(u.Upstream)
			}
			graph.Edges = append(graph.Edges, newGraphEdge(u.Upstream, u.Name, dangling))
		}
		if u.Downstream != "" {
			dangling := !idx.Has(u.Downstream)
			if dangling {
				addPlaceholder(u.Downstream)
			}
			graph.Edges = append(graph.Edges, newGraphEdge(u.Name, u.Downstream, dangling))
		}
	}

	return graph
}

// ShapeFor returns the shape hint for an entity kind
func ShapeFor(kind Kind) string {
	switch kind {
	case KindReservoir:
		return ShapeBox
	case KindTurbine, KindPump:
		return ShapeCircle
	case KindJunction:
		return ShapeDiamond
	}
	return ShapeCircle
}

// ColorFor returns the fill color hint for an entity kind
func ColorFor(kind Kind) string {
	switch kind {
	case KindReservoir:
		return "#ADD8E6"
	case KindTurbine:
		return "#90EE90"
	case KindPump:
		return "#FFB6C1"
	}
	return "#D3D3D3"
}

func newGraphEdge(source, target string, dangling bool) GraphEdge {
	return GraphEdge{
		ID:       source + "->" + target,
		Source:   source,
		Target:   target,
		Dangling: dangling,
	}
}

func buildTooltip(e Entity, idx *EntityIndex) string {
	tooltip := fmt.Sprintf("Name: %s\nKind: %s", e.EntityName(), e.EntityKind().Label())

	conns := idx.ConnectionsOf(e.EntityName())
	if len(conns) == 0 {
		return tooltip + "\nConnections: none"
	}
	parts := make([]string, 0, len(conns))
	for _, c := range conns {
		part := fmt.Sprintf("%s %s", c.Direction, c.Other)
		if c.Dangling {
			part += " (missing)"
		}
		parts = append(parts, part)
	}
	return tooltip + "\nConnections: " + strings.Join(parts, ", ")
}
