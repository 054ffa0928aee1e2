package domain

import "time"

// Position is a 2D layout coordinate in layout-service units
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// LayoutResult is one answer of the external layout service. It is replaced
// as a whole when the fingerprint changes, never patched.
type LayoutResult struct {
	Fingerprint Fingerprint `json:"fingerprint"`
	DOT         string      `json:"dot"`
	FetchedAt   time.Time   `json:"fetched_at"`
}

// PositionedNode is a graph node merged with its layout hints
type PositionedNode struct {
	GraphNode
	Position    *Position `json:"position,omitempty"` // nil when the layout had no entry
	LayoutShape string    `json:"layout_shape,omitempty"`
	LayoutLabel string    `json:"layout_label,omitempty"`
	Width       float64   `json:"width,omitempty"`
	Height      float64   `json:"height,omitempty"`
}

// Bounds is the layout bounding box
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// PositionedGraph is the graph ready for rendering
type PositionedGraph struct {
	Fingerprint  Fingerprint      `json:"fingerprint"`
	Nodes        []PositionedNode `json:"nodes"`
	Edges        []GraphEdge      `json:"edges"`
	Placeholders []string         `json:"placeholders,omitempty"`
	Bounds       *Bounds          `json:"bounds,omitempty"`
	Unpositioned []string         `json:"unpositioned,omitempty"`
	Dropped      []string         `json:"dropped,omitempty"`
}

// Node returns the positioned node with the given id
func (g *PositionedGraph) Node(id string) (*PositionedNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}
