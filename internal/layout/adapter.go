package layout

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"hydrovalley/internal/domain"
)

// Adapt reads the DOT text of a layout and merges its hints into graph.
//
// Layout nodes with no matching graph node are dropped with a warning.
// Graph nodes absent from the layout keep a nil Position and are listed in
// Unpositioned. The fingerprint of the result is left for the caller.
func Adapt(raw string, graph *domain.Graph, logger *slog.Logger) (*domain.PositionedGraph, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(raw) == "" {
		return nil, &AdaptError{Detail: "empty layout"}
	}
	if graph == nil {
		graph = &domain.Graph{}
	}

	parsed, err := readDOT(raw)
	if err != nil {
		return nil, &AdaptError{Detail: err.Error(), Err: err}
	}

	known := make(map[string]bool, len(graph.Nodes))
	for _, n := range graph.Nodes {
		known[n.ID] = true
	}
	placeholder := make(map[string]bool, len(graph.Placeholders))
	for _, name := range graph.Placeholders {
		placeholder[name] = true
	}

	hints := make(map[string]nodeHints)
	out := &domain.PositionedGraph{
		Nodes:        make([]domain.PositionedNode, 0, len(graph.Nodes)),
		Edges:        graph.Edges,
		Placeholders: graph.Placeholders,
	}

	for _, name := range parsed.order {
		id := unquote(name)
		if !known[id] {
			if !placeholder[id] {
				logger.Warn("layout node not in graph, dropping", "id", id)
				out.Dropped = append(out.Dropped, id)
			}
			continue
		}
		h, err := readHints(parsed.nodes[name])
		if err != nil {
			logger.Warn("ignoring bad layout attribute", "id", id, "error", err)
		}
		hints[id] = h
	}

	for _, edge := range parsed.edges {
		src, dst := unquote(edge.src), unquote(edge.dst)
		if (!known[src] && !placeholder[src]) || (!known[dst] && !placeholder[dst]) {
			logger.Warn("layout edge has unknown endpoint, dropping", "source", src, "target", dst)
		}
	}

	for _, n := range graph.Nodes {
		pn := domain.PositionedNode{GraphNode: n}
		if h, ok := hints[n.ID]; ok {
			pn.Position = h.pos
			pn.LayoutShape = h.shape
			pn.LayoutLabel = h.label
			pn.Width = h.width
			pn.Height = h.height
		}
		if pn.Position == nil {
			out.Unpositioned = append(out.Unpositioned, n.ID)
		}
		out.Nodes = append(out.Nodes, pn)
	}

	if bb, ok := parsed.attrs["bb"]; ok {
		bounds, err := parseBounds(unquote(bb))
		if err != nil {
			logger.Warn("ignoring bad layout bounding box", "bb", bb, "error", err)
		} else {
			out.Bounds = bounds
		}
	}

	return out, nil
}

type nodeHints struct {
	pos    *domain.Position
	shape  string
	label  string
	width  float64
	height float64
}

func readHints(attrs map[string]string) (nodeHints, error) {
	var h nodeHints
	var firstErr error
	keep := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	if v, ok := attrs["pos"]; ok {
		pos, err := ParsePosition(unquote(v))
		if err != nil {
			keep(err)
		} else {
			h.pos = pos
		}
	}
	if v, ok := attrs["shape"]; ok {
		h.shape = unquote(v)
	}
	if v, ok := attrs["label"]; ok {
		// \N is the DOT placeholder for the node name.
		if label := unquote(v); label != `\N` {
			h.label = label
		}
	}
	if v, ok := attrs["width"]; ok {
		f, err := strconv.ParseFloat(unquote(v), 64)
		if err != nil {
			keep(fmt.Errorf("width %q: %w", v, err))
		}
		h.width = f
	}
	if v, ok := attrs["height"]; ok {
		f, err := strconv.ParseFloat(unquote(v), 64)
		if err != nil {
			keep(fmt.Errorf("height %q: %w", v, err))
		}
		h.height = f
	}
	return h, firstErr
}

// ParsePosition reads a DOT point "x,y", optionally followed by "!" or a
// third coordinate.
func ParsePosition(s string) (*domain.Position, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "!")
	parts := strings.Split(s, ",")
	if len(parts) < 2 {
		return nil, fmt.Errorf("position %q: expected x,y", s)
	}
	x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("position %q: %w", s, err)
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("position %q: %w", s, err)
	}
	return &domain.Position{X: x, Y: y}, nil
}

func parseBounds(s string) (*domain.Bounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("expected 4 coordinates, got %d", len(parts))
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, err
		}
		v[i] = f
	}
	return &domain.Bounds{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}, nil
}

// unquote strips DOT string quoting, including line continuations
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
		s = strings.ReplaceAll(s, "\\\r\n", "")
		s = strings.ReplaceAll(s, "\\\n", "")
		s = strings.ReplaceAll(s, `\"`, `"`)
	}
	return s
}
