package domain

// Direction is the side of a connection relative to the inspected entity
type Direction string

const (
	// DirectionUpstream means water arrives from the other entity
	DirectionUpstream Direction = "upstream"
	// DirectionDownstream means water leaves towards the other entity
	DirectionDownstream Direction = "downstream"
)

// Connection is one hydraulic link seen from an entity
type Connection struct {
	Direction Direction `json:"direction"`
	Other     string    `json:"other"`
	Dangling  bool      `json:"dangling,omitempty"`
}

// DanglingRef is a unit reference that resolves to no entity
type DanglingRef struct {
	Unit      string    `json:"unit"`
	Direction Direction `json:"direction"`
	Target    string    `json:"target"`
}

// EntityIndex looks entities up by name. Connections are derived once when
// the index is built; callers cache the index per model fingerprint.
type EntityIndex struct {
	entities    map[string]Entity
	order       []string
	connections map[string][]Connection
	dangling    []DanglingRef
}

// NewEntityIndex builds the index for a validated model
func NewEntityIndex(m *ValleyModel) *EntityIndex {
	idx := &EntityIndex{
		entities:    make(map[string]Entity, m.Len()),
		order:       make([]string, 0, m.Len()),
		connections: make(map[string][]Connection, m.Len()),
	}
	if m == nil {
		return idx
	}
	for _, e := range m.Entities() {
		if _, exists := idx.entities[e.EntityName()]; exists {
			continue
		}
		idx.entities[e.EntityName()] = e
		idx.order = append(idx.order, e.EntityName())
	}

	// A unit lists its own references before anything pointing at it.
	for _, u := range m.Units {
		if u.Upstream != "" {
			_, ok := idx.entities[u.Upstream]
			idx.connections[u.Name] = append(idx.connections[u.Name], Connection{
				Direction: DirectionUpstream, Other: u.Upstream, Dangling: !ok,
			})
			if !ok {
				idx.dangling = append(idx.dangling, DanglingRef{Unit: u.Name, Direction: DirectionUpstream, Target: u.Upstream})
			}
		}
		if u.Downstream != "" {
			_, ok := idx.entities[u.Downstream]
			idx.connections[u.Name] = append(idx.connections[u.Name], Connection{
				Direction: DirectionDownstream, Other: u.Downstream, Dangling: !ok,
			})
			if !ok {
				idx.dangling = append(idx.dangling, DanglingRef{Unit: u.Name, Direction: DirectionDownstream, Target: u.Downstream})
			}
		}
	}

	for _, u := range m.Units {
		if u.Upstream != "" {
			if _, ok := idx.entities[u.Upstream]; ok {
				idx.connections[u.Upstream] = append(idx.connections[u.Upstream], Connection{
					Direction: DirectionDownstream, Other: u.Name,
				})
			}
		}
		if u.Downstream != "" {
			if _, ok := idx.entities[u.Downstream]; ok {
				idx.connections[u.Downstream] = append(idx.connections[u.Downstream], Connection{
					Direction: DirectionUpstream, Other: u.Name,
				})
			}
		}
	}

	return idx
}

// Lookup returns the entity with the given name
func (idx *EntityIndex) Lookup(name string) (Entity, bool) {
	if idx == nil {
		return nil, false
	}
	e, ok := idx.entities[name]
	return e, ok
}

// KindOf returns the kind of the named entity
func (idx *EntityIndex) KindOf(name string) (Kind, bool) {
	e, ok := idx.Lookup(name)
	if !ok {
		return "", false
	}
	return e.EntityKind(), true
}

// Has reports whether the name is indexed
func (idx *EntityIndex) Has(name string) bool {
	_, ok := idx.Lookup(name)
	return ok
}

// Names returns entity names in declaration order
func (idx *EntityIndex) Names() []string {
	if idx == nil {
		return nil
	}
	out := make([]string, len(idx.order))
	copy(out, idx.order)
	return out
}

// Len returns the number of indexed entities
func (idx *EntityIndex) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.order)
}

// ConnectionsOf returns what connects to the named entity, in unit
// declaration order. Unknown names yield nil.
func (idx *EntityIndex) ConnectionsOf(name string) []Connection {
	if idx == nil {
		return nil
	}
	conns := idx.connections[name]
	out := make([]Connection, len(conns))
	copy(out, conns)
	return out
}

// Dangling returns every unresolved unit reference
func (idx *EntityIndex) Dangling() []DanglingRef {
	if idx == nil {
		return nil
	}
	out := make([]DanglingRef, len(idx.dangling))
	copy(out, idx.dangling)
	return out
}
