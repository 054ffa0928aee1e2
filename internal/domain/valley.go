package domain

import (
	"encoding/json"
)

// Kind identifies the variant of a valley entity
type Kind string

const (
	KindReservoir Kind = "reservoir"
	KindTurbine   Kind = "turbine"
	KindPump      Kind = "pump"
	KindJunction  Kind = "junction"
)

// IsUnit reports whether the kind moves water between two entities
func (k Kind) IsUnit() bool {
	return k == KindTurbine || k == KindPump
}

// Label returns the display form used in tooltips and tables
func (k Kind) Label() string {
	switch k {
	case KindReservoir:
		return "Reservoir"
	case KindTurbine:
		return "Turbine"
	case KindPump:
		return "Pump"
	case KindJunction:
		return "Junction"
	}
	return "N/A"
}

// Entity is one of *Reservoir, *Unit or *Junction.
type Entity interface {
	EntityName() string
	EntityKind() Kind
	isEntity()
}

// Quantity is a bound given either as a single number or as a series
type Quantity struct {
	Value    float64
	Series   []float64
	IsSeries bool
}

// Scalar returns a single-valued quantity
func Scalar(v float64) Quantity {
	return Quantity{Value: v}
}

// SeriesOf returns a series-valued quantity
func SeriesOf(values ...float64) Quantity {
	return Quantity{Series: values, IsSeries: true}
}

// MarshalJSON writes the number or the array
func (q Quantity) MarshalJSON() ([]byte, error) {
	if q.IsSeries {
		if q.Series == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(q.Series)
	}
	return json.Marshal(q.Value)
}

// Reservoir stores water between a minimum and maximum volume
type Reservoir struct {
	Name      string
	MinVolume Quantity
	MaxVolume Quantity
	Cost      *Quantity
	Extra     map[string]any
}

func (r *Reservoir) EntityName() string { return r.Name }
func (r *Reservoir) EntityKind() Kind   { return KindReservoir }
func (r *Reservoir) isEntity()          {}

// Unit is a turbine or a pump
type Unit struct {
	Name        string
	Kind        Kind
	Upstream    string // empty when absent or null
	Downstream  string
	PowerMin    *Quantity
	PowerMax    *Quantity
	PowerLevels []float64
	Extra       map[string]any
}

func (u *Unit) EntityName() string { return u.Name }
func (u *Unit) EntityKind() Kind   { return u.Kind }
func (u *Unit) isEntity()          {}

// Junction is a connection point without hydraulic bounds
type Junction struct {
	Name  string
	Extra map[string]any
}

func (j *Junction) EntityName() string { return j.Name }
func (j *Junction) EntityKind() Kind   { return KindJunction }
func (j *Junction) isEntity()          {}

// ValleyModel is the typed form of a valley description.
//
// Collections keep declaration order. Extra holds top-level fields the model
// does not interpret; they are carried into the canonical serialization.
type ValleyModel struct {
	Reservoirs []*Reservoir
	Units      []*Unit
	Junctions  []*Junction
	Extra      map[string]any
}

// NewValleyModel creates an empty model
func NewValleyModel() *ValleyModel {
	return &ValleyModel{
		Reservoirs: make([]*Reservoir, 0),
		Units:      make([]*Unit, 0),
		Junctions:  make([]*Junction, 0),
	}
}

// Entities returns every entity: reservoirs, then units, then junctions
func (m *ValleyModel) Entities() []Entity {
	if m == nil {
		return nil
	}
	out := make([]Entity, 0, m.Len())
	for _, r := range m.Reservoirs {
		out = append(out, r)
	}
	for _, u := range m.Units {
		out = append(out, u)
	}
	for _, j := range m.Junctions {
		out = append(out, j)
	}
	return out
}

// Len returns the total entity count
func (m *ValleyModel) Len() int {
	if m == nil {
		return 0
	}
	return len(m.Reservoirs) + len(m.Units) + len(m.Junctions)
}

// MarshalJSON produces the canonical serialization: camelCase keys, units
// carrying their kind, object keys sorted, unit references null when absent.
func (m *ValleyModel) MarshalJSON() ([]byte, error) {
	doc := make(map[string]any, len(m.Extra)+3)
	for k, v := range m.Extra {
		doc[k] = v
	}

	reservoirs := make([]map[string]any, 0, len(m.Reservoirs))
	for _, r := range m.Reservoirs {
		obj := withExtra(r.Extra)
		obj["name"] = r.Name
		obj["minVolume"] = r.MinVolume
		obj["maxVolume"] = r.MaxVolume
		if r.Cost != nil {
			obj["cost"] = *r.Cost
		}
		reservoirs = append(reservoirs, obj)
	}

	units := make([]map[string]any, 0, len(m.Units))
	for _, u := range m.Units {
		obj := withExtra(u.Extra)
		obj["name"] = u.Name
		obj["kind"] = string(u.Kind)
		obj["upstreamReservoir"] = nullable(u.Upstream)
		obj["downstreamReservoir"] = nullable(u.Downstream)
		if u.PowerMin != nil {
			obj["powerMin"] = *u.PowerMin
		}
		if u.PowerMax != nil {
			obj["powerMax"] = *u.PowerMax
		}
		if u.PowerLevels != nil {
			obj["powerLevels"] = u.PowerLevels
		}
		units = append(units, obj)
	}

	junctions := make([]map[string]any, 0, len(m.Junctions))
	for _, j := range m.Junctions {
		obj := withExtra(j.Extra)
		obj["name"] = j.Name
		junctions = append(junctions, obj)
	}

	doc["reservoirs"] = reservoirs
	doc["units"] = units
	doc["junctions"] = junctions
	return json.Marshal(doc)
}

func withExtra(extra map[string]any) map[string]any {
	obj := make(map[string]any, len(extra)+4)
	for k, v := range extra {
		obj[k] = v
	}
	return obj
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
