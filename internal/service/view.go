package service

import (
	"hydrovalley/internal/codec"
	"hydrovalley/internal/domain"
	"hydrovalley/internal/session"
)

// ParseErrorView is the inline form of a parse error
type ParseErrorView struct {
	Kind     codec.ErrorKind `json:"kind"`
	Message  string          `json:"message"`
	Entities []string        `json:"entities,omitempty"`
	Line     int             `json:"line,omitempty"`
	Column   int             `json:"column,omitempty"`
}

// EntitySummary is one row of the entity list
type EntitySummary struct {
	Name  string      `json:"name"`
	Kind  domain.Kind `json:"kind"`
	Label string      `json:"label"`
}

// SessionView is what clients see of a session
type SessionView struct {
	ID          string                   `json:"id"`
	Version     int                      `json:"version"`
	Text        string                   `json:"text"`
	ParseError  *ParseErrorView          `json:"parse_error,omitempty"`
	Fingerprint domain.Fingerprint       `json:"fingerprint,omitempty"`
	Entities    []EntitySummary          `json:"entities"`
	Dangling    []domain.DanglingRef     `json:"dangling,omitempty"`
	Graph       *domain.Graph            `json:"graph,omitempty"`
	Layout      bool                     `json:"layout_current"`
	Selected    string                   `json:"selected,omitempty"`
	Simulation  session.SimulationStatus `json:"simulation"`
	PendingRun  string                   `json:"pending_run,omitempty"`
	HasResults  bool                     `json:"has_results"`
	Stale       bool                     `json:"stale"`
	Notices     []session.Notice         `json:"notices"`
}

// NewSessionView builds the view of a state snapshot
func NewSessionView(st session.State) *SessionView {
	v := &SessionView{
		ID:          st.ID,
		Version:     st.Version,
		Text:        st.Text,
		Fingerprint: st.Fingerprint,
		Entities:    make([]EntitySummary, 0, st.Index.Len()),
		Dangling:    st.Index.Dangling(),
		Graph:       st.Graph,
		Layout:      session.LayoutCurrent(st),
		Selected:    st.Selected,
		Simulation:  st.Simulation,
		PendingRun:  st.PendingRun,
		HasResults:  st.Results != nil,
		Stale:       session.Stale(st),
		Notices:     st.Notices,
	}
	if v.Notices == nil {
		v.Notices = []session.Notice{}
	}
	if perr := st.ParseError; perr != nil {
		v.ParseError = &ParseErrorView{
			Kind:     perr.Kind,
			Message:  perr.Message,
			Entities: perr.Entities,
			Line:     perr.Line,
			Column:   perr.Column,
		}
	}
	for _, name := range st.Index.Names() {
		kind, _ := st.Index.KindOf(name)
		v.Entities = append(v.Entities, EntitySummary{Name: name, Kind: kind, Label: kind.Label()})
	}
	return v
}

// EntityView is the detail panel of one entity
type EntityView struct {
	Name        string               `json:"name"`
	Kind        domain.Kind          `json:"kind"`
	Label       string               `json:"label"`
	Attributes  map[string]any       `json:"attributes"`
	Connections []domain.Connection  `json:"connections"`
	Volume      *domain.EntityResult `json:"volume,omitempty"`
	Level       *domain.EntityResult `json:"level,omitempty"`
	Stale       bool                 `json:"stale,omitempty"`
}

// NewEntityView builds the detail view of name, if the model has it
func NewEntityView(st session.State, name string) (*EntityView, bool) {
	e, ok := st.Index.Lookup(name)
	if !ok {
		return nil, false
	}
	v := &EntityView{
		Name:        name,
		Kind:        e.EntityKind(),
		Label:       e.EntityKind().Label(),
		Attributes:  attributes(e),
		Connections: st.Index.ConnectionsOf(name),
	}
	if st.Results != nil {
		v.Volume = st.Results.Volumes[name]
		v.Level = st.Results.Levels[name]
		v.Stale = session.Stale(st)
	}
	return v, true
}

// attributes lists an entity's fields under their canonical keys
func attributes(e domain.Entity) map[string]any {
	attrs := make(map[string]any)
	switch e := e.(type) {
	case *domain.Reservoir:
		for k, v := range e.Extra {
			attrs[k] = v
		}
		attrs["minVolume"] = e.MinVolume
		attrs["maxVolume"] = e.MaxVolume
		if e.Cost != nil {
			attrs["cost"] = *e.Cost
		}
	case *domain.Unit:
		for k, v := range e.Extra {
			attrs[k] = v
		}
		attrs["upstreamReservoir"] = optional(e.Upstream)
		attrs["downstreamReservoir"] = optional(e.Downstream)
		if e.PowerMin != nil {
			attrs["powerMin"] = *e.PowerMin
		}
		if e.PowerMax != nil {
			attrs["powerMax"] = *e.PowerMax
		}
		if e.PowerLevels != nil {
			attrs["powerLevels"] = e.PowerLevels
		}
	case *domain.Junction:
		for k, v := range e.Extra {
			attrs[k] = v
		}
	}
	return attrs
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ResultsView is a session's results with their freshness
type ResultsView struct {
	*domain.MergedResults
	Stale   bool     `json:"stale"`
	Unknown []string `json:"unknown,omitempty"`
}

func newResultsView(st session.State) *ResultsView {
	return &ResultsView{
		MergedResults: st.Results,
		Stale:         session.Stale(st),
		Unknown:       st.Results.Unknown(),
	}
}

// HealthView is the /healthz body
type HealthView struct {
	Status   string                   `json:"status"`
	Sessions int                      `json:"sessions"`
	Runs     map[domain.RunStatus]int `json:"runs,omitempty"`
}

// SeriesView is a raw series dataset with its summary. Series datasets are
// never parsed as valley models.
type SeriesView struct {
	Name    string         `json:"name"`
	Values  []float64      `json:"values"`
	Summary domain.Summary `json:"summary"`
}

func NewSeriesView(name string, values []float64) *SeriesView {
	samples := make([]domain.Sample, len(values))
	for i, v := range values {
		samples[i] = domain.Sample{Step: i, Value: v}
	}
	if values == nil {
		values = []float64{}
	}
	return &SeriesView{Name: name, Values: values, Summary: domain.Summarize(samples)}
}
