package domain

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"
)

// Sample is one value of a series at a time step
type Sample struct {
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}

// SeriesSet maps a column name to its samples ordered by step
type SeriesSet map[string][]Sample

// Names returns the column names sorted
func (s SeriesSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SimulationResponse is a simulation service answer normalized to
// per-entity series, whatever orientation the service used.
type SimulationResponse struct {
	VolumeHistory SeriesSet `json:"volume_history"`
	NodeLevels    SeriesSet `json:"node_levels,omitempty"`
}

// Summary is computed eagerly for every merged series
type Summary struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Length int     `json:"length"`
}

// Summarize computes min, max and length of samples
func Summarize(samples []Sample) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	s := Summary{Min: samples[0].Value, Max: samples[0].Value, Length: len(samples)}
	for _, sample := range samples[1:] {
		if sample.Value < s.Min {
			s.Min = sample.Value
		}
		if sample.Value > s.Max {
			s.Max = sample.Value
		}
	}
	return s
}

// EntityResult holds one entity's series and summary
type EntityResult struct {
	Name          string   `json:"name"`
	Kind          Kind     `json:"kind,omitempty"`
	Series        []Sample `json:"series"`
	Summary       Summary  `json:"summary"`
	UnknownEntity bool     `json:"unknown_entity,omitempty"`
}

// MergedResults is a simulation run attached to entity names. It is tagged
// with the fingerprint of the model that was simulated.
type MergedResults struct {
	RunID       string                   `json:"run_id"`
	Fingerprint Fingerprint              `json:"fingerprint"`
	CompletedAt time.Time                `json:"completed_at"`
	Volumes     map[string]*EntityResult `json:"volumes"`
	Levels      map[string]*EntityResult `json:"levels,omitempty"`
}

// Get returns the volume result for an entity
func (r *MergedResults) Get(name string) (*EntityResult, bool) {
	if r == nil {
		return nil, false
	}
	res, ok := r.Volumes[name]
	return res, ok
}

// Names returns the volume column names sorted
func (r *MergedResults) Names() []string {
	names := make([]string, 0, len(r.Volumes))
	for name := range r.Volumes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unknown returns the names flagged as absent from the model, sorted
func (r *MergedResults) Unknown() []string {
	var names []string
	for _, name := range r.Names() {
		if r.Volumes[name].UnknownEntity {
			names = append(names, name)
		}
	}
	for name, res := range r.Levels {
		if res.UnknownEntity && r.Volumes[name] == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// IsStale reports whether the results came from a different model
func (r *MergedResults) IsStale(current Fingerprint) bool {
	return r != nil && current != "" && r.Fingerprint != current
}

// WriteCSV writes volumes as a wide table: a "Time Step" column followed by
// one column per entity. Steps missing from a series are left empty.
func (r *MergedResults) WriteCSV(w io.Writer) error {
	names := r.Names()

	stepSet := make(map[int]struct{})
	values := make(map[string]map[int]float64, len(names))
	for _, name := range names {
		byStep := make(map[int]float64, len(r.Volumes[name].Series))
		for _, s := range r.Volumes[name].Series {
			byStep[s.Step] = s.Value
			stepSet[s.Step] = struct{}{}
		}
		values[name] = byStep
	}
	steps := make([]int, 0, len(stepSet))
	for step := range stepSet {
		steps = append(steps, step)
	}
	sort.Ints(steps)

	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"Time Step"}, names...)); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, step := range steps {
		row := make([]string, 0, len(names)+1)
		row = append(row, strconv.Itoa(step))
		for _, name := range names {
			if v, ok := values[name][step]; ok {
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			} else {
				row = append(row, "")
			}
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
