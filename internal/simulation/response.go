package simulation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"hydrovalley/internal/domain"
)

// Column names that carry the time step in row-oriented tables
var stepColumns = []string{"timestep", "time_step", "Time Step"}

// ParseResponse normalizes a simulation answer. volume_history is required;
// node_levels is optional. Each may be an object of name to array, an
// object of name to {index: value}, or an array of rows. Null values are
// skipped.
func ParseResponse(body []byte) (*domain.SimulationResponse, error) {
	root, err := decode(body)
	if err != nil {
		return nil, err
	}
	obj, ok := root.(map[string]any)
	if !ok {
		return nil, invalid("top-level value must be an object")
	}

	rawVolumes, ok := obj["volume_history"]
	if !ok || rawVolumes == nil {
		return nil, invalid("missing volume_history")
	}
	volumes, err := seriesSet("volume_history", rawVolumes)
	if err != nil {
		return nil, err
	}

	resp := &domain.SimulationResponse{VolumeHistory: volumes}
	if rawLevels, ok := obj["node_levels"]; ok && rawLevels != nil {
		levels, err := seriesSet("node_levels", rawLevels)
		if err != nil {
			return nil, err
		}
		resp.NodeLevels = levels
	}
	return resp, nil
}

func decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		return nil, &Error{Kind: KindInvalidResponse, Detail: err.Error(), Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, invalid("unexpected data after response")
	}
	return root, nil
}

func seriesSet(field string, raw any) (domain.SeriesSet, error) {
	switch v := raw.(type) {
	case map[string]any:
		set := make(domain.SeriesSet, len(v))
		for name, column := range v {
			samples, err := columnSamples(column)
			if err != nil {
				return nil, invalid("%s[%q]: %v", field, name, err)
			}
			set[name] = samples
		}
		return set, nil
	case []any:
		return rowSamples(field, v)
	}
	return nil, invalid("%s must be an object or an array of rows", field)
}

// columnSamples reads [v0, v1, ...] or {"0": v0, "1": v1, ...}
func columnSamples(column any) ([]domain.Sample, error) {
	switch v := column.(type) {
	case []any:
		samples := make([]domain.Sample, 0, len(v))
		for step, item := range v {
			value, present, err := number(item)
			if err != nil {
				return nil, err
			}
			if present {
				samples = append(samples, domain.Sample{Step: step, Value: value})
			}
		}
		return samples, nil
	case map[string]any:
		samples := make([]domain.Sample, 0, len(v))
		for key, item := range v {
			step, err := strconv.Atoi(key)
			if err != nil {
				return nil, fmt.Errorf("index %q is not an integer", key)
			}
			value, present, err := number(item)
			if err != nil {
				return nil, err
			}
			if present {
				samples = append(samples, domain.Sample{Step: step, Value: value})
			}
		}
		sortSamples(samples)
		return samples, nil
	}
	return nil, fmt.Errorf("expected an array or an index object")
}

// rowSamples reads [{"timestep": 0, "R1": v, ...}, ...]
func rowSamples(field string, rows []any) (domain.SeriesSet, error) {
	set := make(domain.SeriesSet)
	for i, raw := range rows {
		row, ok := raw.(map[string]any)
		if !ok {
			return nil, invalid("%s row %d is not an object", field, i)
		}

		step := i
		for _, col := range stepColumns {
			if v, ok := row[col]; ok {
				n, err := stepNumber(v)
				if err != nil {
					return nil, invalid("%s row %d: %s %v", field, i, col, err)
				}
				step = n
				break
			}
		}

		for name, item := range row {
			if isStepColumn(name) {
				continue
			}
			value, present, err := number(item)
			if err != nil {
				return nil, invalid("%s row %d column %q: %v", field, i, name, err)
			}
			if present {
				set[name] = append(set[name], domain.Sample{Step: step, Value: value})
			} else if _, ok := set[name]; !ok {
				set[name] = []domain.Sample{}
			}
		}
	}
	for _, samples := range set {
		sortSamples(samples)
	}
	return set, nil
}

// stepNumber accepts whole numbers only; 2.0 is step 2, 2.5 is an error
func stepNumber(v any) (int, error) {
	f, present, err := number(v)
	if err != nil {
		return 0, err
	}
	if !present {
		return 0, fmt.Errorf("is null")
	}
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%v is not a valid step", f)
	}
	return int(f), nil
}

func isStepColumn(name string) bool {
	for _, col := range stepColumns {
		if name == col {
			return true
		}
	}
	return false
}

func number(v any) (float64, bool, error) {
	switch n := v.(type) {
	case nil:
		return 0, false, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%q is not a number", n.String())
		}
		return f, true, nil
	}
	return 0, false, fmt.Errorf("value is not a number")
}

func sortSamples(samples []domain.Sample) {
	sort.SliceStable(samples, func(i, j int) bool {
		return samples[i].Step < samples[j].Step
	})
}
