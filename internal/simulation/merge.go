package simulation

import (
	"hydrovalley/internal/domain"
)

// Merge attaches each series of resp to the entity of the same name.
// Names the index does not know are kept and flagged, never dropped.
// Run metadata (id, fingerprint, completion time) is left to the caller.
func Merge(resp *domain.SimulationResponse, idx *domain.EntityIndex) *domain.MergedResults {
	merged := &domain.MergedResults{
		Volumes: make(map[string]*domain.EntityResult),
	}
	if resp == nil {
		return merged
	}
	merged.Volumes = mergeSet(resp.VolumeHistory, idx)
	if len(resp.NodeLevels) > 0 {
		merged.Levels = mergeSet(resp.NodeLevels, idx)
	}
	return merged
}

func mergeSet(set domain.SeriesSet, idx *domain.EntityIndex) map[string]*domain.EntityResult {
	out := make(map[string]*domain.EntityResult, len(set))
	for name, samples := range set {
		res := &domain.EntityResult{
			Name:    name,
			Series:  samples,
			Summary: domain.Summarize(samples),
		}
		if kind, ok := idx.KindOf(name); ok {
			res.Kind = kind
		} else {
			res.UnknownEntity = true
		}
		out[name] = res
	}
	return out
}
