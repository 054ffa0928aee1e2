package session

import (
	"errors"
	"testing"
	"time"

	"hydrovalley/internal/codec"
	"hydrovalley/internal/domain"

	"github.com/stretchr/testify/require"
)

const (
	valleyR1T1 = `{"reservoirs":[{"name":"R1","minVolume":0,"maxVolume":100}],"units":[{"name":"T1","kind":"turbine","upstreamReservoir":"R1"}]}`
	valleyR1   = `{"reservoirs":[{"name":"R1","minVolume":0,"maxVolume":100}]}`
	valleyBig  = `{"reservoirs":[{"name":"R1","minVolume":0,"maxVolume":500}],"units":[{"name":"T1","kind":"turbine","upstreamReservoir":"R1"}]}`
)

func results(name string, values ...float64) *domain.MergedResults {
	samples := make([]domain.Sample, len(values))
	for i, v := range values {
		samples[i] = domain.Sample{Step: i, Value: v}
	}
	return &domain.MergedResults{Volumes: map[string]*domain.EntityResult{
		name: {Name: name, Series: samples, Summary: domain.Summarize(samples)},
	}}
}

func TestNew(t *testing.T) {
	t.Run("valid text", func(t *testing.T) {
		s := New("s1", valleyR1T1)
		require.Nil(t, s.ParseError)
		require.Equal(t, 2, s.Model.Len())
		require.Len(t, s.Graph.Nodes, 2)
		require.NotEmpty(t, s.Fingerprint)
		require.Equal(t, SimulationIdle, s.Simulation)
	})

	t.Run("invalid text keeps the input", func(t *testing.T) {
		s := New("s1", `{"reservoirs": [`)
		require.ErrorIs(t, s.ParseError, codec.ErrSyntax)
		require.Equal(t, `{"reservoirs": [`, s.Text)
		require.Nil(t, s.Model)
	})

	t.Run("strict mode rejects dangling references", func(t *testing.T) {
		s := New("s1", `{"units":[{"name":"T1","kind":"turbine","upstreamReservoir":"Ghost"}]}`, WithStrict(true))
		require.ErrorIs(t, s.ParseError, codec.ErrSchema)
	})
}

func TestEdit(t *testing.T) {
	t.Run("failed parse keeps the last valid model", func(t *testing.T) {
		s := New("s1", valleyR1T1)
		before := s.Fingerprint

		s = Edit(s, `{"reservoirs": [}`)
		require.NotNil(t, s.ParseError)
		require.Equal(t, before, s.Fingerprint)
		require.Len(t, s.Graph.Nodes, 2)

		s = Edit(s, valleyR1T1)
		require.Nil(t, s.ParseError)
	})

	t.Run("edits never clear results", func(t *testing.T) {
		s := New("s1", valleyR1T1)
		s, _, _ = BeginSimulation(s, "run-1", time.Now())
		s = CompleteSimulation(s, "run-1", results("R1", 10, 20, 30))

		s = Edit(s, valleyBig)
		require.NotNil(t, s.Results)
		require.True(t, Stale(s))

		s = Edit(s, "not json")
		require.NotNil(t, s.Results)
	})

	t.Run("removing the selected entity clears the selection", func(t *testing.T) {
		s := Select(New("s1", valleyR1T1), "T1")
		require.Equal(t, "T1", s.Selected)

		s = Edit(s, valleyR1)
		require.Empty(t, s.Selected)
	})

	t.Run("selection survives unrelated edits", func(t *testing.T) {
		s := Select(New("s1", valleyR1T1), "R1")
		s = Edit(s, valleyBig)
		require.Equal(t, "R1", s.Selected)
	})

	t.Run("input state is not modified", func(t *testing.T) {
		s := New("s1", valleyR1T1)
		_ = Edit(s, valleyBig)
		require.Equal(t, valleyR1T1, s.Text)
	})
}

func TestSelect(t *testing.T) {
	s := New("s1", valleyR1T1)

	s = Select(s, "R1")
	require.Equal(t, "R1", s.Selected)

	s = Select(s, "Nope")
	require.Empty(t, s.Selected)
}

func TestSimulationLifecycle(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("second launch while pending is a no-op", func(t *testing.T) {
		s := New("s1", valleyR1T1)
		s, started, err := BeginSimulation(s, "run-1", now)
		require.NoError(t, err)
		require.True(t, started)

		again, started, err := BeginSimulation(s, "run-2", now)
		require.NoError(t, err)
		require.False(t, started)
		require.Equal(t, "run-1", again.PendingRun)
	})

	t.Run("completion after an edit is tagged with the launch fingerprint", func(t *testing.T) {
		s := New("s1", valleyR1T1)
		launched := s.Fingerprint
		s, _, _ = BeginSimulation(s, "run-1", now)

		s = Edit(s, valleyBig)
		s = CompleteSimulation(s, "run-1", results("R1", 10, 20, 30))

		require.Equal(t, SimulationIdle, s.Simulation)
		require.Equal(t, launched, s.Results.Fingerprint)
		require.Equal(t, "run-1", s.Results.RunID)
		require.True(t, Stale(s))
	})

	t.Run("failure keeps previous results and adds a notice", func(t *testing.T) {
		s := New("s1", valleyR1T1)
		s, _, _ = BeginSimulation(s, "run-1", now)
		s = CompleteSimulation(s, "run-1", results("R1", 1))

		s, _, _ = BeginSimulation(s, "run-2", now)
		s = FailSimulation(s, "run-2", errors.New("solver exploded"))

		require.Equal(t, SimulationIdle, s.Simulation)
		require.Equal(t, "run-1", s.Results.RunID)
		require.Len(t, s.Notices, 1)
		require.Equal(t, SourceSimulation, s.Notices[0].Source)
		require.Equal(t, "solver exploded", s.Notices[0].Message)
	})

	t.Run("abandoned runs are ignored", func(t *testing.T) {
		s := New("s1", valleyR1T1)
		s, _, _ = BeginSimulation(s, "run-1", now)
		s = Reset(s, valleyR1)

		s = CompleteSimulation(s, "run-1", results("R1", 1))
		require.Nil(t, s.Results)
	})

	t.Run("cannot launch without a valid model", func(t *testing.T) {
		_, _, err := BeginSimulation(New("s1", `{}`), "run-1", now)
		require.ErrorIs(t, err, ErrNoModel)

		s := Edit(New("s1", valleyR1T1), "{")
		_, _, err = BeginSimulation(s, "run-1", now)
		require.ErrorIs(t, err, ErrInvalidText)
	})
}

func TestLayoutTransitions(t *testing.T) {
	s := New("s1", valleyR1T1)
	result := &domain.LayoutResult{Fingerprint: s.Fingerprint, DOT: "digraph {}"}
	positioned := &domain.PositionedGraph{}

	s = ApplyLayout(s, result, positioned)
	require.True(t, LayoutCurrent(s))
	require.Equal(t, s.Fingerprint, s.Positioned.Fingerprint)

	t.Run("late layout for an old model is discarded", func(t *testing.T) {
		edited := Edit(s, valleyBig)
		late := ApplyLayout(edited, &domain.LayoutResult{Fingerprint: s.Fingerprint}, positioned)
		require.Same(t, result, late.Layout)
		require.False(t, LayoutCurrent(late))
	})

	t.Run("failure keeps the previous layout", func(t *testing.T) {
		failed := FailLayout(s, errors.New("connection refused"))
		require.Same(t, result, failed.Layout)
		require.Len(t, failed.Notices, 1)

		require.Empty(t, DismissNotices(failed).Notices)
		require.Empty(t, DismissNotice(failed, failed.Notices[0].ID).Notices)
		require.Len(t, s.Notices, 0, "earlier snapshot must be untouched")
	})
}

func TestClearAndReset(t *testing.T) {
	s := New("s1", valleyR1T1)
	s, _, _ = BeginSimulation(s, "run-1", time.Now())
	s = CompleteSimulation(s, "run-1", results("R1", 1))
	s = Select(s, "R1")

	require.Nil(t, ClearResults(s).Results)

	reset := Reset(s, valleyR1)
	require.Nil(t, reset.Results)
	require.Empty(t, reset.Selected)
	require.Equal(t, valleyR1, reset.Text)
	require.Equal(t, "s1", reset.ID)
	require.Greater(t, reset.Version, s.Version)
}
