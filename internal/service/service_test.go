package service

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"hydrovalley/internal/dataset"
	"hydrovalley/internal/domain"
	"hydrovalley/internal/layout"
	"hydrovalley/internal/logging"
	"hydrovalley/internal/repository/sqlite"
	"hydrovalley/internal/session"
	"hydrovalley/internal/simulation"

	"github.com/stretchr/testify/require"
)

const valleyJSON = `{"reservoirs":[{"name":"R1","minVolume":0,"maxVolume":100}],"units":[{"name":"T1","kind":"turbine","upstreamReservoir":"R1","downstreamReservoir":null}]}`

const valleyDOT = `digraph valley {
	graph [bb="0,0,100,200"];
	R1 [pos="50,180", shape=box];
	T1 [pos="50,18", shape=circle];
	R1 -> T1;
}`

// fakeFetcher answers with dot or err and counts calls
type fakeFetcher struct {
	dot   string
	err   error
	calls atomic.Int32
}

func (f *fakeFetcher) FetchLayout(ctx context.Context, canonical []byte) (string, error) {
	f.calls.Add(1)
	return f.dot, f.err
}

// fakeRunner answers once release is closed, if set
type fakeRunner struct {
	resp    *domain.SimulationResponse
	err     error
	release chan struct{}
	calls   atomic.Int32
}

func (r *fakeRunner) Run(ctx context.Context, model *domain.ValleyModel) (*domain.SimulationResponse, error) {
	r.calls.Add(1)
	if r.release != nil {
		select {
		case <-r.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return r.resp, r.err
}

func volumeResponse() *domain.SimulationResponse {
	return &domain.SimulationResponse{
		VolumeHistory: domain.SeriesSet{
			"R1": {{Step: 0, Value: 10}, {Step: 1, Value: 20}, {Step: 2, Value: 30}},
			"R2": {{Step: 0, Value: 5}},
		},
	}
}

type fixture struct {
	svc     *ValleyService
	fetcher *fakeFetcher
	runner  *fakeRunner
	events  chan Event
	dir     string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "valley.json"), []byte(valleyJSON), 0o644))

	f := &fixture{
		fetcher: &fakeFetcher{dot: valleyDOT},
		runner:  &fakeRunner{resp: volumeResponse()},
		events:  make(chan Event, 64),
		dir:     dir,
	}
	sessions := session.NewStore(func() *layout.Cache {
		return layout.NewCache(f.fetcher)
	})
	bus := NewEventBus()
	bus.Subscribe(f.events)

	opts = append([]Option{WithLogger(logging.Discard())}, opts...)
	f.svc = NewValleyService(sessions, dataset.New(dir, "valley.json"), f.runner, bus, opts...)
	t.Cleanup(f.svc.Close)
	return f
}

// drain returns the event types published so far
func (f *fixture) drain() []EventType {
	var types []EventType
	for {
		select {
		case e := <-f.events:
			types = append(types, e.Type)
		default:
			return types
		}
	}
}

func TestCreateSession(t *testing.T) {
	ctx := context.Background()

	t.Run("default dataset", func(t *testing.T) {
		f := newFixture(t)
		view, err := f.svc.CreateSession(ctx, "")
		require.NoError(t, err)
		require.Len(t, view.Entities, 2)
		require.Equal(t, "R1", view.Entities[0].Name)
		require.Nil(t, view.ParseError)
		require.Equal(t, session.SimulationIdle, view.Simulation)
		require.Contains(t, f.drain(), EventSessionCreated)
	})

	t.Run("missing default starts empty", func(t *testing.T) {
		f := newFixture(t)
		require.NoError(t, os.Remove(filepath.Join(f.dir, "valley.json")))

		view, err := f.svc.CreateSession(ctx, "")
		require.NoError(t, err)
		require.Empty(t, view.Entities)
		require.Equal(t, "{}", view.Text)
	})

	t.Run("missing named dataset fails", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CreateSession(ctx, "nope.json")
		require.ErrorIs(t, err, dataset.ErrNotFound)
	})

	t.Run("unknown session", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.GetSession("missing")
		require.ErrorIs(t, err, session.ErrNotFound)
	})
}

func TestEditModel(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.CreateSession(context.Background(), "")
	require.NoError(t, err)
	fp := view.Fingerprint

	view, err = f.svc.EditModel(view.ID, `{"reservoirs": [`)
	require.NoError(t, err)
	require.NotNil(t, view.ParseError)
	require.Equal(t, fp, view.Fingerprint, "last valid model is kept")
	require.Len(t, view.Entities, 2)

	view, err = f.svc.Select(view.ID, "T1")
	require.NoError(t, err)
	require.Equal(t, "T1", view.Selected)

	view, err = f.svc.EditModel(view.ID, `{"reservoirs":[{"name":"R1","minVolume":0,"maxVolume":100}]}`)
	require.NoError(t, err)
	require.Nil(t, view.ParseError)
	require.Empty(t, view.Selected, "removed entity is deselected")
}

func TestRefreshLayout(t *testing.T) {
	ctx := context.Background()

	t.Run("fetches once per model", func(t *testing.T) {
		f := newFixture(t)
		view, err := f.svc.CreateSession(ctx, "")
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			positioned, err := f.svc.RefreshLayout(ctx, view.ID)
			require.NoError(t, err)
			require.Equal(t, view.Fingerprint, positioned.Fingerprint)
			node, ok := positioned.Node("R1")
			require.True(t, ok)
			require.Equal(t, &domain.Position{X: 50, Y: 180}, node.Position)
		}
		require.Equal(t, int32(1), f.fetcher.calls.Load())

		view, err = f.svc.GetSession(view.ID)
		require.NoError(t, err)
		require.True(t, view.Layout)

		dot, err := f.svc.LayoutDOT(view.ID)
		require.NoError(t, err)
		require.Equal(t, valleyDOT, dot)
	})

	t.Run("failure becomes a notice", func(t *testing.T) {
		f := newFixture(t)
		f.fetcher.err = &layout.LayoutError{Kind: layout.KindUnreachable, Detail: "connection refused"}
		view, err := f.svc.CreateSession(ctx, "")
		require.NoError(t, err)

		_, err = f.svc.RefreshLayout(ctx, view.ID)
		require.ErrorIs(t, err, layout.ErrUnreachable)

		view, err = f.svc.GetSession(view.ID)
		require.NoError(t, err)
		require.Len(t, view.Notices, 1)
		require.Equal(t, session.SourceLayout, view.Notices[0].Source)
		require.False(t, view.Layout)
		require.Contains(t, f.drain(), EventLayoutFailed)

		_, err = f.svc.LayoutDOT(view.ID)
		require.ErrorIs(t, err, ErrNoLayout)

		view, err = f.svc.DismissNotices(view.ID, "")
		require.NoError(t, err)
		require.Empty(t, view.Notices)
	})

	t.Run("unparseable layout becomes a notice", func(t *testing.T) {
		f := newFixture(t)
		f.fetcher.dot = "this is not dot {"
		view, err := f.svc.CreateSession(ctx, "")
		require.NoError(t, err)

		_, err = f.svc.RefreshLayout(ctx, view.ID)
		require.ErrorIs(t, err, layout.ErrUnparseable)

		view, err = f.svc.GetSession(view.ID)
		require.NoError(t, err)
		require.Len(t, view.Notices, 1)
	})

	t.Run("empty model skips the service", func(t *testing.T) {
		f := newFixture(t)
		view, err := f.svc.CreateSession(ctx, "")
		require.NoError(t, err)
		_, err = f.svc.EditModel(view.ID, "{}")
		require.NoError(t, err)

		positioned, err := f.svc.RefreshLayout(ctx, view.ID)
		require.NoError(t, err)
		require.Empty(t, positioned.Nodes)
		require.Zero(t, f.fetcher.calls.Load())
	})
}

func TestLaunchSimulation(t *testing.T) {
	ctx := context.Background()

	t.Run("merges results", func(t *testing.T) {
		f := newFixture(t)
		view, err := f.svc.CreateSession(ctx, "")
		require.NoError(t, err)

		runID, started, err := f.svc.LaunchSimulation(ctx, view.ID)
		require.NoError(t, err)
		require.True(t, started)
		f.svc.Wait()

		results, err := f.svc.Results(view.ID)
		require.NoError(t, err)
		require.Equal(t, runID, results.RunID)
		require.Equal(t, view.Fingerprint, results.Fingerprint)
		require.False(t, results.Stale)
		require.Equal(t, []string{"R2"}, results.Unknown)

		r1, ok := results.Get("R1")
		require.True(t, ok)
		require.Equal(t, domain.Summary{Min: 10, Max: 30, Length: 3}, r1.Summary)

		entity, err := f.svc.Entity(view.ID, "R1")
		require.NoError(t, err)
		require.Equal(t, domain.KindReservoir, entity.Kind)
		require.NotNil(t, entity.Volume)
		require.Len(t, entity.Connections, 1)

		var buf bytes.Buffer
		require.NoError(t, f.svc.ResultsCSV(view.ID, &buf))
		require.True(t, strings.HasPrefix(buf.String(), "Time Step,R1,R2\n"))

		events := f.drain()
		require.Contains(t, events, EventSimulationStarted)
		require.Contains(t, events, EventSimulationCompleted)
	})

	t.Run("second launch while pending is a no-op", func(t *testing.T) {
		f := newFixture(t)
		f.runner.release = make(chan struct{})
		view, err := f.svc.CreateSession(ctx, "")
		require.NoError(t, err)

		first, started, err := f.svc.LaunchSimulation(ctx, view.ID)
		require.NoError(t, err)
		require.True(t, started)

		second, started, err := f.svc.LaunchSimulation(ctx, view.ID)
		require.NoError(t, err)
		require.False(t, started)
		require.Equal(t, first, second)

		// results of a model that changed meanwhile are kept and flagged
		_, err = f.svc.EditModel(view.ID, `{"reservoirs":[{"name":"R1","minVolume":0,"maxVolume":50}]}`)
		require.NoError(t, err)

		close(f.runner.release)
		f.svc.Wait()
		require.Equal(t, int32(1), f.runner.calls.Load())

		results, err := f.svc.Results(view.ID)
		require.NoError(t, err)
		require.True(t, results.Stale)
		require.Equal(t, view.Fingerprint, results.Fingerprint)
	})

	t.Run("failure keeps previous results", func(t *testing.T) {
		f := newFixture(t)
		view, err := f.svc.CreateSession(ctx, "")
		require.NoError(t, err)

		_, _, err = f.svc.LaunchSimulation(ctx, view.ID)
		require.NoError(t, err)
		f.svc.Wait()

		f.runner.err = &simulation.Error{Kind: simulation.KindServiceRejected, Status: 500, Detail: "solver crashed"}
		_, _, err = f.svc.LaunchSimulation(ctx, view.ID)
		require.NoError(t, err)
		f.svc.Wait()

		view, err = f.svc.GetSession(view.ID)
		require.NoError(t, err)
		require.True(t, view.HasResults)
		require.Len(t, view.Notices, 1)
		require.Equal(t, session.SourceSimulation, view.Notices[0].Source)
		require.Contains(t, f.drain(), EventSimulationFailed)
	})

	t.Run("invalid text is refused", func(t *testing.T) {
		f := newFixture(t)
		view, err := f.svc.CreateSession(ctx, "")
		require.NoError(t, err)
		_, err = f.svc.EditModel(view.ID, "{")
		require.NoError(t, err)

		_, started, err := f.svc.LaunchSimulation(ctx, view.ID)
		require.ErrorIs(t, err, session.ErrInvalidText)
		require.False(t, started)
		require.Zero(t, f.runner.calls.Load())
	})

	t.Run("timeout fails the run", func(t *testing.T) {
		f := newFixture(t, WithSimulationTimeout(20*time.Millisecond))
		f.runner.release = make(chan struct{})
		view, err := f.svc.CreateSession(ctx, "")
		require.NoError(t, err)

		_, _, err = f.svc.LaunchSimulation(ctx, view.ID)
		require.NoError(t, err)
		f.svc.Wait()

		view, err = f.svc.GetSession(view.ID)
		require.NoError(t, err)
		require.Equal(t, session.SimulationIdle, view.Simulation)
		require.False(t, view.HasResults)
		require.Len(t, view.Notices, 1)
	})

	t.Run("clear results", func(t *testing.T) {
		f := newFixture(t)
		view, err := f.svc.CreateSession(ctx, "")
		require.NoError(t, err)
		_, _, err = f.svc.LaunchSimulation(ctx, view.ID)
		require.NoError(t, err)
		f.svc.Wait()

		view, err = f.svc.ClearResults(view.ID)
		require.NoError(t, err)
		require.False(t, view.HasResults)

		_, err = f.svc.Results(view.ID)
		require.ErrorIs(t, err, ErrNoResults)
	})
}

func TestRunHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.ListRuns(ctx, "", 10)
		require.ErrorIs(t, err, ErrHistoryDisabled)
		_, err = f.svc.GetRun(ctx, "x")
		require.ErrorIs(t, err, ErrHistoryDisabled)
	})

	t.Run("records runs", func(t *testing.T) {
		repo, err := sqlite.New(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })

		f := newFixture(t, WithRunStore(repo))
		view, err := f.svc.CreateSession(ctx, "")
		require.NoError(t, err)

		runID, _, err := f.svc.LaunchSimulation(ctx, view.ID)
		require.NoError(t, err)
		f.svc.Wait()

		runs, err := f.svc.ListRuns(ctx, view.ID, 10)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		require.Equal(t, domain.RunCompleted, runs[0].Status)

		run, err := f.svc.GetRun(ctx, runID)
		require.NoError(t, err)
		require.Equal(t, 2, run.Entities)
		require.Equal(t, view.Fingerprint, run.Fingerprint)
		require.NotNil(t, run.Results)

		_, err = f.svc.GetRun(ctx, "missing")
		require.ErrorIs(t, err, ErrRunNotFound)

		health, err := f.svc.Health(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, health.Sessions)
		require.Equal(t, 1, health.Runs[domain.RunCompleted])
	})
}

func TestResetSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	view, err := f.svc.CreateSession(ctx, "")
	require.NoError(t, err)

	_, _, err = f.svc.LaunchSimulation(ctx, view.ID)
	require.NoError(t, err)
	f.svc.Wait()
	_, err = f.svc.Select(view.ID, "R1")
	require.NoError(t, err)

	view, err = f.svc.ResetSession(ctx, view.ID, "")
	require.NoError(t, err)
	require.False(t, view.HasResults)
	require.Empty(t, view.Selected)
	require.Len(t, view.Entities, 2)
}

func TestExportYAML(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.CreateSession(context.Background(), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.svc.ExportYAML(view.ID, &buf))
	require.Contains(t, buf.String(), "name: R1")
}

func TestDatasets(t *testing.T) {
	f := newFixture(t)

	info, err := f.svc.UploadDataset("levels.csv", strings.NewReader("1\n2.5\n3\n"))
	require.NoError(t, err)
	require.Equal(t, dataset.KindSeries, info.Kind)

	_, err = f.svc.UploadDataset("../escape.json", strings.NewReader(valleyJSON))
	require.ErrorIs(t, err, dataset.ErrInvalidName)

	direct, err := f.svc.SaveDirect(valleyJSON)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(direct.Name, "direct_input_"))

	list, err := f.svc.ListDatasets()
	require.NoError(t, err)
	require.Len(t, list, 3)

	data, err := f.svc.ReadDataset("valley.json")
	require.NoError(t, err)
	require.Equal(t, valleyJSON, string(data))

	events := f.drain()
	require.Equal(t, []EventType{EventDatasetsChanged, EventDatasetsChanged}, events)
}

func TestDeleteSession(t *testing.T) {
	f := newFixture(t)
	view, err := f.svc.CreateSession(context.Background(), "")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteSession(view.ID))
	err = f.svc.DeleteSession(view.ID)
	require.True(t, errors.Is(err, session.ErrNotFound))
}
