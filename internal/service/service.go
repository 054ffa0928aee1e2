package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"hydrovalley/internal/codec"
	"hydrovalley/internal/dataset"
	"hydrovalley/internal/domain"
	"hydrovalley/internal/layout"
	"hydrovalley/internal/metrics"
	"hydrovalley/internal/repository"
	"hydrovalley/internal/session"
	"hydrovalley/internal/simulation"

	"github.com/google/uuid"
)

// emptyModel is loaded when the default dataset is missing
const emptyModel = "{}"

// ValleyService coordinates sessions with the datasets, the layout cache
// and the simulation service. Remote calls run outside the session lock.
type ValleyService struct {
	sessions *session.Store
	datasets *dataset.Store
	runner   simulation.Runner
	runs     repository.RunStore
	eventBus *EventBus
	metrics  *metrics.Collector
	logger   *slog.Logger
	now      func() time.Time

	simulationTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a ValleyService
type Option func(*ValleyService)

// WithRunStore enables run history
func WithRunStore(runs repository.RunStore) Option {
	return func(s *ValleyService) { s.runs = runs }
}

// WithMetrics records simulation and session metrics
func WithMetrics(m *metrics.Collector) Option {
	return func(s *ValleyService) { s.metrics = m }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *ValleyService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(s *ValleyService) { s.now = now }
}

// WithSimulationTimeout bounds each background run
func WithSimulationTimeout(d time.Duration) Option {
	return func(s *ValleyService) {
		if d > 0 {
			s.simulationTimeout = d
		}
	}
}

// NewValleyService creates a new valley service
func NewValleyService(sessions *session.Store, datasets *dataset.Store, runner simulation.Runner, eventBus *EventBus, opts ...Option) *ValleyService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &ValleyService{
		sessions:          sessions,
		datasets:          datasets,
		runner:            runner,
		eventBus:          eventBus,
		logger:            slog.Default(),
		now:               time.Now,
		simulationTimeout: simulation.DefaultTimeout,
		ctx:               ctx,
		cancel:            cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession opens a session loaded with a dataset. An empty name loads
// the default dataset, or an empty valley when that file is missing.
func (s *ValleyService) CreateSession(ctx context.Context, name string) (*SessionView, error) {
	text, err := s.loadText(ctx, name)
	if err != nil {
		return nil, err
	}

	h := s.sessions.Create(text)
	s.metrics.SetSessions(s.sessions.Len())

	st := h.Snapshot()
	s.eventBus.Publish(Event{
		Type:    EventSessionCreated,
		Payload: map[string]string{"session_id": st.ID},
	})
	return NewSessionView(st), nil
}

func (s *ValleyService) loadText(ctx context.Context, name string) (string, error) {
	text, err := s.datasets.LoadModelText(name)
	if err == nil {
		return text, nil
	}
	if name == "" && errors.Is(err, dataset.ErrNotFound) {
		s.logger.WarnContext(ctx, "default dataset missing, starting empty",
			"dataset", s.datasets.DefaultName())
		return emptyModel, nil
	}
	return "", fmt.Errorf("failed to load dataset: %w", err)
}

// GetSession returns the current view of a session
func (s *ValleyService) GetSession(id string) (*SessionView, error) {
	h, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	return NewSessionView(h.Snapshot()), nil
}

// DeleteSession closes a session. A pending run still finishes but its
// outcome goes nowhere except the run history.
func (s *ValleyService) DeleteSession(id string) error {
	if err := s.sessions.Delete(id); err != nil {
		return err
	}
	s.metrics.SetSessions(s.sessions.Len())
	s.eventBus.Publish(Event{
		Type:    EventSessionDeleted,
		Payload: map[string]string{"session_id": id},
	})
	return nil
}

// EditModel replaces the session text. The view carries any parse error.
func (s *ValleyService) EditModel(id, text string) (*SessionView, error) {
	return s.update(id, func(st session.State) session.State {
		return session.Edit(st, text)
	})
}

// ResetSession reloads a dataset into the session, dropping results,
// selection and any pending run.
func (s *ValleyService) ResetSession(ctx context.Context, id, name string) (*SessionView, error) {
	h, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	text, err := s.loadText(ctx, name)
	if err != nil {
		return nil, err
	}
	st := h.Update(func(st session.State) session.State {
		return session.Reset(st, text)
	})
	s.publishUpdated(st)
	return NewSessionView(st), nil
}

// Select sets or clears the selected entity
func (s *ValleyService) Select(id, name string) (*SessionView, error) {
	return s.update(id, func(st session.State) session.State {
		return session.Select(st, name)
	})
}

// ClearResults drops the session's simulation results
func (s *ValleyService) ClearResults(id string) (*SessionView, error) {
	return s.update(id, session.ClearResults)
}

// DismissNotices drops one notice, or all of them when noticeID is empty
func (s *ValleyService) DismissNotices(id, noticeID string) (*SessionView, error) {
	return s.update(id, func(st session.State) session.State {
		if noticeID == "" {
			return session.DismissNotices(st)
		}
		return session.DismissNotice(st, noticeID)
	})
}

func (s *ValleyService) update(id string, fn func(session.State) session.State) (*SessionView, error) {
	h, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	before := h.Snapshot().Version
	st := h.Update(fn)
	if st.Version != before {
		s.publishUpdated(st)
	}
	return NewSessionView(st), nil
}

func (s *ValleyService) publishUpdated(st session.State) {
	s.eventBus.Publish(Event{
		Type: EventSessionUpdated,
		Payload: map[string]any{
			"session_id": st.ID,
			"version":    st.Version,
		},
	})
}

// RefreshLayout returns the positioned graph of the session's current
// model, fetching a layout only when the model changed since the last one.
// Failures become session notices and keep the previous layout.
func (s *ValleyService) RefreshLayout(ctx context.Context, id string) (*domain.PositionedGraph, error) {
	h, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}

	st := h.Snapshot()
	if st.Model == nil || st.Model.Len() == 0 {
		return &domain.PositionedGraph{
			Fingerprint: st.Fingerprint,
			Nodes:       []domain.PositionedNode{},
			Edges:       []domain.GraphEdge{},
		}, nil
	}
	if session.LayoutCurrent(st) && st.Positioned != nil {
		return st.Positioned, nil
	}
	if h.Layout == nil {
		return nil, ErrNoLayout
	}

	result, err := h.Layout.GetLayout(ctx, st.Model)
	if err != nil {
		s.failLayout(ctx, h, err)
		return nil, err
	}

	positioned, err := layout.Adapt(result.DOT, st.Graph, s.logger.With("session", id))
	if err != nil {
		err = fmt.Errorf("layout %s: %w", result.Fingerprint.Short(), err)
		s.failLayout(ctx, h, err)
		return nil, err
	}

	next := h.Update(func(cur session.State) session.State {
		return session.ApplyLayout(cur, result, positioned)
	})
	if session.LayoutCurrent(next) {
		s.eventBus.Publish(Event{
			Type: EventLayoutUpdated,
			Payload: map[string]string{
				"session_id":  id,
				"fingerprint": string(result.Fingerprint),
			},
		})
	}
	positioned.Fingerprint = result.Fingerprint
	return positioned, nil
}

func (s *ValleyService) failLayout(ctx context.Context, h *session.Handle, err error) {
	st := h.Update(func(cur session.State) session.State {
		return session.FailLayout(cur, err)
	})
	s.logger.WarnContext(ctx, "layout failed", "session", st.ID, "error", err)
	s.eventBus.Publish(Event{
		Type:    EventLayoutFailed,
		Payload: map[string]string{"session_id": st.ID, "error": err.Error()},
	})
}

// LayoutDOT returns the raw layout text installed for the current model
func (s *ValleyService) LayoutDOT(id string) (string, error) {
	h, err := s.sessions.Get(id)
	if err != nil {
		return "", err
	}
	st := h.Snapshot()
	if !session.LayoutCurrent(st) {
		return "", ErrNoLayout
	}
	return st.Layout.DOT, nil
}

// LaunchSimulation starts a background run of the current model. While a
// run is pending it returns that run with started == false.
func (s *ValleyService) LaunchSimulation(ctx context.Context, id string) (string, bool, error) {
	h, err := s.sessions.Get(id)
	if err != nil {
		return "", false, err
	}

	runID := uuid.NewString()
	now := s.now()

	var started bool
	var beginErr error
	st := h.Update(func(cur session.State) session.State {
		next, ok, err := session.BeginSimulation(cur, runID, now)
		started, beginErr = ok, err
		return next
	})
	if beginErr != nil {
		return "", false, beginErr
	}
	if !started {
		return st.PendingRun, false, nil
	}

	s.logger.InfoContext(ctx, "simulation started",
		"session", id, "run", runID, "fingerprint", st.Fingerprint.Short())
	s.eventBus.Publish(Event{
		Type:    EventSimulationStarted,
		Payload: map[string]string{"session_id": id, "run_id": runID},
	})

	s.wg.Add(1)
	go s.runSimulation(h, runID, st.Model, st.Index, st.Fingerprint, now)

	return runID, true, nil
}

func (s *ValleyService) runSimulation(h *session.Handle, runID string, model *domain.ValleyModel, idx *domain.EntityIndex, fp domain.Fingerprint, startedAt time.Time) {
	defer s.wg.Done()

	sessionID := h.Snapshot().ID
	logger := s.logger.With("session", sessionID, "run", runID)

	ctx, cancel := context.WithTimeout(s.ctx, s.simulationTimeout)
	defer cancel()

	run := &domain.Run{
		ID:          runID,
		SessionID:   sessionID,
		Fingerprint: fp,
		StartedAt:   startedAt,
	}
	if canonical, err := codec.Canonical(model); err == nil {
		run.Model = string(canonical)
	}

	resp, err := s.runner.Run(ctx, model)
	run.FinishedAt = s.now()

	if err != nil {
		h.Update(func(cur session.State) session.State {
			return session.FailSimulation(cur, runID, err)
		})
		run.Status = domain.RunFailed
		run.Error = err.Error()
		s.metrics.ObserveSimulation(string(domain.RunFailed), run.Duration())
		s.record(run, logger)

		logger.Warn("simulation failed", "error", err)
		s.eventBus.Publish(Event{
			Type:    EventSimulationFailed,
			Payload: map[string]string{"session_id": sessionID, "run_id": runID, "error": err.Error()},
		})
		return
	}

	results := simulation.Merge(resp, idx)
	results.RunID = runID
	results.Fingerprint = fp
	results.CompletedAt = run.FinishedAt

	h.Update(func(cur session.State) session.State {
		return session.CompleteSimulation(cur, runID, results)
	})
	run.Status = domain.RunCompleted
	run.Entities = len(results.Volumes)
	run.Results = results
	s.metrics.ObserveSimulation(string(domain.RunCompleted), run.Duration())
	s.record(run, logger)

	if unknown := results.Unknown(); len(unknown) > 0 {
		logger.Warn("simulation returned series for unknown entities", "names", unknown)
	}
	logger.Info("simulation completed", "entities", run.Entities, "duration", run.Duration())
	s.eventBus.Publish(Event{
		Type:    EventSimulationCompleted,
		Payload: map[string]string{"session_id": sessionID, "run_id": runID},
	})
}

func (s *ValleyService) record(run *domain.Run, logger *slog.Logger) {
	if s.runs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.runs.SaveRun(ctx, run); err != nil {
		logger.Error("failed to record run", "error", err)
	}
}

// Entity returns one entity's details, connections and results
func (s *ValleyService) Entity(id, name string) (*EntityView, error) {
	h, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	view, ok := NewEntityView(h.Snapshot(), name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrEntityNotFound, name)
	}
	return view, nil
}

// Results returns the session's simulation results
func (s *ValleyService) Results(id string) (*ResultsView, error) {
	h, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	st := h.Snapshot()
	if st.Results == nil {
		return nil, ErrNoResults
	}
	return newResultsView(st), nil
}

// ResultsCSV writes the volume results as CSV
func (s *ValleyService) ResultsCSV(id string, w io.Writer) error {
	h, err := s.sessions.Get(id)
	if err != nil {
		return err
	}
	st := h.Snapshot()
	if st.Results == nil {
		return ErrNoResults
	}
	return st.Results.WriteCSV(w)
}

// ExportYAML writes the last valid model as YAML
func (s *ValleyService) ExportYAML(id string, w io.Writer) error {
	h, err := s.sessions.Get(id)
	if err != nil {
		return err
	}
	st := h.Snapshot()
	if st.Model == nil {
		return session.ErrNoModel
	}
	return codec.NewYAMLCodec().Export(st.Model, w)
}

// ListRuns returns recorded runs, newest first
func (s *ValleyService) ListRuns(ctx context.Context, sessionID string, limit int) ([]domain.Run, error) {
	if s.runs == nil {
		return nil, ErrHistoryDisabled
	}
	return s.runs.ListRuns(ctx, sessionID, limit)
}

// GetRun returns one recorded run with its results
func (s *ValleyService) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	if s.runs == nil {
		return nil, ErrHistoryDisabled
	}
	run, err := s.runs.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// ListDatasets returns the dataset directory listing
func (s *ValleyService) ListDatasets() ([]dataset.Info, error) {
	return s.datasets.List()
}

// ReadDataset returns a dataset file's content
func (s *ValleyService) ReadDataset(name string) ([]byte, error) {
	return s.datasets.Read(name)
}

// DatasetSeries parses a .csv dataset into its raw series
func (s *ValleyService) DatasetSeries(name string) (*SeriesView, error) {
	values, err := s.datasets.LoadSeries(name)
	if err != nil {
		return nil, err
	}
	return NewSeriesView(name, values), nil
}

// UploadDataset validates and stores an uploaded file
func (s *ValleyService) UploadDataset(name string, r io.Reader) (dataset.Info, error) {
	info, err := s.datasets.Save(name, r)
	if err != nil {
		return dataset.Info{}, err
	}
	s.DatasetsChanged(info.Name)
	return info, nil
}

// SaveDirect stores text typed by the user as a new dataset
func (s *ValleyService) SaveDirect(text string) (dataset.Info, error) {
	info, err := s.datasets.SaveDirect(text)
	if err != nil {
		return dataset.Info{}, err
	}
	s.DatasetsChanged(info.Name)
	return info, nil
}

// DatasetsChanged notifies subscribers that the dataset listing changed
func (s *ValleyService) DatasetsChanged(name string) {
	s.eventBus.Publish(Event{
		Type:    EventDatasetsChanged,
		Payload: map[string]string{"name": name},
	})
}

// Health reports live sessions and, with history enabled, run counts
func (s *ValleyService) Health(ctx context.Context) (*HealthView, error) {
	view := &HealthView{Status: "ok", Sessions: s.sessions.Len()}
	if s.runs == nil {
		return view, nil
	}
	stats, err := s.runs.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("run stats: %w", err)
	}
	view.Runs = stats
	return view, nil
}

// Wait blocks until every background run has finished
func (s *ValleyService) Wait() {
	s.wg.Wait()
}

// Close cancels pending runs and waits for them
func (s *ValleyService) Close() {
	s.cancel()
	s.wg.Wait()
}
