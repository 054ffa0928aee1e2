// Package session holds the per-user state of the valley editor.
//
// State is a value. Every transition takes a State and returns the next
// one without touching the input, so a caller can apply transitions under
// a lock and publish the result as an immutable snapshot.
package session

import (
	"errors"
	"fmt"
	"time"

	"hydrovalley/internal/codec"
	"hydrovalley/internal/domain"
)

var (
	// ErrNoModel means there is no valid model to simulate
	ErrNoModel = errors.New("no valid model")
	// ErrInvalidText means the current text does not parse
	ErrInvalidText = errors.New("current model text does not parse")
)

// SimulationStatus tracks the single in-flight run of a session
type SimulationStatus string

const (
	SimulationIdle    SimulationStatus = "idle"
	SimulationPending SimulationStatus = "pending"
)

// Notice sources
const (
	SourceLayout     = "layout"
	SourceSimulation = "simulation"
)

// Notice is a dismissible message about a failed remote call
type Notice struct {
	ID      string `json:"id"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

// State is one session snapshot.
//
// Model, Index and Graph always describe the last text that parsed. When
// the current Text fails to parse, ParseError is set and they are kept.
type State struct {
	ID      string
	Version int
	Strict  bool

	Text       string
	ParseError *codec.ParseError

	Model       *domain.ValleyModel
	Fingerprint domain.Fingerprint
	Index       *domain.EntityIndex
	Graph       *domain.Graph

	Layout     *domain.LayoutResult
	Positioned *domain.PositionedGraph

	Selected string

	Simulation         SimulationStatus
	PendingRun         string
	PendingFingerprint domain.Fingerprint
	PendingSince       time.Time
	Results            *domain.MergedResults

	Notices []Notice
}

// Option configures a new State
type Option func(*State)

// WithStrict rejects dangling references at parse time
func WithStrict(strict bool) Option {
	return func(s *State) { s.Strict = strict }
}

// New creates a session from text. A text that fails to parse still yields
// a usable session carrying the parse error.
func New(id, text string, opts ...Option) State {
	s := State{ID: id, Simulation: SimulationIdle}
	for _, opt := range opts {
		opt(&s)
	}
	return s.edit(text)
}

// Edit replaces the text. Results survive every edit.
func Edit(s State, text string) State {
	return s.edit(text)
}

func (s State) edit(text string) State {
	s.Version++
	s.Text = text

	parse := codec.ParseValley
	if s.Strict {
		parse = codec.ParseStrict
	}
	model, err := parse(text)
	if err != nil {
		s.ParseError = asParseError(err)
		return s
	}
	s.ParseError = nil

	fp, err := domain.FingerprintOf(model)
	if err != nil {
		s.ParseError = &codec.ParseError{Kind: codec.KindSchema, Message: err.Error(), Err: err}
		return s
	}
	if fp == s.Fingerprint {
		return s
	}

	s.Model = model
	s.Fingerprint = fp
	s.Index = domain.NewEntityIndex(model)
	s.Graph = domain.BuildGraph(model)
	if s.Selected != "" && !s.Index.Has(s.Selected) {
		s.Selected = ""
	}
	return s
}

func asParseError(err error) *codec.ParseError {
	var perr *codec.ParseError
	if errors.As(err, &perr) {
		return perr
	}
	return &codec.ParseError{Kind: codec.KindSchema, Message: err.Error(), Err: err}
}

// Select sets the selected entity. Unknown names, including "", clear it.
func Select(s State, name string) State {
	s.Version++
	if s.Index.Has(name) {
		s.Selected = name
	} else {
		s.Selected = ""
	}
	return s
}

// BeginSimulation marks a run as pending. While a run is pending it is a
// no-op and reports started == false without error.
func BeginSimulation(s State, runID string, now time.Time) (State, bool, error) {
	if s.Simulation == SimulationPending {
		return s, false, nil
	}
	if s.ParseError != nil {
		return s, false, ErrInvalidText
	}
	if s.Model == nil || s.Model.Len() == 0 {
		return s, false, ErrNoModel
	}

	s.Version++
	s.Simulation = SimulationPending
	s.PendingRun = runID
	s.PendingFingerprint = s.Fingerprint
	s.PendingSince = now
	return s, true, nil
}

// CompleteSimulation stores the results of the pending run, tagged with the
// fingerprint the run was launched with, even if the model changed since.
// Completions for a run that is no longer pending (abandoned by Reset) are
// ignored.
func CompleteSimulation(s State, runID string, results *domain.MergedResults) State {
	if s.Simulation != SimulationPending || s.PendingRun != runID {
		return s
	}
	s.Version++

	tagged := *results
	tagged.RunID = runID
	tagged.Fingerprint = s.PendingFingerprint
	s.Results = &tagged
	s.clearPending()
	return s
}

// FailSimulation ends the pending run with a notice. Previous results stay.
func FailSimulation(s State, runID string, err error) State {
	if s.Simulation != SimulationPending || s.PendingRun != runID {
		return s
	}
	s.Version++
	s.clearPending()
	return s.addNotice(SourceSimulation, err)
}

func (s *State) clearPending() {
	s.Simulation = SimulationIdle
	s.PendingRun = ""
	s.PendingFingerprint = ""
	s.PendingSince = time.Time{}
}

// ApplyLayout installs a layout for the current model. A layout for any
// other fingerprint arrived late and is discarded.
func ApplyLayout(s State, result *domain.LayoutResult, positioned *domain.PositionedGraph) State {
	if result == nil || result.Fingerprint != s.Fingerprint {
		return s
	}
	s.Version++
	s.Layout = result
	if positioned != nil {
		p := *positioned
		p.Fingerprint = result.Fingerprint
		s.Positioned = &p
	}
	return s
}

// FailLayout records a notice and keeps the previous layout
func FailLayout(s State, err error) State {
	s.Version++
	return s.addNotice(SourceLayout, err)
}

// ClearResults drops the simulation results
func ClearResults(s State) State {
	s.Version++
	s.Results = nil
	return s
}

// DismissNotices drops every notice
func DismissNotices(s State) State {
	s.Version++
	s.Notices = nil
	return s
}

// DismissNotice drops one notice by id
func DismissNotice(s State, id string) State {
	kept := make([]Notice, 0, len(s.Notices))
	for _, n := range s.Notices {
		if n.ID != id {
			kept = append(kept, n)
		}
	}
	if len(kept) == len(s.Notices) {
		return s
	}
	s.Version++
	s.Notices = kept
	return s
}

// Reset starts over from text, dropping derived state, results, selection
// and any pending run.
func Reset(s State, text string) State {
	next := New(s.ID, text, WithStrict(s.Strict))
	next.Version = s.Version + 1
	return next
}

// Stale reports whether the results came from a different model than the
// current one.
func Stale(s State) bool {
	return s.Results.IsStale(s.Fingerprint)
}

// LayoutCurrent reports whether the installed layout matches the model
func LayoutCurrent(s State) bool {
	return s.Layout != nil && s.Layout.Fingerprint == s.Fingerprint
}

// addNotice appends to a fresh slice so earlier snapshots are unaffected
func (s State) addNotice(source string, err error) State {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	notices := make([]Notice, len(s.Notices), len(s.Notices)+1)
	copy(notices, s.Notices)
	s.Notices = append(notices, Notice{
		ID:      fmt.Sprintf("%s-%d", source, s.Version),
		Source:  source,
		Message: msg,
	})
	return s
}
