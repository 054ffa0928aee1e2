package session

import (
	"errors"
	"sort"
	"sync"

	"hydrovalley/internal/layout"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown session ids
var ErrNotFound = errors.New("session not found")

// Handle is one live session. Transitions go through Update, which holds
// the session lock, so each session has a single logical writer.
type Handle struct {
	mu    sync.Mutex
	state State

	// Layout is the session's layout cache
	Layout *layout.Cache
}

// Snapshot returns the current state
func (h *Handle) Snapshot() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Update applies fn atomically and returns the new state
func (h *Handle) Update(fn func(State) State) State {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = fn(h.state)
	return h.state
}

// Store is the registry of open sessions
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Handle
	newCache func() *layout.Cache
	opts     []Option
}

// NewStore creates an empty store. newCache builds the layout cache of
// each new session.
func NewStore(newCache func() *layout.Cache, opts ...Option) *Store {
	return &Store{
		sessions: make(map[string]*Handle),
		newCache: newCache,
		opts:     opts,
	}
}

// Create opens a session loaded with text
func (s *Store) Create(text string) *Handle {
	id := uuid.NewString()
	h := &Handle{state: New(id, text, s.opts...)}
	if s.newCache != nil {
		h.Layout = s.newCache()
	}

	s.mu.Lock()
	s.sessions[id] = h
	s.mu.Unlock()
	return h
}

// Get returns the session with id
func (s *Store) Get(id string) (*Handle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return h, nil
}

// Delete closes a session
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	return nil
}

// IDs returns the open session ids, sorted
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of open sessions
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
