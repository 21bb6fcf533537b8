// Package memory provides an in-memory SessionStore for tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/louisbranch/undertone/internal/game/domain"
	"github.com/louisbranch/undertone/internal/game/storage"
	"github.com/louisbranch/undertone/internal/telemetry"
)

// Store keeps all records in process memory. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]storage.SessionRecord
	order    []string
	entries  map[string][]domain.TranscriptEntry
	guesses  map[string][]domain.GuessRecord
	events   []telemetry.InvocationEvent
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		sessions: make(map[string]storage.SessionRecord),
		entries:  make(map[string][]domain.TranscriptEntry),
		guesses:  make(map[string][]domain.GuessRecord),
	}
}

// PutSession persists immutable session metadata.
func (s *Store) PutSession(_ context.Context, rec storage.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.sessions[rec.ID] = rec
	return nil
}

// GetSession returns session metadata or storage.ErrNotFound.
func (s *Store) GetSession(_ context.Context, id string) (storage.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return storage.SessionRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

// ListSessions returns all session metadata, newest first.
func (s *Store) ListSessions(_ context.Context) ([]storage.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]storage.SessionRecord, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		records = append(records, s.sessions[s.order[i]])
	}
	return records, nil
}

// ListTranscript returns transcript entries ordered by (turn, insertion).
func (s *Store) ListTranscript(_ context.Context, sessionID string) ([]domain.TranscriptEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := make([]domain.TranscriptEntry, len(s.entries[sessionID]))
	copy(entries, s.entries[sessionID])
	// Entries are appended in insertion order already; a stable sort by turn
	// preserves it within each round.
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Turn < entries[j].Turn })
	return entries, nil
}

// ListGuesses returns guess records ordered by turn descending.
func (s *Store) ListGuesses(_ context.Context, sessionID string) ([]domain.GuessRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	guesses := make([]domain.GuessRecord, len(s.guesses[sessionID]))
	copy(guesses, s.guesses[sessionID])
	sort.SliceStable(guesses, func(i, j int) bool { return guesses[i].Turn > guesses[j].Turn })
	return guesses, nil
}

// AppendRound atomically persists one round's records.
func (s *Store) AppendRound(_ context.Context, sessionID string, entries []domain.TranscriptEntry, guesses []domain.GuessRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		return storage.ErrNotFound
	}
	s.entries[sessionID] = append(s.entries[sessionID], entries...)
	s.guesses[sessionID] = append(s.guesses[sessionID], guesses...)
	return nil
}

// AppendInvocationEvent records a model-call event.
func (s *Store) AppendInvocationEvent(_ context.Context, evt telemetry.InvocationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
	return nil
}

// InvocationEvents returns a copy of all recorded events.
func (s *Store) InvocationEvents() []telemetry.InvocationEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]telemetry.InvocationEvent, len(s.events))
	copy(events, s.events)
	return events
}
