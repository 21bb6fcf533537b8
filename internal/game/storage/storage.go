// Package storage defines the durable-record interfaces for game sessions.
//
// The durable log is the source of truth: session metadata is immutable,
// transcript entries and guess records are append-only, and the live session
// view is always reconstructible from them alone.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/undertone/internal/game/domain"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// SessionRecord is the immutable metadata persisted at session start.
type SessionRecord struct {
	ID           string
	Topic        string
	SecretWord   string
	Participants []domain.Participant
	GuessBudget  int
	CreatedAt    time.Time
}

// SessionStore persists session metadata and the append-only round records.
type SessionStore interface {
	// PutSession persists immutable session metadata.
	PutSession(ctx context.Context, rec SessionRecord) error
	// GetSession returns session metadata or ErrNotFound.
	GetSession(ctx context.Context, id string) (SessionRecord, error)
	// ListSessions returns all session metadata, newest first.
	ListSessions(ctx context.Context) ([]SessionRecord, error)
	// ListTranscript returns all transcript entries ordered by
	// (turn, insertion order).
	ListTranscript(ctx context.Context, sessionID string) ([]domain.TranscriptEntry, error)
	// ListGuesses returns all guess records ordered by turn descending.
	ListGuesses(ctx context.Context, sessionID string) ([]domain.GuessRecord, error)
	// AppendRound atomically persists one round's transcript entries and
	// guess records. Either everything is recorded or nothing is.
	AppendRound(ctx context.Context, sessionID string, entries []domain.TranscriptEntry, guesses []domain.GuessRecord) error
}
