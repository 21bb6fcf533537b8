// Package sqlite provides SQLite-backed persistence for game sessions.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/louisbranch/undertone/internal/game/domain"
	"github.com/louisbranch/undertone/internal/game/storage"
	"github.com/louisbranch/undertone/internal/game/storage/sqlite/migrations"
	"github.com/louisbranch/undertone/internal/platform/storage/sqlitemigrate"
	"github.com/louisbranch/undertone/internal/telemetry"
)

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func encodeParticipants(roster []domain.Participant) (string, error) {
	encoded, err := json.Marshal(roster)
	if err != nil {
		return "", fmt.Errorf("marshal participants: %w", err)
	}
	return string(encoded), nil
}

func decodeParticipants(value string) ([]domain.Participant, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	var roster []domain.Participant
	if err := json.Unmarshal([]byte(value), &roster); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	return roster, nil
}

// Store provides SQLite-backed persistence for session records and
// invocation events.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a SQLite store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

// Close closes the underlying SQLite database.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// PutSession persists immutable session metadata.
func (s *Store) PutSession(ctx context.Context, rec storage.SessionRecord) error {
	participants, err := encodeParticipants(rec.Participants)
	if err != nil {
		return err
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO sessions (id, topic, secret_word, participants, guess_budget, created_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Topic, rec.SecretWord, participants, rec.GuessBudget, toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession returns session metadata or storage.ErrNotFound.
func (s *Store) GetSession(ctx context.Context, id string) (storage.SessionRecord, error) {
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, topic, secret_word, participants, guess_budget, created_at
FROM sessions WHERE id = ?`, id)

	rec, err := scanSessionRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.SessionRecord{}, storage.ErrNotFound
		}
		return storage.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

// ListSessions returns all session metadata, newest first.
func (s *Store) ListSessions(ctx context.Context) ([]storage.SessionRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, topic, secret_word, participants, guess_budget, created_at
FROM sessions ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var records []storage.SessionRecord
	for rows.Next() {
		rec, err := scanSessionRow(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	return records, nil
}

func scanSessionRow(scan func(dest ...any) error) (storage.SessionRecord, error) {
	var (
		rec             storage.SessionRecord
		participantsRaw string
		createdAt       int64
	)
	if err := scan(&rec.ID, &rec.Topic, &rec.SecretWord, &participantsRaw, &rec.GuessBudget, &createdAt); err != nil {
		return storage.SessionRecord{}, err
	}
	roster, err := decodeParticipants(participantsRaw)
	if err != nil {
		return storage.SessionRecord{}, err
	}
	rec.Participants = roster
	rec.CreatedAt = fromMillis(createdAt)
	return rec, nil
}

// ListTranscript returns transcript entries ordered by (turn, insertion).
func (s *Store) ListTranscript(ctx context.Context, sessionID string) ([]domain.TranscriptEntry, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT turn, participant_id, participant_name, visible_text, private_reasoning
FROM transcript_entries WHERE session_id = ? ORDER BY turn ASC, id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list transcript: %w", err)
	}
	defer rows.Close()

	var entries []domain.TranscriptEntry
	for rows.Next() {
		var entry domain.TranscriptEntry
		if err := rows.Scan(&entry.Turn, &entry.ParticipantID, &entry.ParticipantName, &entry.VisibleText, &entry.PrivateReasoning); err != nil {
			return nil, fmt.Errorf("scan transcript entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	return entries, nil
}

// ListGuesses returns guess records ordered by turn descending.
func (s *Store) ListGuesses(ctx context.Context, sessionID string) ([]domain.GuessRecord, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT turn, participant_id, guess_text, correct, attempts_remaining_after
FROM guesses WHERE session_id = ? ORDER BY turn DESC, id DESC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list guesses: %w", err)
	}
	defer rows.Close()

	var guesses []domain.GuessRecord
	for rows.Next() {
		var guess domain.GuessRecord
		if err := rows.Scan(&guess.Turn, &guess.ParticipantID, &guess.GuessText, &guess.Correct, &guess.AttemptsRemainingAfter); err != nil {
			return nil, fmt.Errorf("scan guess: %w", err)
		}
		guesses = append(guesses, guess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read guesses: %w", err)
	}
	return guesses, nil
}

// AppendRound atomically persists one round's transcript entries and guess
// records in a single transaction.
func (s *Store) AppendRound(ctx context.Context, sessionID string, entries []domain.TranscriptEntry, guesses []domain.GuessRecord) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin round transaction: %w", err)
	}

	for _, entry := range entries {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO transcript_entries (session_id, turn, participant_id, participant_name, visible_text, private_reasoning)
VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, entry.Turn, entry.ParticipantID, entry.ParticipantName, entry.VisibleText, entry.PrivateReasoning,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert transcript entry: %w", err)
		}
	}
	for _, guess := range guesses {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO guesses (session_id, turn, participant_id, guess_text, correct, attempts_remaining_after)
VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, guess.Turn, guess.ParticipantID, guess.GuessText, guess.Correct, guess.AttemptsRemainingAfter,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert guess: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit round: %w", err)
	}
	return nil
}

// AppendInvocationEvent records one model-call event.
func (s *Store) AppendInvocationEvent(ctx context.Context, evt telemetry.InvocationEvent) error {
	timestamp := evt.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO invocation_events (created_at, session_id, participant_id, participant_name, role, provider, model, turn, latency_ms, status, status_detail, prompt_tokens, completion_tokens, total_tokens)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		toMillis(timestamp), evt.SessionID, evt.ParticipantID, evt.ParticipantName, evt.Role,
		evt.Provider, evt.Model, evt.Turn, evt.LatencyMS, evt.Status, evt.StatusDetail,
		evt.PromptTokens, evt.CompletionTokens, evt.TotalTokens,
	)
	if err != nil {
		return fmt.Errorf("insert invocation event: %w", err)
	}
	return nil
}
