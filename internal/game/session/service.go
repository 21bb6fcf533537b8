// Package session orchestrates game sessions: creation, round advancement,
// and reconciliation of the live view with the durable record log.
//
// The durable log is the source of truth. The live view is a cache: it is
// mutated on a clone during a round and swapped in only after the round
// commits, so a persistence failure never leaves the cache diverged from
// storage. A session evicted from the cache (restart, memory pressure) is
// rebuilt from the log on next access.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/undertone/internal/game/adapter"
	"github.com/louisbranch/undertone/internal/game/domain"
	"github.com/louisbranch/undertone/internal/game/prompt"
	"github.com/louisbranch/undertone/internal/game/scheduler"
	"github.com/louisbranch/undertone/internal/game/storage"
	"github.com/louisbranch/undertone/internal/platform/id"
)

// Caller is the invocation surface the service drives rounds through.
type Caller interface {
	Invoke(ctx context.Context, sessionID string, p domain.Participant, roleCtx prompt.Context) (adapter.Result, *adapter.Failure)
	PrimeSession(sessionID string, roster []domain.Participant) error
	CheckHandles(sessionID string, roster []domain.Participant) error
	DropSession(sessionID string)
}

// liveEntry pairs a cached view with its per-session round lock. TryLock
// keeps a second concurrent round from running instead of queueing it.
type liveEntry struct {
	mu   sync.Mutex
	view *domain.LiveView
}

// Service owns session lifecycle and round orchestration.
type Service struct {
	store  storage.SessionStore
	caller Caller
	budget int
	now    func() time.Time
	pick   func(n int) int
	tracer trace.Tracer

	mu   sync.Mutex
	live map[string]*liveEntry
}

// Options tune service construction.
type Options struct {
	// GuessBudget overrides the per-receiver guess budget. Zero keeps the
	// default.
	GuessBudget int
}

// New creates a session service over a store and an invocation surface.
func New(store storage.SessionStore, caller Caller, opts Options) *Service {
	budget := opts.GuessBudget
	if budget <= 0 {
		budget = domain.DefaultGuessBudget
	}
	return &Service{
		store:  store,
		caller: caller,
		budget: budget,
		now:    time.Now,
		pick:   rand.IntN,
		tracer: otel.Tracer("github.com/louisbranch/undertone/internal/game/session"),
		live:   make(map[string]*liveEntry),
	}
}

// StartRequest describes a new session.
type StartRequest struct {
	Topic        string
	SecretWord   string
	Participants []ParticipantSpec
	// GuessBudget overrides the service default for this session. Zero keeps
	// the default.
	GuessBudget int
}

// StartResult reports a created session. The secret word is withheld.
type StartResult struct {
	SessionID    string
	Topic        string
	Participants []domain.Participant
	GuessBudget  int
	CreatedAt    time.Time
}

// StartSession creates a session, persists its metadata, and primes the
// invocation handles for its roster.
func (s *Service) StartSession(ctx context.Context, req StartRequest) (StartResult, error) {
	topic := strings.TrimSpace(req.Topic)
	if topic == "" {
		return StartResult{}, newError(CodeInvalidRequest, "topic is required")
	}

	roster, err := resolveRoster(req.Participants)
	if err != nil {
		return StartResult{}, err
	}

	secret := strings.TrimSpace(req.SecretWord)
	if secret == "" {
		secret = defaultSecretWords[s.pick(len(defaultSecretWords))]
	}
	budget := req.GuessBudget
	if budget <= 0 {
		budget = s.budget
	}

	sessionID, err := id.NewID()
	if err != nil {
		return StartResult{}, fmt.Errorf("generate session id: %w", err)
	}
	createdAt := s.now().UTC()
	rec := storage.SessionRecord{
		ID:           sessionID,
		Topic:        topic,
		SecretWord:   secret,
		Participants: roster,
		GuessBudget:  budget,
		CreatedAt:    createdAt,
	}
	if err := s.store.PutSession(ctx, rec); err != nil {
		return StartResult{}, wrapError(CodeStorage, err, "persist session")
	}
	if err := s.caller.PrimeSession(sessionID, roster); err != nil {
		return StartResult{}, wrapError(CodeRoundFailed, err, "prime session %s", sessionID)
	}

	view := domain.NewLiveView(sessionID, topic, secret, roster, budget)
	s.mu.Lock()
	s.live[sessionID] = &liveEntry{view: view}
	s.mu.Unlock()

	log.Printf("session started session_id=%s topic=%q participants=%d budget=%d",
		sessionID, topic, len(roster), budget)
	return StartResult{
		SessionID:    sessionID,
		Topic:        topic,
		Participants: roster,
		GuessBudget:  budget,
		CreatedAt:    createdAt,
	}, nil
}

// RoundReport summarizes one completed round.
type RoundReport struct {
	SessionID  string
	Turn       int
	Entries    []domain.TranscriptEntry
	Outcomes   []domain.GuessOutcome
	Skips      []scheduler.Skip
	GameOver   bool
	GameStatus domain.GameStatus
}

// AdvanceRound runs the next round for a session.
//
// The round mutates a clone of the live view; the clone replaces the cached
// view only after the round's records are durably committed. A concurrent
// round for the same session is rejected rather than queued.
func (s *Service) AdvanceRound(ctx context.Context, sessionID string) (RoundReport, error) {
	ctx, span := s.tracer.Start(ctx, "session.advance_round",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	entry, err := s.entryFor(ctx, sessionID)
	if err != nil {
		return RoundReport{}, err
	}
	if !entry.mu.TryLock() {
		return RoundReport{}, newError(CodeRoundInFlight, "session %s already has a round running", sessionID)
	}
	defer entry.mu.Unlock()

	if entry.view.GameOver {
		return RoundReport{}, newError(CodeSessionFinished, "session %s is finished (%s)", sessionID, entry.view.GameStatus)
	}
	if err := s.caller.CheckHandles(sessionID, entry.view.Participants); err != nil {
		if err := s.caller.PrimeSession(sessionID, entry.view.Participants); err != nil {
			return RoundReport{}, wrapError(CodeRoundFailed, err, "prime session %s", sessionID)
		}
	}

	working := entry.view.Clone()
	turn := working.CurrentTurn
	span.SetAttributes(attribute.Int("session.turn", turn))

	result := scheduler.RunRound(ctx, s.caller, working)
	if err := ctx.Err(); err != nil {
		// A cancelled round is discarded wholesale; partial rounds are never
		// committed.
		return RoundReport{SessionID: sessionID, Turn: turn, Skips: result.Skips},
			wrapError(CodeRoundFailed, err, "round %d cancelled for session %s", turn, sessionID)
	}
	if len(result.Outputs) == 0 {
		return RoundReport{SessionID: sessionID, Turn: turn, Skips: result.Skips},
			newError(CodeRoundFailed, "round %d produced no output for session %s", turn, sessionID)
	}

	records, outcomes := domain.EvaluateRound(working, result.Outputs, turn)
	entries := result.Entries
	if note := domain.GuessNote(outcomes); note != "" {
		entries = append(entries, domain.TranscriptEntry{
			Turn:            turn,
			ParticipantID:   domain.SystemParticipantID,
			ParticipantName: domain.SystemParticipantName,
			VisibleText:     note,
		})
	}
	working.Transcript = append(working.Transcript, entries...)
	working.CurrentTurn = turn + 1

	if err := s.store.AppendRound(ctx, sessionID, entries, records); err != nil {
		// The clone is discarded; the cached view still matches storage.
		return RoundReport{}, wrapError(CodeStorage, err, "persist round %d for session %s", turn, sessionID)
	}
	entry.view = working

	if working.GameOver {
		s.caller.DropSession(sessionID)
		log.Printf("session finished session_id=%s turn=%d status=%s", sessionID, turn, working.GameStatus)
	}

	return RoundReport{
		SessionID:  sessionID,
		Turn:       turn,
		Entries:    entries,
		Outcomes:   outcomes,
		Skips:      result.Skips,
		GameOver:   working.GameOver,
		GameStatus: working.GameStatus,
	}, nil
}

// StatusReport is the externally visible state of a session. The secret word
// is revealed only once the session is finished.
type StatusReport struct {
	SessionID         string
	Topic             string
	RoundsCompleted   int
	GameOver          bool
	GameStatus        domain.GameStatus
	SecretWord        string
	Participants      []domain.Participant
	AttemptsRemaining map[string]int
}

// Status reports a session's current state.
func (s *Service) Status(ctx context.Context, sessionID string) (StatusReport, error) {
	entry, err := s.entryFor(ctx, sessionID)
	if err != nil {
		return StatusReport{}, err
	}
	entry.mu.Lock()
	view := entry.view
	entry.mu.Unlock()

	report := StatusReport{
		SessionID:         view.SessionID,
		Topic:             view.Topic,
		RoundsCompleted:   view.CurrentTurn - 1,
		GameOver:          view.GameOver,
		GameStatus:        view.GameStatus,
		Participants:      append([]domain.Participant(nil), view.Participants...),
		AttemptsRemaining: make(map[string]int, len(view.AttemptsRemaining)),
	}
	for pid, n := range view.AttemptsRemaining {
		report.AttemptsRemaining[pid] = n
	}
	if view.GameOver {
		report.SecretWord = view.SecretWord
	}
	return report, nil
}

// HistoryReport is a session's full durable record, read from storage rather
// than from the live cache.
type HistoryReport struct {
	SessionID string
	Topic     string
	Entries   []domain.TranscriptEntry
	Guesses   []domain.GuessRecord
}

// History returns the session's durable transcript and guess log.
func (s *Service) History(ctx context.Context, sessionID string) (HistoryReport, error) {
	rec, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return HistoryReport{}, newError(CodeSessionNotFound, "session %s not found", sessionID)
		}
		return HistoryReport{}, wrapError(CodeStorage, err, "load session %s", sessionID)
	}
	entries, err := s.store.ListTranscript(ctx, sessionID)
	if err != nil {
		return HistoryReport{}, wrapError(CodeStorage, err, "load transcript for %s", sessionID)
	}
	guesses, err := s.store.ListGuesses(ctx, sessionID)
	if err != nil {
		return HistoryReport{}, wrapError(CodeStorage, err, "load guesses for %s", sessionID)
	}
	return HistoryReport{
		SessionID: rec.ID,
		Topic:     rec.Topic,
		Entries:   entries,
		Guesses:   guesses,
	}, nil
}

// Summary is one row of the session listing.
type Summary struct {
	SessionID    string
	Topic        string
	Participants int
	CreatedAt    time.Time
}

// ListSessions lists all sessions, newest first.
func (s *Service) ListSessions(ctx context.Context) ([]Summary, error) {
	records, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, wrapError(CodeStorage, err, "list sessions")
	}
	summaries := make([]Summary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, Summary{
			SessionID:    rec.ID,
			Topic:        rec.Topic,
			Participants: len(rec.Participants),
			CreatedAt:    rec.CreatedAt,
		})
	}
	return summaries, nil
}

// Evict drops a session's cached view and invocation handles. The next access
// rebuilds both from storage.
func (s *Service) Evict(sessionID string) {
	s.mu.Lock()
	delete(s.live, sessionID)
	s.mu.Unlock()
	s.caller.DropSession(sessionID)
}

// entryFor returns the cached live entry for a session, hydrating it from the
// durable log when missing.
func (s *Service) entryFor(ctx context.Context, sessionID string) (*liveEntry, error) {
	s.mu.Lock()
	entry, ok := s.live[sessionID]
	s.mu.Unlock()
	if ok {
		return entry, nil
	}

	view, err := s.hydrate(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.live[sessionID]; ok {
		// Another caller hydrated concurrently; both views are projections of
		// the same log.
		return existing, nil
	}
	entry = &liveEntry{view: view}
	s.live[sessionID] = entry
	return entry, nil
}

// hydrate rebuilds the live view purely from durable records, then re-primes
// the session's invocation handles.
func (s *Service) hydrate(ctx context.Context, sessionID string) (*domain.LiveView, error) {
	rec, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newError(CodeSessionNotFound, "session %s not found", sessionID)
		}
		return nil, wrapError(CodeStorage, err, "load session %s", sessionID)
	}
	entries, err := s.store.ListTranscript(ctx, sessionID)
	if err != nil {
		return nil, wrapError(CodeStorage, err, "load transcript for %s", sessionID)
	}
	guesses, err := s.store.ListGuesses(ctx, sessionID)
	if err != nil {
		return nil, wrapError(CodeStorage, err, "load guesses for %s", sessionID)
	}

	view := domain.NewLiveView(rec.ID, rec.Topic, rec.SecretWord, rec.Participants, rec.GuessBudget)
	view.Transcript = entries
	maxTurn := 0
	for _, entry := range entries {
		if entry.Turn > maxTurn {
			maxTurn = entry.Turn
		}
	}
	view.CurrentTurn = maxTurn + 1

	// Guesses arrive newest first, so the first record seen per receiver is
	// its latest counter.
	won := false
	latest := make(map[string]bool, len(view.AttemptsRemaining))
	for _, guess := range guesses {
		if guess.Correct {
			won = true
		}
		if _, tracked := view.AttemptsRemaining[guess.ParticipantID]; !tracked {
			continue
		}
		if latest[guess.ParticipantID] {
			continue
		}
		latest[guess.ParticipantID] = true
		view.AttemptsRemaining[guess.ParticipantID] = guess.AttemptsRemainingAfter
	}

	if won {
		view.GameOver = true
		view.GameStatus = domain.StatusWin
	} else {
		for _, remaining := range view.AttemptsRemaining {
			if remaining == 0 {
				view.GameOver = true
				view.GameStatus = domain.StatusLoss
				break
			}
		}
	}

	if err := s.caller.PrimeSession(sessionID, rec.Participants); err != nil {
		return nil, wrapError(CodeRoundFailed, err, "prime session %s", sessionID)
	}

	log.Printf("session hydrated session_id=%s rounds=%d status=%q", sessionID, maxTurn, view.GameStatus)
	return view, nil
}
