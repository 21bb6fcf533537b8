package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/undertone/internal/game/domain"
	"github.com/louisbranch/undertone/internal/game/storage"
	"github.com/louisbranch/undertone/internal/telemetry"
)

func TestSessionRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()

	rec := storage.SessionRecord{
		ID:          "sess-1",
		Topic:       "t",
		SecretWord:  "w",
		GuessBudget: 3,
		CreatedAt:   time.Now().UTC(),
	}
	if err := store.PutSession(ctx, rec); err != nil {
		t.Fatalf("put session: %v", err)
	}
	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if got.ID != "sess-1" {
		t.Fatalf("session = %+v", got)
	}

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	store := New()
	ctx := context.Background()
	for _, id := range []string{"first", "second"} {
		if err := store.PutSession(ctx, storage.SessionRecord{ID: id}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	records, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(records) != 2 || records[0].ID != "second" {
		t.Fatalf("records = %+v", records)
	}
}

func TestAppendRoundOrdering(t *testing.T) {
	store := New()
	ctx := context.Background()
	if err := store.PutSession(ctx, storage.SessionRecord{ID: "sess-1"}); err != nil {
		t.Fatalf("put session: %v", err)
	}

	if err := store.AppendRound(ctx, "sess-1",
		[]domain.TranscriptEntry{{Turn: 1, ParticipantID: "a"}, {Turn: 1, ParticipantID: "b"}},
		[]domain.GuessRecord{{Turn: 1, ParticipantID: "b", GuessText: "x"}},
	); err != nil {
		t.Fatalf("append round 1: %v", err)
	}
	if err := store.AppendRound(ctx, "sess-1",
		[]domain.TranscriptEntry{{Turn: 2, ParticipantID: "a"}},
		[]domain.GuessRecord{{Turn: 2, ParticipantID: "b", GuessText: "y"}},
	); err != nil {
		t.Fatalf("append round 2: %v", err)
	}

	entries, err := store.ListTranscript(ctx, "sess-1")
	if err != nil {
		t.Fatalf("list transcript: %v", err)
	}
	if len(entries) != 3 || entries[0].ParticipantID != "a" || entries[2].Turn != 2 {
		t.Fatalf("entries = %+v", entries)
	}

	guesses, err := store.ListGuesses(ctx, "sess-1")
	if err != nil {
		t.Fatalf("list guesses: %v", err)
	}
	if len(guesses) != 2 || guesses[0].Turn != 2 {
		t.Fatalf("guesses = %+v", guesses)
	}
}

func TestAppendRoundUnknownSession(t *testing.T) {
	store := New()
	err := store.AppendRound(context.Background(), "missing", nil, nil)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestInvocationEvents(t *testing.T) {
	store := New()
	evt := telemetry.InvocationEvent{SessionID: "sess-1", Status: "success"}
	if err := store.AppendInvocationEvent(context.Background(), evt); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events := store.InvocationEvents()
	if len(events) != 1 || events[0].SessionID != "sess-1" {
		t.Fatalf("events = %+v", events)
	}
}
