package session

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/louisbranch/undertone/internal/game/adapter"
	"github.com/louisbranch/undertone/internal/game/domain"
	"github.com/louisbranch/undertone/internal/game/normalize"
	"github.com/louisbranch/undertone/internal/game/prompt"
	"github.com/louisbranch/undertone/internal/game/storage/memory"
)

type capturedCall struct {
	participantID string
	turn          int
	promptText    string
}

// fakeCaller scripts per-participant results and records priming, drops, and
// every rendered prompt.
type fakeCaller struct {
	mu       sync.Mutex
	script   map[string][]adapter.Result
	failures map[string]*adapter.Failure
	calls    []capturedCall
	primes   int
	drops    []string
}

func newFakeCaller() *fakeCaller {
	return &fakeCaller{
		script:   make(map[string][]adapter.Result),
		failures: make(map[string]*adapter.Failure),
	}
}

func (f *fakeCaller) push(participantID, visible, reasoning, guess string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script[participantID] = append(f.script[participantID], adapter.Result{
		Raw: normalize.Typed(domain.TurnOutput{
			VisibleText:      visible,
			PrivateReasoning: reasoning,
			Guess:            guess,
		}),
	})
}

func (f *fakeCaller) Invoke(_ context.Context, _ string, p domain.Participant, roleCtx prompt.Context) (adapter.Result, *adapter.Failure) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, capturedCall{participantID: p.ID, turn: roleCtx.Turn, promptText: roleCtx.Render()})
	if failure, ok := f.failures[p.ID]; ok {
		return adapter.Result{}, failure
	}
	queue := f.script[p.ID]
	if len(queue) == 0 {
		return adapter.Result{Raw: normalize.Typed(domain.TurnOutput{VisibleText: "..."})}, nil
	}
	result := queue[0]
	f.script[p.ID] = queue[1:]
	return result, nil
}

func (f *fakeCaller) PrimeSession(string, []domain.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.primes++
	return nil
}

func (f *fakeCaller) CheckHandles(string, []domain.Participant) error { return nil }

func (f *fakeCaller) DropSession(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drops = append(f.drops, sessionID)
}

func specRoster() []ParticipantSpec {
	return []ParticipantSpec{
		{ID: "com", Role: domain.RoleCommunicator, Provider: "openai"},
		{ID: "rec", DisplayName: "Scout", Role: domain.RoleReceiver, Provider: "anthropic"},
		{ID: "bys", Role: domain.RoleBystander, Provider: "google"},
	}
}

func newTestService(t *testing.T) (*Service, *memory.Store, *fakeCaller) {
	t.Helper()
	store := memory.New()
	caller := newFakeCaller()
	svc := New(store, caller, Options{})
	svc.pick = func(int) int { return 0 }
	return svc, store, caller
}

func startSession(t *testing.T, svc *Service, secret string) StartResult {
	t.Helper()
	result, err := svc.StartSession(context.Background(), StartRequest{
		Topic:        "urban gardening",
		SecretWord:   secret,
		Participants: specRoster(),
	})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	return result
}

func TestStartSessionDefaults(t *testing.T) {
	svc, store, caller := newTestService(t)
	result, err := svc.StartSession(context.Background(), StartRequest{
		Topic:        "urban gardening",
		Participants: specRoster(),
	})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	if result.SessionID == "" {
		t.Fatal("expected generated session id")
	}
	if result.GuessBudget != domain.DefaultGuessBudget {
		t.Fatalf("budget = %d, want %d", result.GuessBudget, domain.DefaultGuessBudget)
	}
	if result.Participants[0].DisplayName != "Participant Alpha" {
		t.Fatalf("first default name = %q", result.Participants[0].DisplayName)
	}
	if result.Participants[1].DisplayName != "Scout" {
		t.Fatalf("explicit name = %q", result.Participants[1].DisplayName)
	}
	if result.Participants[2].DisplayName != "Participant Gamma" {
		t.Fatalf("third default name = %q", result.Participants[2].DisplayName)
	}

	rec, err := store.GetSession(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if rec.SecretWord != defaultSecretWords[0] {
		t.Fatalf("secret = %q, want pool word", rec.SecretWord)
	}
	if caller.primes != 1 {
		t.Fatalf("primes = %d, want 1", caller.primes)
	}
}

func TestStartSessionValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.StartSession(ctx, StartRequest{Participants: specRoster()})
	if CodeOf(err) != CodeInvalidRequest {
		t.Fatalf("empty topic code = %s", CodeOf(err))
	}

	noCommunicator := []ParticipantSpec{
		{ID: "rec", Role: domain.RoleReceiver, Provider: "anthropic"},
	}
	_, err = svc.StartSession(ctx, StartRequest{Topic: "t", Participants: noCommunicator})
	if CodeOf(err) != CodeInvalidRoster {
		t.Fatalf("no communicator code = %s", CodeOf(err))
	}
}

func TestAdvanceRoundPersistsAndAdvances(t *testing.T) {
	svc, store, caller := newTestService(t)
	result := startSession(t, svc, "lighthouse")
	ctx := context.Background()

	caller.push("com", "the harbor lighthouse blinked twice", "embedded early", "")
	caller.push("rec", "what a view that must be", "watching word choice", "")
	caller.push("bys", "I prefer the hills myself", "", "")

	report, err := svc.AdvanceRound(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("advance round: %v", err)
	}
	if report.Turn != 1 {
		t.Fatalf("turn = %d, want 1", report.Turn)
	}
	if len(report.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(report.Entries))
	}
	if report.GameOver {
		t.Fatal("game unexpectedly over")
	}

	entries, err := store.ListTranscript(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("list transcript: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("persisted entries = %d, want 3", len(entries))
	}

	status, err := svc.Status(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.RoundsCompleted != 1 {
		t.Fatalf("rounds completed = %d, want 1", status.RoundsCompleted)
	}
	if status.SecretWord != "" {
		t.Fatal("secret leaked before game over")
	}
}

func TestAdvanceRoundCausalPrompts(t *testing.T) {
	svc, _, caller := newTestService(t)
	result := startSession(t, svc, "lighthouse")

	caller.push("com", "first line", "", "")
	caller.push("rec", "second line", "", "")
	caller.push("bys", "third line", "", "")

	if _, err := svc.AdvanceRound(context.Background(), result.SessionID); err != nil {
		t.Fatalf("advance round: %v", err)
	}

	if len(caller.calls) != 3 {
		t.Fatalf("calls = %d, want 3", len(caller.calls))
	}
	if !strings.Contains(caller.calls[1].promptText, "first line") {
		t.Fatal("second speaker missing first speaker's line")
	}
	if !strings.Contains(caller.calls[2].promptText, "second line") {
		t.Fatal("third speaker missing second speaker's line")
	}
	if strings.Contains(caller.calls[1].promptText, "lighthouse") {
		t.Fatal("secret leaked to receiver prompt")
	}
}

func TestWrongGuessDecrementsAndNotes(t *testing.T) {
	svc, store, caller := newTestService(t)
	result := startSession(t, svc, "lighthouse")
	ctx := context.Background()

	caller.push("com", "a", "", "")
	caller.push("rec", "b", "", "harbor")
	caller.push("bys", "c", "", "")

	report, err := svc.AdvanceRound(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("advance round: %v", err)
	}
	if len(report.Outcomes) != 1 || report.Outcomes[0].Correct {
		t.Fatalf("outcomes = %+v", report.Outcomes)
	}
	if report.Outcomes[0].AttemptsRemaining != 2 {
		t.Fatalf("attempts = %d, want 2", report.Outcomes[0].AttemptsRemaining)
	}

	last := report.Entries[len(report.Entries)-1]
	if last.ParticipantID != domain.SystemParticipantID {
		t.Fatalf("expected synthetic note, got %+v", last)
	}
	if !strings.Contains(last.VisibleText, "Scout made an incorrect guess (2 attempts remaining).") {
		t.Fatalf("note = %q", last.VisibleText)
	}
	if strings.Contains(last.VisibleText, "lighthouse") || strings.Contains(last.VisibleText, "harbor") {
		t.Fatalf("note leaked guess or secret: %q", last.VisibleText)
	}

	guesses, err := store.ListGuesses(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("list guesses: %v", err)
	}
	if len(guesses) != 1 || guesses[0].AttemptsRemainingAfter != 2 {
		t.Fatalf("guesses = %+v", guesses)
	}

	// The note becomes visible context in the next round.
	caller.push("com", "a2", "", "")
	caller.push("rec", "b2", "", "")
	caller.push("bys", "c2", "", "")
	if _, err := svc.AdvanceRound(ctx, result.SessionID); err != nil {
		t.Fatalf("advance round 2: %v", err)
	}
	secondRoundPrompt := caller.calls[3].promptText
	if !strings.Contains(secondRoundPrompt, "Game: Scout made an incorrect guess") {
		t.Fatalf("note missing from next round prompt:\n%s", secondRoundPrompt)
	}
}

func TestCorrectGuessWinsForEveryone(t *testing.T) {
	svc, _, caller := newTestService(t)
	result := startSession(t, svc, "lighthouse")
	ctx := context.Background()

	caller.push("com", "a", "", "")
	caller.push("rec", "b", "", " Lighthouse ")
	caller.push("bys", "c", "", "")

	report, err := svc.AdvanceRound(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("advance round: %v", err)
	}
	if !report.GameOver || report.GameStatus != domain.StatusWin {
		t.Fatalf("report = %+v", report)
	}
	if len(caller.drops) != 1 {
		t.Fatalf("drops = %v, want one", caller.drops)
	}

	status, err := svc.Status(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.SecretWord != "lighthouse" {
		t.Fatalf("secret after win = %q", status.SecretWord)
	}

	_, err = svc.AdvanceRound(ctx, result.SessionID)
	if CodeOf(err) != CodeSessionFinished {
		t.Fatalf("post-win code = %s", CodeOf(err))
	}
}

func TestBudgetExhaustionLoses(t *testing.T) {
	svc, _, caller := newTestService(t)
	result, err := svc.StartSession(context.Background(), StartRequest{
		Topic:        "tea ceremonies",
		SecretWord:   "lighthouse",
		Participants: specRoster(),
		GuessBudget:  1,
	})
	if err != nil {
		t.Fatalf("start session: %v", err)
	}

	caller.push("com", "a", "", "")
	caller.push("rec", "b", "", "harbor")
	caller.push("bys", "c", "", "")

	report, err := svc.AdvanceRound(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("advance round: %v", err)
	}
	if !report.GameOver || report.GameStatus != domain.StatusLoss {
		t.Fatalf("report = %+v", report)
	}
}

func TestRoundInFlightRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	result := startSession(t, svc, "lighthouse")

	svc.mu.Lock()
	entry := svc.live[result.SessionID]
	svc.mu.Unlock()
	entry.mu.Lock()
	defer entry.mu.Unlock()

	_, err := svc.AdvanceRound(context.Background(), result.SessionID)
	if CodeOf(err) != CodeRoundInFlight {
		t.Fatalf("code = %s, want %s", CodeOf(err), CodeRoundInFlight)
	}
}

func TestAllParticipantsFailingFailsRound(t *testing.T) {
	svc, store, caller := newTestService(t)
	result := startSession(t, svc, "lighthouse")

	for _, pid := range []string{"com", "rec", "bys"} {
		caller.failures[pid] = &adapter.Failure{Class: adapter.ClassTimeout, Detail: "deadline exceeded"}
	}

	_, err := svc.AdvanceRound(context.Background(), result.SessionID)
	if CodeOf(err) != CodeRoundFailed {
		t.Fatalf("code = %s, want %s", CodeOf(err), CodeRoundFailed)
	}

	entries, err := store.ListTranscript(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("list transcript: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("persisted entries = %d, want 0", len(entries))
	}
	status, err := svc.Status(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.RoundsCompleted != 0 {
		t.Fatalf("rounds completed = %d, want 0", status.RoundsCompleted)
	}
}

func TestCancelledRoundIsDiscarded(t *testing.T) {
	svc, store, caller := newTestService(t)
	result := startSession(t, svc, "lighthouse")

	ctx, cancel := context.WithCancel(context.Background())
	caller.push("com", "a", "", "")
	caller.push("rec", "b", "", "")
	caller.push("bys", "c", "", "")
	cancel()

	_, err := svc.AdvanceRound(ctx, result.SessionID)
	if CodeOf(err) != CodeRoundFailed {
		t.Fatalf("code = %s, want %s", CodeOf(err), CodeRoundFailed)
	}
	entries, err := store.ListTranscript(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("list transcript: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("persisted entries = %d, want 0", len(entries))
	}
}

// failingStore wraps a working store and fails every AppendRound.
type failingStore struct {
	*memory.Store
}

func (f *failingStore) AppendRound(context.Context, string, []domain.TranscriptEntry, []domain.GuessRecord) error {
	return fmt.Errorf("disk full")
}

func TestPersistenceFailureLeavesViewUnchanged(t *testing.T) {
	store := &failingStore{Store: memory.New()}
	caller := newFakeCaller()
	svc := New(store, caller, Options{})
	svc.pick = func(int) int { return 0 }

	result := startSession(t, svc, "lighthouse")
	caller.push("com", "a", "", "")
	caller.push("rec", "b", "", "harbor")
	caller.push("bys", "c", "", "")

	_, err := svc.AdvanceRound(context.Background(), result.SessionID)
	if CodeOf(err) != CodeStorage {
		t.Fatalf("code = %s, want %s", CodeOf(err), CodeStorage)
	}

	status, err := svc.Status(context.Background(), result.SessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if status.RoundsCompleted != 0 {
		t.Fatalf("rounds completed = %d, want 0", status.RoundsCompleted)
	}
	if status.AttemptsRemaining["rec"] != domain.DefaultGuessBudget {
		t.Fatalf("attempts = %d, want untouched budget", status.AttemptsRemaining["rec"])
	}
}

func TestHydrationRebuildsFromDurableLog(t *testing.T) {
	svc, _, caller := newTestService(t)
	result := startSession(t, svc, "lighthouse")
	ctx := context.Background()

	caller.push("com", "a", "", "")
	caller.push("rec", "b", "", "harbor")
	caller.push("bys", "c", "", "")
	if _, err := svc.AdvanceRound(ctx, result.SessionID); err != nil {
		t.Fatalf("advance round: %v", err)
	}

	before, err := svc.Status(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("status before: %v", err)
	}

	primesBefore := caller.primes
	svc.Evict(result.SessionID)

	after, err := svc.Status(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("status after hydration: %v", err)
	}
	if after.RoundsCompleted != before.RoundsCompleted {
		t.Fatalf("rounds = %d, want %d", after.RoundsCompleted, before.RoundsCompleted)
	}
	if after.AttemptsRemaining["rec"] != 2 {
		t.Fatalf("attempts = %d, want 2", after.AttemptsRemaining["rec"])
	}
	if after.GameOver {
		t.Fatal("hydrated view unexpectedly finished")
	}
	if caller.primes != primesBefore+1 {
		t.Fatalf("primes = %d, want re-prime after eviction", caller.primes)
	}

	// The next round continues the same session where it left off.
	caller.push("com", "a2", "", "")
	caller.push("rec", "b2", "", "")
	caller.push("bys", "c2", "", "")
	report, err := svc.AdvanceRound(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("advance after hydration: %v", err)
	}
	if report.Turn != 2 {
		t.Fatalf("turn = %d, want 2", report.Turn)
	}
}

func TestHydrationIsIdempotent(t *testing.T) {
	svc, _, caller := newTestService(t)
	result := startSession(t, svc, "lighthouse")
	ctx := context.Background()

	caller.push("com", "a", "thinking", "")
	caller.push("rec", "b", "", "harbor")
	caller.push("bys", "c", "", "")
	if _, err := svc.AdvanceRound(ctx, result.SessionID); err != nil {
		t.Fatalf("advance round: %v", err)
	}
	svc.Evict(result.SessionID)

	first, err := svc.hydrate(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("first hydration: %v", err)
	}
	second, err := svc.hydrate(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("second hydration: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("hydration not idempotent:\nfirst  = %+v\nsecond = %+v", first, second)
	}
}

func TestHydrationRecoversTerminalState(t *testing.T) {
	svc, _, caller := newTestService(t)
	result := startSession(t, svc, "lighthouse")
	ctx := context.Background()

	caller.push("com", "a", "", "")
	caller.push("rec", "b", "", "lighthouse")
	caller.push("bys", "c", "", "")
	if _, err := svc.AdvanceRound(ctx, result.SessionID); err != nil {
		t.Fatalf("advance round: %v", err)
	}

	svc.Evict(result.SessionID)

	status, err := svc.Status(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !status.GameOver || status.GameStatus != domain.StatusWin {
		t.Fatalf("status = %+v", status)
	}
	if _, err := svc.AdvanceRound(ctx, result.SessionID); CodeOf(err) != CodeSessionFinished {
		t.Fatalf("code = %s, want %s", CodeOf(err), CodeSessionFinished)
	}
}

func TestUnknownSessionNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Status(context.Background(), "missing")
	if CodeOf(err) != CodeSessionNotFound {
		t.Fatalf("code = %s", CodeOf(err))
	}
	var sessionErr *Error
	if !errors.As(err, &sessionErr) {
		t.Fatal("expected *Error")
	}
}

func TestHistoryReadsDurableRecords(t *testing.T) {
	svc, _, caller := newTestService(t)
	result := startSession(t, svc, "lighthouse")
	ctx := context.Background()

	caller.push("com", "a", "private thought", "")
	caller.push("rec", "b", "", "harbor")
	caller.push("bys", "c", "", "")
	if _, err := svc.AdvanceRound(ctx, result.SessionID); err != nil {
		t.Fatalf("advance round: %v", err)
	}

	history, err := svc.History(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if history.Topic != "urban gardening" {
		t.Fatalf("topic = %q", history.Topic)
	}
	if len(history.Entries) != 4 {
		t.Fatalf("entries = %d, want 3 turns + note", len(history.Entries))
	}
	if history.Entries[0].PrivateReasoning != "private thought" {
		t.Fatalf("private reasoning = %q", history.Entries[0].PrivateReasoning)
	}
	if len(history.Guesses) != 1 {
		t.Fatalf("guesses = %d, want 1", len(history.Guesses))
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	first := startSession(t, svc, "lighthouse")
	second := startSession(t, svc, "lighthouse")

	summaries, err := svc.ListSessions(context.Background())
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("summaries = %d, want 2", len(summaries))
	}
	if summaries[0].SessionID != second.SessionID || summaries[1].SessionID != first.SessionID {
		t.Fatalf("order = %s,%s", summaries[0].SessionID, summaries[1].SessionID)
	}
}
