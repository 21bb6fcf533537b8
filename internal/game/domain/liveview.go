package domain

// GameStatus is the terminal outcome of a session, empty while in progress.
type GameStatus string

const (
	// StatusInProgress means no terminal condition has been reached.
	StatusInProgress GameStatus = ""
	// StatusWin means a receiver guessed the secret word. The win is
	// collaborative: one correct guess ends the game for everyone.
	StatusWin GameStatus = "win"
	// StatusLoss means a receiver exhausted its guess budget without a win.
	StatusLoss GameStatus = "loss"
)

// DefaultGuessBudget is the number of guesses each receiver starts with.
const DefaultGuessBudget = 3

// LiveView is the volatile aggregate for one session. It is owned by exactly
// one orchestrator at a time; concurrent mutation is prevented by the session
// service's per-session lock.
type LiveView struct {
	SessionID    string
	Topic        string
	SecretWord   string
	Participants []Participant
	Transcript   []TranscriptEntry
	// CurrentTurn is the 1-based number of the next round to run.
	CurrentTurn int
	// AttemptsRemaining tracks each receiver's guess budget, keyed by
	// participant id. Defined for receivers only.
	AttemptsRemaining map[string]int
	GameOver          bool
	GameStatus        GameStatus
}

// NewLiveView builds a fresh view for a just-started session, priming each
// receiver's attempt counter with the given budget.
func NewLiveView(sessionID, topic, secret string, roster []Participant, budget int) *LiveView {
	if budget <= 0 {
		budget = DefaultGuessBudget
	}
	attempts := make(map[string]int)
	for _, p := range roster {
		if p.Role == RoleReceiver {
			attempts[p.ID] = budget
		}
	}
	return &LiveView{
		SessionID:         sessionID,
		Topic:             topic,
		SecretWord:        secret,
		Participants:      roster,
		CurrentTurn:       1,
		AttemptsRemaining: attempts,
	}
}

// ParticipantByID returns the roster entry with the given id.
func (v *LiveView) ParticipantByID(id string) (Participant, bool) {
	for _, p := range v.Participants {
		if p.ID == id {
			return p, true
		}
	}
	return Participant{}, false
}

// Clone returns a deep copy of the view. The session service mutates a clone
// during a round and only swaps it in once the round is durably committed, so
// a persistence failure never leaves the cached view diverged from storage.
func (v *LiveView) Clone() *LiveView {
	if v == nil {
		return nil
	}
	cloned := *v
	cloned.Participants = make([]Participant, len(v.Participants))
	copy(cloned.Participants, v.Participants)
	cloned.Transcript = make([]TranscriptEntry, len(v.Transcript))
	copy(cloned.Transcript, v.Transcript)
	cloned.AttemptsRemaining = make(map[string]int, len(v.AttemptsRemaining))
	for id, n := range v.AttemptsRemaining {
		cloned.AttemptsRemaining[id] = n
	}
	return &cloned
}
