package domain

import "strings"

// TurnOutput is the canonical, normalized result of one participant's turn.
type TurnOutput struct {
	ParticipantID    string
	VisibleText      string
	PrivateReasoning string
	// Guess is the receiver's guess at the secret word; empty means no guess.
	Guess string
}

// Empty reports whether the output carries no content at all. Empty outputs
// are excluded from round results.
func (o TurnOutput) Empty() bool {
	return strings.TrimSpace(o.VisibleText) == "" &&
		strings.TrimSpace(o.PrivateReasoning) == "" &&
		strings.TrimSpace(o.Guess) == ""
}

// TranscriptEntry is one visible contribution to the conversation. Entries are
// append-only and never mutated. Private reasoning is persisted beside the
// entry but must never be fed back into any other participant's context.
type TranscriptEntry struct {
	Turn             int
	ParticipantID    string
	ParticipantName  string
	VisibleText      string
	PrivateReasoning string
}

// GuessRecord captures one evaluated guess. Append-only.
type GuessRecord struct {
	Turn                   int
	ParticipantID          string
	GuessText              string
	Correct                bool
	AttemptsRemainingAfter int
}

// SystemParticipantID marks synthetic transcript entries produced by the game
// itself rather than by a roster participant.
const SystemParticipantID = "system"

// SystemParticipantName is the display name attached to synthetic entries.
const SystemParticipantName = "Game"
