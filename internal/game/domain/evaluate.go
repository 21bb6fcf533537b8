package domain

import (
	"fmt"
	"strings"
)

// GuessOutcome summarizes one evaluated guess for callers of the round API.
type GuessOutcome struct {
	ParticipantID     string
	ParticipantName   string
	GuessText         string
	Correct           bool
	AttemptsRemaining int
}

// GuessMatches compares a guess to the secret word after trimming whitespace
// and folding case.
func GuessMatches(guess, secret string) bool {
	return strings.EqualFold(strings.TrimSpace(guess), strings.TrimSpace(secret))
}

// EvaluateRound inspects a round's outputs for receiver guesses and applies
// them to the view: wrong guesses decrement that receiver's attempt counter
// (floor 0), and terminal status is resolved once for the whole round. A
// correct guess from any receiver is a collaborative win; a loss only occurs
// when some receiver exhausted its own budget and nobody won this round.
//
// Guesses from non-receivers and empty guesses are inert. The caller must not
// invoke EvaluateRound on a finished session.
func EvaluateRound(view *LiveView, outputs []TurnOutput, turn int) ([]GuessRecord, []GuessOutcome) {
	var records []GuessRecord
	var outcomes []GuessOutcome
	won := false

	for _, out := range outputs {
		participant, ok := view.ParticipantByID(out.ParticipantID)
		if !ok || participant.Role != RoleReceiver {
			continue
		}
		guess := strings.TrimSpace(out.Guess)
		if guess == "" {
			continue
		}

		correct := GuessMatches(guess, view.SecretWord)
		remaining := view.AttemptsRemaining[out.ParticipantID]
		if !correct {
			remaining--
			if remaining < 0 {
				remaining = 0
			}
			view.AttemptsRemaining[out.ParticipantID] = remaining
		}
		if correct {
			won = true
		}

		records = append(records, GuessRecord{
			Turn:                   turn,
			ParticipantID:          out.ParticipantID,
			GuessText:              guess,
			Correct:                correct,
			AttemptsRemainingAfter: remaining,
		})
		outcomes = append(outcomes, GuessOutcome{
			ParticipantID:     out.ParticipantID,
			ParticipantName:   participant.DisplayName,
			GuessText:         guess,
			Correct:           correct,
			AttemptsRemaining: remaining,
		})
	}

	if won {
		view.GameOver = true
		view.GameStatus = StatusWin
		return records, outcomes
	}
	for _, remaining := range view.AttemptsRemaining {
		if remaining == 0 {
			view.GameOver = true
			view.GameStatus = StatusLoss
			break
		}
	}
	return records, outcomes
}

// GuessNote renders the synthetic system-visible transcript text describing a
// round's guess outcomes. Later rounds see that a guess happened and how it
// went, but never the secret itself. Returns "" when no guesses were made.
func GuessNote(outcomes []GuessOutcome) string {
	if len(outcomes) == 0 {
		return ""
	}
	lines := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		name := o.ParticipantName
		if name == "" {
			name = o.ParticipantID
		}
		if o.Correct {
			lines = append(lines, fmt.Sprintf("%s guessed the hidden word correctly. The game is over.", name))
			continue
		}
		lines = append(lines, fmt.Sprintf("%s made an incorrect guess (%d attempts remaining).", name, o.AttemptsRemaining))
	}
	return strings.Join(lines, " ")
}
