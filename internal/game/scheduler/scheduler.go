// Package scheduler sequences one conversation round.
//
// Participants speak one at a time in causal order: each prompt includes every
// visible line produced earlier in the same round. A participant whose call or
// payload fails is skipped and recorded; the round always continues to the
// remaining participants.
package scheduler

import (
	"context"
	"errors"
	"log"

	"github.com/louisbranch/undertone/internal/game/adapter"
	"github.com/louisbranch/undertone/internal/game/domain"
	"github.com/louisbranch/undertone/internal/game/normalize"
	"github.com/louisbranch/undertone/internal/game/prompt"
)

// Skip categories, recorded when a participant produces no transcript entry.
const (
	SkipInvocation    = "invocation"
	SkipNormalization = "normalization"
	SkipEmptyOutput   = "empty_output"
)

// Skip records why one participant contributed nothing this round.
type Skip struct {
	ParticipantID string
	Category      string
	Detail        string
}

// RoundResult is the outcome of running one round across the roster.
type RoundResult struct {
	// Outputs holds the normalized output of every participant that spoke,
	// in speaking order.
	Outputs []domain.TurnOutput
	// Entries holds the transcript entries for the spoken outputs, aligned
	// with Outputs.
	Entries []domain.TranscriptEntry
	// Skips records the participants that produced nothing and why.
	Skips []Skip
}

// Invoker performs one participant's model call with its role context.
type Invoker interface {
	Invoke(ctx context.Context, sessionID string, p domain.Participant, roleCtx prompt.Context) (adapter.Result, *adapter.Failure)
}

// RunRound invokes every roster participant once, in speaking order, building
// each prompt from the session transcript plus the entries already produced
// this round. It never mutates the view.
func RunRound(ctx context.Context, invoker Invoker, view *domain.LiveView) RoundResult {
	var result RoundResult
	turn := view.CurrentTurn

	for _, p := range domain.SortBySpeakingOrder(view.Participants) {
		roleCtx := prompt.ForParticipant(view, p, result.Entries)

		callResult, failure := invoker.Invoke(ctx, view.SessionID, p, roleCtx)
		if failure != nil {
			result.Skips = append(result.Skips, Skip{
				ParticipantID: p.ID,
				Category:      SkipInvocation,
				Detail:        failure.Error(),
			})
			log.Printf("round skip session_id=%s participant_id=%s turn=%d category=%s: %v",
				view.SessionID, p.ID, turn, SkipInvocation, failure)
			continue
		}

		out, err := normalize.Normalize(callResult.Raw)
		if err != nil {
			category := SkipNormalization
			if errors.Is(err, normalize.ErrEmptyOutput) {
				category = SkipEmptyOutput
			}
			result.Skips = append(result.Skips, Skip{
				ParticipantID: p.ID,
				Category:      category,
				Detail:        err.Error(),
			})
			log.Printf("round skip session_id=%s participant_id=%s turn=%d category=%s: %v",
				view.SessionID, p.ID, turn, category, err)
			continue
		}
		out.ParticipantID = p.ID

		result.Outputs = append(result.Outputs, out)
		result.Entries = append(result.Entries, domain.TranscriptEntry{
			Turn:             turn,
			ParticipantID:    p.ID,
			ParticipantName:  p.DisplayName,
			VisibleText:      out.VisibleText,
			PrivateReasoning: out.PrivateReasoning,
		})
	}

	return result
}
