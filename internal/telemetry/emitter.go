// Package telemetry records per-invocation model-call events.
//
// Emission is a side channel: it never influences control flow, and a failed
// write never fails the round that produced it.
package telemetry

import (
	"context"
	"time"
)

// InvocationEvent describes one model call, success or failure.
type InvocationEvent struct {
	Timestamp       time.Time
	SessionID       string
	ParticipantID   string
	ParticipantName string
	Role            string
	Provider        string
	Model           string
	Turn            int
	LatencyMS       int64
	// Status is "success" or the failure class that ended the call.
	Status       string
	StatusDetail string
	// Token usage counters, zero when the provider exposes none.
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// EventStore persists invocation events.
type EventStore interface {
	AppendInvocationEvent(ctx context.Context, evt InvocationEvent) error
}

// Emitter records invocation events through an EventStore.
type Emitter struct {
	store EventStore
	clock func() time.Time
}

// NewEmitter creates a new invocation-event emitter.
func NewEmitter(store EventStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records an invocation event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, evt InvocationEvent) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		if e.clock == nil {
			evt.Timestamp = time.Now().UTC()
		} else {
			evt.Timestamp = e.clock().UTC()
		}
	}
	return e.store.AppendInvocationEvent(ctx, evt)
}
