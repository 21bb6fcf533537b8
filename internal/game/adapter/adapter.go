// Package adapter wraps external model calls behind a uniform invocation
// surface.
//
// Each session holds one primed handle per roster participant. A handle binds
// the participant to a provider invoker; invoking through the adapter renders
// the role context, measures latency, emits one invocation event per call,
// and reports every failure as a typed value.
package adapter

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/louisbranch/undertone/internal/game/domain"
	"github.com/louisbranch/undertone/internal/game/normalize"
	"github.com/louisbranch/undertone/internal/game/prompt"
	"github.com/louisbranch/undertone/internal/telemetry"
)

// Usage reports the token counters a provider exposed for one call.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
	TotalTokens      int64
}

// Result is a successful invocation payload before normalization.
type Result struct {
	Raw   normalize.RawOutput
	Model string
	Usage Usage
}

// Invoker performs one provider-bound model call.
type Invoker interface {
	Invoke(ctx context.Context, promptText string) (Result, error)
}

// InvokerFactory builds an invoker for one roster participant.
type InvokerFactory func(p domain.Participant) (Invoker, error)

type handle struct {
	invoker     Invoker
	participant domain.Participant
}

// Adapter owns per-session invocation handles and the provider registry.
type Adapter struct {
	emitter *telemetry.Emitter

	mu        sync.RWMutex
	factories map[string]InvokerFactory
	handles   map[string]map[string]handle
}

// New creates an adapter. The emitter may be nil; invocation events are then
// dropped.
func New(emitter *telemetry.Emitter) *Adapter {
	return &Adapter{
		emitter:   emitter,
		factories: make(map[string]InvokerFactory),
		handles:   make(map[string]map[string]handle),
	}
}

// RegisterProvider installs the invoker factory for a provider name.
func (a *Adapter) RegisterProvider(name string, factory InvokerFactory) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.factories[name] = factory
}

// PrimeSession creates a live handle for every roster participant, replacing
// any handles the session already had. It is called at session start and
// again after hydration, before the next round runs.
func (a *Adapter) PrimeSession(sessionID string, roster []domain.Participant) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	primed := make(map[string]handle, len(roster))
	for _, p := range roster {
		factory, ok := a.factories[p.Provider]
		if !ok {
			return fmt.Errorf("unsupported provider %q for participant %s", p.Provider, p.ID)
		}
		invoker, err := factory(p)
		if err != nil {
			return fmt.Errorf("prime participant %s: %w", p.ID, err)
		}
		primed[p.ID] = handle{invoker: invoker, participant: p}
	}
	a.handles[sessionID] = primed
	return nil
}

// CheckHandles verifies every roster participant has a live handle. A missing
// handle is a fatal precondition for the round.
func (a *Adapter) CheckHandles(sessionID string, roster []domain.Participant) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	session, ok := a.handles[sessionID]
	if !ok {
		return fmt.Errorf("session %s has no primed handles", sessionID)
	}
	for _, p := range roster {
		if _, ok := session[p.ID]; !ok {
			return fmt.Errorf("participant %s has no live handle", p.ID)
		}
	}
	return nil
}

// DropSession discards a session's handles.
func (a *Adapter) DropSession(sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.handles, sessionID)
}

// Invoke performs one participant's model call with its role context.
//
// Exactly one invocation event is emitted per call, success or failure. Event
// write errors are logged and never affect the call result.
func (a *Adapter) Invoke(ctx context.Context, sessionID string, p domain.Participant, roleCtx prompt.Context) (Result, *Failure) {
	a.mu.RLock()
	h, ok := a.handles[sessionID][p.ID]
	a.mu.RUnlock()
	if !ok {
		failure := &Failure{Class: ClassPrecondition, Detail: fmt.Sprintf("participant %s has no live handle", p.ID)}
		a.emit(ctx, sessionID, p, roleCtx.Turn, 0, Result{}, failure)
		return Result{}, failure
	}

	start := time.Now()
	result, err := invokeSafely(ctx, h.invoker, roleCtx.Render())
	latency := time.Since(start).Milliseconds()

	if err != nil {
		failure := failureFromError(err)
		a.emit(ctx, sessionID, p, roleCtx.Turn, latency, Result{}, failure)
		return Result{}, failure
	}

	a.emit(ctx, sessionID, p, roleCtx.Turn, latency, result, nil)
	return result, nil
}

// invokeSafely shields round sequencing from invoker panics.
func invokeSafely(ctx context.Context, invoker Invoker, promptText string) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("invoker panicked: %v", r)
		}
	}()
	return invoker.Invoke(ctx, promptText)
}

func (a *Adapter) emit(ctx context.Context, sessionID string, p domain.Participant, turn int, latencyMS int64, result Result, failure *Failure) {
	evt := telemetry.InvocationEvent{
		SessionID:       sessionID,
		ParticipantID:   p.ID,
		ParticipantName: p.DisplayName,
		Role:            string(p.Role),
		Provider:        p.Provider,
		Model:           result.Model,
		Turn:            turn,
		LatencyMS:       latencyMS,
		Status:          "success",
	}
	if failure != nil {
		evt.Status = failure.Class
		evt.StatusDetail = failure.Error()
	} else {
		evt.PromptTokens = result.Usage.PromptTokens
		evt.CompletionTokens = result.Usage.CompletionTokens
		evt.TotalTokens = result.Usage.TotalTokens
	}
	if err := a.emitter.Emit(ctx, evt); err != nil {
		log.Printf("invocation event emit session_id=%s participant_id=%s: %v", sessionID, p.ID, err)
	}
}
