package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Failure classes reported for model invocations.
const (
	// ClassTransport covers network and client-side errors.
	ClassTransport = "transport"
	// ClassProvider covers errors the provider reported itself.
	ClassProvider = "provider"
	// ClassTimeout covers deadline and cancellation errors.
	ClassTimeout = "timeout"
	// ClassPrecondition covers missing handles and misconfiguration.
	ClassPrecondition = "precondition"
)

// maxCauseDepth caps how many nested causes a Failure carries.
const maxCauseDepth = 2

// Failure is a typed invocation failure. Every failure path of the adapter is
// a returned value; nothing escapes as a panic.
type Failure struct {
	Class  string
	Detail string
	// StatusCode and RequestID are set when the provider exposed them.
	StatusCode int
	RequestID  string
	Cause      *Failure
}

func (f *Failure) Error() string {
	msg := fmt.Sprintf("%s: %s", f.Class, f.Detail)
	if f.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, f.StatusCode)
	}
	if f.Cause != nil {
		msg = fmt.Sprintf("%s: %s", msg, f.Cause.Error())
	}
	return msg
}

// Unwrap exposes the nested cause to errors.Is/As.
func (f *Failure) Unwrap() error {
	if f.Cause == nil {
		return nil
	}
	return f.Cause
}

// failureFromError converts an arbitrary invoker error into a Failure,
// classifying timeouts and preserving the wrapped cause chain up to
// maxCauseDepth.
func failureFromError(err error) *Failure {
	if err == nil {
		return nil
	}
	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}

	class := ClassTransport
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		class = ClassTimeout
	} else {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			class = ClassTimeout
		}
	}

	root := &Failure{Class: class, Detail: err.Error()}
	node := root
	cause := errors.Unwrap(err)
	for depth := 0; depth < maxCauseDepth && cause != nil; depth++ {
		node.Cause = &Failure{Class: class, Detail: cause.Error()}
		node = node.Cause
		cause = errors.Unwrap(cause)
	}
	return root
}
