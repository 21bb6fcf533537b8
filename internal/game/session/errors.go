package session

import (
	"errors"
	"fmt"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeSessionNotFound means no session exists with the given id.
	CodeSessionNotFound Code = "SESSION_NOT_FOUND"
	// CodeSessionFinished means the session reached a terminal state and
	// accepts no further rounds.
	CodeSessionFinished Code = "SESSION_FINISHED"
	// CodeRoundInFlight means another round is currently running for the
	// session.
	CodeRoundInFlight Code = "ROUND_IN_FLIGHT"
	// CodeRoundFailed means every participant failed and the round produced
	// nothing.
	CodeRoundFailed Code = "ROUND_FAILED"
	// CodeInvalidRoster means the requested roster violates composition
	// rules.
	CodeInvalidRoster Code = "INVALID_ROSTER"
	// CodeInvalidRequest means a non-roster request field is invalid.
	CodeInvalidRequest Code = "INVALID_REQUEST"
	// CodeStorage means a durable read or write failed.
	CodeStorage Code = "STORAGE"
)

// Error is a session-service error carrying a stable code.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause to errors.Is/As.
func (e *Error) Unwrap() error { return e.cause }

func newError(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

func wrapError(code Code, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: cause}
}

// CodeOf extracts the session error code, or UNKNOWN when err is not a
// session error.
func CodeOf(err error) Code {
	var sessionErr *Error
	if errors.As(err, &sessionErr) {
		return sessionErr.Code
	}
	return "UNKNOWN"
}
