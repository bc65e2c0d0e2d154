package session

import "errors"

// Domain errors for the session package.
var (
	// ErrTickPanic wraps a panic recovered from a tick.
	ErrTickPanic = errors.New("session: tick panicked")
)
