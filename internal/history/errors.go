package history

import "errors"

// Domain errors for the history package.
var (
	// ErrSessionNotFound is returned when a session ID has no record.
	ErrSessionNotFound = errors.New("history: session not found")

	// ErrInvalidRecord is returned when a record is missing required fields.
	ErrInvalidRecord = errors.New("history: invalid record")
)
