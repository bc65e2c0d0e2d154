package engine

import "errors"

// Domain errors for the engine package.
var (
	// ErrCaptureFailed wraps a frame capture or decode failure.
	ErrCaptureFailed = errors.New("engine: capture failed")

	// ErrGateActive is returned by Rebind while a gate is armed.
	ErrGateActive = errors.New("engine: gate active")

	// ErrInitFailed is returned by Init when the session cannot start.
	ErrInitFailed = errors.New("engine: init failed")

	// ErrUnknownControl is returned when a candidate names a control missing
	// from the catalog.
	ErrUnknownControl = errors.New("engine: unknown control")
)
