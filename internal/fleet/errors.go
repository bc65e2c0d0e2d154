package fleet

import "errors"

// Domain errors for the fleet package.
var (
	// ErrNoDevices is returned by Run when there is nothing to run on.
	ErrNoDevices = errors.New("fleet: no devices")

	// ErrAlreadyRunning is returned by Run while another run is active.
	ErrAlreadyRunning = errors.New("fleet: already running")

	// ErrInvalidCommand is returned by Submit for malformed commands.
	ErrInvalidCommand = errors.New("fleet: invalid command")

	// ErrQueueFull is returned by Submit when the command queue is full.
	ErrQueueFull = errors.New("fleet: command queue full")
)
