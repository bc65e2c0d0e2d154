package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDeviceOffline) {
//	    // reconnect or rebind
//	}
var (
	// ErrEmulatorNotFound is returned when a serial is not in the inventory.
	ErrEmulatorNotFound = errors.New("device: emulator not found")

	// ErrDeviceOffline is returned when adb reports the device missing or offline.
	ErrDeviceOffline = errors.New("device: offline")

	// ErrCommandFailed is returned when an adb invocation fails.
	ErrCommandFailed = errors.New("device: adb command failed")

	// ErrFrameDecode is returned when screencap output cannot be decoded.
	ErrFrameDecode = errors.New("device: frame decode failed")

	// ErrInvalidSerial is returned for an empty serial.
	ErrInvalidSerial = errors.New("device: invalid serial")
)
