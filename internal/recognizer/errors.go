package recognizer

import "errors"

// Domain errors for the recognizer package.
var (
	// ErrInvalidFrame is returned by Detect for a nil or empty frame.
	ErrInvalidFrame = errors.New("recognizer: invalid frame")

	// ErrTemplateMissing is returned when a template file does not exist.
	ErrTemplateMissing = errors.New("recognizer: template missing")

	// ErrTemplateDecode is returned when a template file is not a readable image.
	ErrTemplateDecode = errors.New("recognizer: template decode failed")
)
