package dispatch

import "errors"

// Domain errors for the dispatch package.
var (
	// ErrTapFailed is returned when the input sink rejects a tap.
	ErrTapFailed = errors.New("dispatch: tap failed")

	// ErrSwipeFailed is returned when the input sink rejects a swipe.
	ErrSwipeFailed = errors.New("dispatch: swipe failed")
)
