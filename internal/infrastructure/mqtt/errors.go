package mqtt

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("mqtt: broker connection is down")
	ErrConnectionFailed = errors.New("mqtt: could not reach broker")
	ErrPublishFailed    = errors.New("mqtt: publish failed")
	ErrSubscribeFailed  = errors.New("mqtt: subscribe failed")
	ErrInvalidQoS       = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrInvalidTopic     = errors.New("mqtt: empty topic")

	// ErrPayloadTooLarge wraps ErrPublishFailed.
	ErrPayloadTooLarge = fmt.Errorf("%w: payload too large", ErrPublishFailed)
)
