package udp

import (
	"errors"
	"fmt"
)

// Sentinel errors for UDP sends.
var (
	// ErrDisabled indicates the UDP path is disabled in config.
	ErrDisabled = errors.New("udp: disabled in configuration")

	// ErrClosed indicates the sender has been closed.
	ErrClosed = errors.New("udp: sender closed")

	// ErrSendFailed indicates a batch was not fully sent.
	ErrSendFailed = errors.New("udp: send failed")

	// ErrDatagramTooLarge indicates a single line exceeds the datagram limit.
	ErrDatagramTooLarge = errors.New("udp: line exceeds datagram size")
)

// SendError describes a failed send to one port.
type SendError struct {
	Port      int
	Err       error
	retryable bool
}

func (e *SendError) Error() string {
	return fmt.Sprintf("%v: port %d: %v", ErrSendFailed, e.Port, e.Err)
}

// Unwrap exposes both ErrSendFailed and the underlying cause.
func (e *SendError) Unwrap() []error {
	return []error{ErrSendFailed, e.Err}
}

// Retryable reports whether sending the same batch again can succeed.
func (e *SendError) Retryable() bool {
	return e.retryable
}

// IsRetryable reports whether err is a retryable send failure.
// Errors that did not come from Send are treated as retryable.
func IsRetryable(err error) bool {
	var se *SendError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
