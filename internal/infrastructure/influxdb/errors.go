package influxdb

import (
	"errors"
	"fmt"
)

// Sentinel errors for InfluxDB operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, influxdb.ErrWriteFailed) {
//	    // Handle failed write
//	}
var (
	// ErrNotConnected indicates the client is not connected to InfluxDB.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed indicates the initial connection attempt failed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrWriteFailed indicates a write request was not accepted.
	ErrWriteFailed = errors.New("influxdb: write failed")

	// ErrDisabled indicates InfluxDB integration is disabled in config.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)

// WriteError describes a rejected or failed write request.
//
// StatusCode is zero when no response was received.
type WriteError struct {
	StatusCode int
	Message    string
	Err        error
	retryable  bool
}

func (e *WriteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%v: %v", ErrWriteFailed, e.Err)
	}
	return fmt.Sprintf("%v: status %d: %s", ErrWriteFailed, e.StatusCode, e.Message)
}

// Unwrap exposes both ErrWriteFailed and the underlying cause.
func (e *WriteError) Unwrap() []error {
	return []error{ErrWriteFailed, e.Err}
}

// Retryable reports whether sending the same lines again can succeed.
func (e *WriteError) Retryable() bool {
	return e.retryable
}

// IsRetryable reports whether err is a retryable write failure.
// Errors that did not come from Write are treated as retryable.
func IsRetryable(err error) bool {
	var we *WriteError
	if errors.As(err, &we) {
		return we.Retryable()
	}
	return true
}
