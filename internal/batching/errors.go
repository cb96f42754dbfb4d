package batching

import (
	"errors"
	"fmt"
)

// Sentinel errors for the write path.
//
// Loss reports delivered to Options.OnLost wrap one of these (or the
// transport's own error) inside a *BatchError:
//
//	if errors.Is(err, batching.ErrBufferOverrun) {
//	    // points evicted from the retry backlog
//	}
var (
	// ErrBufferOverrun reports points evicted because the retry backlog
	// exceeded its capacity.
	ErrBufferOverrun = errors.New("batching: retry buffer overrun")

	// ErrSchedulerFault reports an unexpected failure inside a flush cycle.
	ErrSchedulerFault = errors.New("batching: flush cycle fault")

	// ErrClosed is returned by writes after FlushAndShutdown.
	ErrClosed = errors.New("batching: processor closed")

	// ErrInvalidOptions indicates the Options failed validation.
	ErrInvalidOptions = errors.New("batching: invalid options")
)

// BatchError ties a delivery failure to the destination it was meant for.
type BatchError struct {
	Key         Key
	Consistency Consistency
	Err         error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch for %s: %v", e.Key, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// LostPointsError carries the points of a batch that will not be delivered.
// The one-shot writer returns these so the flush cycle can report each
// failed batch with exactly its own points.
type LostPointsError struct {
	Points []Point
	Err    error
}

func (e *LostPointsError) Error() string {
	return fmt.Sprintf("%d points lost: %v", len(e.Points), e.Err)
}

func (e *LostPointsError) Unwrap() error {
	return e.Err
}

// classified is a delivery error that knows whether retrying can help.
type classified struct {
	err       error
	retryable bool
}

func (e *classified) Error() string {
	return e.err.Error()
}

func (e *classified) Unwrap() error {
	return e.err
}

func (e *classified) Retryable() bool {
	return e.retryable
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, retryable: false}
}

// Transient marks err as worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classified{err: err, retryable: true}
}

// IsRetryable is the default failure classifier.
//
// Any error in the chain implementing Retryable() bool decides; everything
// else is treated as retryable so unknown failures favour eventual delivery
// over data loss.
func IsRetryable(err error) bool {
	var r interface{ Retryable() bool }
	if errors.As(err, &r) {
		return r.Retryable()
	}
	return true
}
