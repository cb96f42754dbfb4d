package deadletter

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/tswrite/internal/batching"
)

// Reason is the kind of loss a record describes.
type Reason string

// Loss reasons.
const (
	// ReasonPermanent is a failure retrying cannot fix (bad database,
	// unparseable points, oversized datagram).
	ReasonPermanent Reason = "permanent"

	// ReasonBufferOverrun is an eviction from a full retry backlog.
	ReasonBufferOverrun Reason = "buffer_overrun"

	// ReasonSchedulerFault is an unexpected failure inside a flush cycle.
	ReasonSchedulerFault Reason = "scheduler_fault"

	// ReasonTransient is a retryable failure that was not retried: the
	// one-shot writer, or the last attempt at shutdown.
	ReasonTransient Reason = "transient"
)

// Record is one loss report.
type Record struct {
	ID          string    `json:"id"`
	Destination string    `json:"destination"`
	Consistency string    `json:"consistency,omitempty"`
	Reason      Reason    `json:"reason"`
	Error       string    `json:"error"`
	PointCount  int       `json:"point_count"`
	Payload     []string  `json:"payload"`
	Truncated   bool      `json:"truncated"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewRecord describes points lost because of err. At most maxLines points
// are copied into the payload; zero or less keeps them all.
func NewRecord(points []batching.Point, err error, maxLines int, retryable func(error) bool) *Record {
	rec := &Record{
		ID:          uuid.NewString(),
		Destination: "unknown",
		Reason:      Classify(err, retryable),
		PointCount:  len(points),
		CreatedAt:   time.Now().UTC(),
	}
	if err != nil {
		rec.Error = err.Error()
	}

	var be *batching.BatchError
	if errors.As(err, &be) {
		rec.Destination = be.Key.String()
		rec.Consistency = string(be.Consistency)
	}

	n := len(points)
	if maxLines > 0 && n > maxLines {
		n = maxLines
		rec.Truncated = true
	}
	rec.Payload = make([]string, n)
	for i := 0; i < n; i++ {
		rec.Payload[i] = points[i].LineProtocol()
	}

	return rec
}

// Classify names the reason behind a loss report.
func Classify(err error, retryable func(error) bool) Reason {
	if retryable == nil {
		retryable = batching.IsRetryable
	}
	switch {
	case errors.Is(err, batching.ErrBufferOverrun):
		return ReasonBufferOverrun
	case errors.Is(err, batching.ErrSchedulerFault):
		return ReasonSchedulerFault
	case err != nil && retryable(err):
		return ReasonTransient
	default:
		return ReasonPermanent
	}
}
