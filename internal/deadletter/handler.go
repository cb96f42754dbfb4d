package deadletter

import (
	"context"
	"time"

	"github.com/nerrad567/tswrite/internal/batching"
)

// DefaultTimeout bounds each sink call when Options.Timeout is unset.
const DefaultTimeout = 5 * time.Second

// Sink stores or forwards a record.
type Sink interface {
	Name() string
	Save(ctx context.Context, rec *Record) error
}

// Logger is the subset of logging.Logger the handler uses.
type Logger interface {
	Error(msg string, args ...any)
}

// Options configures Handler.
type Options struct {
	Logger    Logger
	Timeout   time.Duration
	MaxLines  int
	Retryable func(error) bool
}

// Handler returns a batching.LostHandler that logs every loss and saves a
// record to each sink in turn. A failing sink is logged and does not stop
// the others.
func Handler(opts Options, sinks ...Sink) batching.LostHandler {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retryable == nil {
		opts.Retryable = batching.IsRetryable
	}

	return func(points []batching.Point, err error) {
		rec := NewRecord(points, err, opts.MaxLines, opts.Retryable)

		if opts.Logger != nil {
			opts.Logger.Error("points dropped",
				"id", rec.ID,
				"destination", rec.Destination,
				"reason", string(rec.Reason),
				"points", rec.PointCount,
				"error", rec.Error,
			)
		}

		for _, sink := range sinks {
			if serr := save(sink, rec, opts.Timeout); serr != nil && opts.Logger != nil {
				opts.Logger.Error("dead letter sink failed",
					"sink", sink.Name(),
					"id", rec.ID,
					"error", serr,
				)
			}
		}
	}
}

func save(sink Sink, rec *Record, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return sink.Save(ctx, rec)
}
