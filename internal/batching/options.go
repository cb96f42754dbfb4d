package batching

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Default option values.
const (
	DefaultActions       = 1000
	DefaultFlushInterval = time.Second
	DefaultBufferLimit   = 10000
)

// UnlimitedActions makes the ingest queue unbounded. Writes never block and
// flushes only happen on the timer or on demand.
const UnlimitedActions = math.MaxInt

// LostHandler receives points that will never be delivered, together with
// the reason. It is called from the flush goroutine and must not block for
// long.
type LostHandler func(points []Point, err error)

// Logger is the subset of logging.Logger the processor uses.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Options configures a Processor. Options is a plain value: copy it, adjust
// the copy and pass it to New. The processor keeps its own copy.
type Options struct {
	// Actions is the number of queued points that forces an eager flush.
	// It is also the ingest queue capacity and the largest size a retry
	// record may grow to by merging.
	Actions int

	// FlushInterval is the delay between periodic flush cycles.
	FlushInterval time.Duration

	// JitterInterval bounds the random delay added to every periodic cycle.
	JitterInterval time.Duration

	// BufferLimit is the retry backlog capacity in points. A limit at or
	// below Actions selects the one-shot writer, which never retries.
	BufferLimit int

	// Consistency is attached to every batch built from queued points.
	Consistency Consistency

	// OnLost is called for every group of points given up on.
	OnLost LostHandler

	// Retryable classifies transport failures. Defaults to IsRetryable.
	Retryable func(error) bool

	// Spawn starts the scheduler worker and must not run it on the calling
	// goroutine. Defaults to a plain goroutine.
	Spawn func(func())

	// Logger receives diagnostics. Optional.
	Logger Logger
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		Actions:       DefaultActions,
		FlushInterval: DefaultFlushInterval,
		BufferLimit:   DefaultBufferLimit,
		Consistency:   ConsistencyOne,
	}
}

// Validate checks the options for values the processor cannot work with.
func (o Options) Validate() error {
	var errs []string

	if o.Actions <= 0 {
		errs = append(errs, "actions must be positive")
	}
	if o.FlushInterval <= 0 {
		errs = append(errs, "flush interval must be positive")
	}
	if o.JitterInterval < 0 {
		errs = append(errs, "jitter interval must not be negative")
	}
	if o.BufferLimit < 0 {
		errs = append(errs, "buffer limit must not be negative")
	}
	if !o.Consistency.Valid() {
		errs = append(errs, fmt.Sprintf("unknown consistency level %q", o.Consistency))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOptions, strings.Join(errs, "; "))
	}
	return nil
}

// retries reports whether these options select the retry-capable writer.
func (o Options) retries() bool {
	return o.BufferLimit > o.Actions
}

// withDefaults fills the optional callbacks.
func (o Options) withDefaults() Options {
	if o.OnLost == nil {
		o.OnLost = func([]Point, error) {}
	}
	if o.Retryable == nil {
		o.Retryable = IsRetryable
	}
	if o.Spawn == nil {
		o.Spawn = func(run func()) { go run() }
	}
	if o.Logger == nil {
		o.Logger = nopLogger{}
	}
	return o
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
