// Package batching is the asynchronous write path of tswrite.
//
// It decouples goroutines that produce measurement points from the network
// calls that deliver them. Points are staged in an ingest queue, drained by a
// single scheduler worker, grouped by destination and handed to a delivery
// strategy that either tries each batch once or keeps a bounded retry
// backlog.
//
// # Data Flow
//
//	Write ──▶ ingest queue ──▶ flush cycle ──▶ group by Key ──▶ writer ──▶ Transport
//	                                                              │
//	                                               retryable ─────┘──▶ backlog (next cycle)
//
// # Usage
//
//	opts := batching.DefaultOptions()
//	opts.Actions = 500
//	opts.OnLost = func(points []batching.Point, err error) {
//	    log.Error("points lost", "count", len(points), "error", err)
//	}
//
//	p, err := batching.New(router, opts)
//	if err != nil {
//	    return err
//	}
//	defer p.FlushAndShutdown()
//
//	err = p.Write(ctx, batching.HTTPKey("telemetry", "autogen"), point.Line("cpu value=1"))
//
// # Thread Safety
//
// Write may be called from any number of goroutines. Flush cycles never
// overlap: the scheduler worker and manual Flush calls share one delivery
// lock, so the retry backlog is only ever touched by one goroutine at a time.
//
// # Error Handling
//
// Write only fails synchronously when the caller's context ends while the
// queue is full, or after shutdown. Every other failure is asynchronous and
// reaches the application through Options.OnLost together with the points
// that were given up on.
package batching
