// Package deadletter records points the write path has given up on.
//
// Handler builds a batching.LostHandler that logs every loss report, turns
// it into a Record and hands the record to each configured Sink. Two sinks
// are provided:
//
//   - SQLiteStore keeps records in the dead_letters table
//   - MQTTPublisher announces them on <prefix>/deadletter/<reason>
//
// Records are never replayed into the pipeline; they exist for operators.
//
// Usage:
//
//	store := deadletter.NewSQLiteStore(db.DB)
//	opts.OnLost = deadletter.Handler(deadletter.Options{
//	    Logger:    log,
//	    Timeout:   5 * time.Second,
//	    MaxLines:  1000,
//	    Retryable: transport.IsRetryable,
//	}, store)
package deadletter
