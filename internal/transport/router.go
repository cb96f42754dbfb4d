// Package transport connects the batching core to the InfluxDB HTTP and UDP
// senders.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/tswrite/internal/batching"
	"github.com/nerrad567/tswrite/internal/infrastructure/influxdb"
	"github.com/nerrad567/tswrite/internal/infrastructure/udp"
)

// ErrNoRoute indicates a batch targets a transport that is not configured.
var ErrNoRoute = errors.New("transport: no route for destination")

// HTTPWriter posts lines to one database and retention policy.
// Satisfied by *influxdb.Client.
type HTTPWriter interface {
	Write(ctx context.Context, params influxdb.WriteParams, lines []string) error
}

// UDPSender sends lines to one UDP port. Satisfied by *udp.Sender.
type UDPSender interface {
	Send(ctx context.Context, port int, lines []string) error
}

// Router implements batching.Transport by dispatching on the batch key.
type Router struct {
	http HTTPWriter
	udp  UDPSender
}

var _ batching.Transport = (*Router)(nil)

// NewRouter builds a router. Either sender may be nil (pass an untyped nil,
// not a nil pointer); batches for a missing sender fail permanently.
func NewRouter(httpWriter HTTPWriter, udpSender UDPSender) *Router {
	return &Router{http: httpWriter, udp: udpSender}
}

// Deliver sends b through the sender matching its key.
func (r *Router) Deliver(ctx context.Context, b *batching.Batch) error {
	if b.Key.IsUDP() {
		if r.udp == nil {
			return batching.Permanent(fmt.Errorf("%w: %s", ErrNoRoute, b.Key))
		}
		return r.udp.Send(ctx, b.Key.UDPPort, b.Lines())
	}

	if r.http == nil {
		return batching.Permanent(fmt.Errorf("%w: %s", ErrNoRoute, b.Key))
	}
	return r.http.Write(ctx, influxdb.WriteParams{
		Database:        b.Key.Database,
		RetentionPolicy: b.Key.RetentionPolicy,
		Consistency:     string(b.Consistency),
	}, b.Lines())
}

// IsRetryable classifies delivery failures for the retry writer.
//
// HTTP and UDP failures carry their own verdict; anything else falls back
// to batching.IsRetryable.
func IsRetryable(err error) bool {
	var we *influxdb.WriteError
	if errors.As(err, &we) {
		return we.Retryable()
	}
	var se *udp.SendError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return batching.IsRetryable(err)
}
