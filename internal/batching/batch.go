package batching

import (
	"context"
	"fmt"
	"strconv"
)

// Point is a single measurement ready for delivery.
//
// The pipeline never inspects a point; transports call LineProtocol when
// they encode a batch.
type Point interface {
	LineProtocol() string
}

// Key identifies where a point must be delivered: a database and retention
// policy pair for HTTP writes, or a UDP port.
//
// Key is comparable and used directly as a grouping key.
type Key struct {
	Database        string
	RetentionPolicy string
	UDPPort         int
}

// HTTPKey returns the key for an HTTP write to database and retention policy.
// An empty retention policy selects the server default.
func HTTPKey(database, retentionPolicy string) Key {
	return Key{Database: database, RetentionPolicy: retentionPolicy}
}

// UDPKey returns the key for a UDP write to the given port.
func UDPKey(port int) Key {
	return Key{UDPPort: port}
}

// IsUDP reports whether the key targets a UDP listener.
func (k Key) IsUDP() bool {
	return k.UDPPort != 0
}

// String formats the key for logs and dead-letter records.
func (k Key) String() string {
	if k.IsUDP() {
		return "udp:" + strconv.Itoa(k.UDPPort)
	}
	if k.RetentionPolicy == "" {
		return k.Database
	}
	return k.Database + "." + k.RetentionPolicy
}

// Consistency is the server-side write acknowledgement requirement.
type Consistency string

// Consistency levels understood by InfluxDB clusters.
const (
	ConsistencyAll    Consistency = "all"
	ConsistencyAny    Consistency = "any"
	ConsistencyOne    Consistency = "one"
	ConsistencyQuorum Consistency = "quorum"
)

// Valid reports whether c is one of the known levels.
func (c Consistency) Valid() bool {
	switch c {
	case ConsistencyAll, ConsistencyAny, ConsistencyOne, ConsistencyQuorum:
		return true
	default:
		return false
	}
}

// ParseConsistency converts a configuration string into a Consistency.
func ParseConsistency(s string) (Consistency, error) {
	c := Consistency(s)
	if !c.Valid() {
		return "", fmt.Errorf("%w: unknown consistency level %q", ErrInvalidOptions, s)
	}
	return c, nil
}

// Batch is an ordered group of points sharing one Key and consistency level.
type Batch struct {
	Key         Key
	Consistency Consistency
	Points      []Point
}

// Len returns the number of points in the batch.
func (b *Batch) Len() int {
	return len(b.Points)
}

// Lines encodes every point in submission order.
func (b *Batch) Lines() []string {
	lines := make([]string, len(b.Points))
	for i, p := range b.Points {
		lines[i] = p.LineProtocol()
	}
	return lines
}

// mergeable reports whether other can be appended to b without changing
// where or how its points are written.
func (b *Batch) mergeable(other *Batch) bool {
	return b.Key == other.Key && b.Consistency == other.Consistency
}

// Transport delivers one batch to its destination.
//
// Implementations classify failures through Options.Retryable; a nil error
// means the whole batch was accepted.
type Transport interface {
	Deliver(ctx context.Context, b *Batch) error
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, b *Batch) error

// Deliver calls f.
func (f TransportFunc) Deliver(ctx context.Context, b *Batch) error {
	return f(ctx, b)
}

// deliver sends b through t. A panic inside the transport becomes a
// permanent failure of this batch alone.
func deliver(ctx context.Context, t Transport, b *Batch) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Permanent(fmt.Errorf("%w: transport panicked: %v", ErrSchedulerFault, r))
		}
	}()
	return t.Deliver(ctx, b)
}

// entry is one queued point and its destination.
type entry struct {
	key   Key
	point Point
}

// groupKey partitions a drained queue.
type groupKey struct {
	key         Key
	consistency Consistency
}

// group partitions entries into one batch per destination. Batches appear in
// the order their first entry was queued and keep submission order inside.
func group(entries []entry, consistency Consistency) []*Batch {
	if len(entries) == 0 {
		return nil
	}

	index := make(map[groupKey]*Batch)
	var batches []*Batch
	for _, e := range entries {
		gk := groupKey{key: e.key, consistency: consistency}
		b, ok := index[gk]
		if !ok {
			b = &Batch{Key: e.key, Consistency: consistency}
			index[gk] = b
			batches = append(batches, b)
		}
		b.Points = append(b.Points, e.point)
	}
	return batches
}

// pointsOf flattens batches into one slice for loss reports.
func pointsOf(batches []*Batch) []Point {
	var n int
	for _, b := range batches {
		n += b.Len()
	}
	points := make([]Point, 0, n)
	for _, b := range batches {
		points = append(points, b.Points...)
	}
	return points
}

func pointsOfEntries(entries []entry) []Point {
	points := make([]Point, len(entries))
	for i, e := range entries {
		points[i] = e.point
	}
	return points
}
