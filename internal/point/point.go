// Package point provides the batching.Point implementations tswrite accepts:
// raw line-protocol records and points built with influxdb-client-go.
package point

import (
	"bytes"
	"strings"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Line is an already-encoded line-protocol record.
type Line string

// LineProtocol returns the record unchanged.
func (l Line) LineProtocol() string {
	return string(l)
}

// Point is a structured measurement encoded once at construction.
// Later changes to the source write.Point do not affect it.
type Point struct {
	line string
}

// New builds a point from its parts. Tags and fields are encoded in key order.
func New(measurement string, tags map[string]string, fields map[string]any, ts time.Time) *Point {
	return FromWrite(write.NewPoint(measurement, tags, fields, ts))
}

// FromWrite encodes p with nanosecond precision.
func FromWrite(p *write.Point) *Point {
	return &Point{line: strings.TrimSuffix(write.PointToLineProtocol(p, time.Nanosecond), "\n")}
}

// LineProtocol returns the encoded record.
func (p *Point) LineProtocol() string {
	return p.line
}

// ParseLines splits a request body into records. Blank lines and comments
// are skipped; the records themselves are not validated.
func ParseLines(body []byte) []Line {
	var lines []Line
	for _, raw := range bytes.Split(body, []byte{'\n'}) {
		l := strings.TrimSpace(string(raw))
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		lines = append(lines, Line(l))
	}
	return lines
}
