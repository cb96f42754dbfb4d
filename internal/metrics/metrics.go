// Package metrics exposes the batch processor's counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/tswrite/internal/batching"
)

// MetricPrefix starts every metric name.
const MetricPrefix = "tswrite_"

// StatsSource is satisfied by *batching.Processor.
type StatsSource interface {
	Stats() batching.Stats
}

// Collector reads one Stats snapshot per scrape so all values in a scrape
// agree with each other.
type Collector struct {
	source StatsSource
}

var (
	pointsQueuedDesc = prometheus.NewDesc(
		MetricPrefix+"points_queued_total",
		"Points accepted by Write and WriteBatch",
		[]string{"strategy"}, nil,
	)
	pointsWrittenDesc = prometheus.NewDesc(
		MetricPrefix+"points_written_total",
		"Points acknowledged by a transport",
		[]string{"strategy"}, nil,
	)
	pointsLostDesc = prometheus.NewDesc(
		MetricPrefix+"points_lost_total",
		"Points reported to the lost points handler",
		[]string{"strategy"}, nil,
	)
	batchesWrittenDesc = prometheus.NewDesc(
		MetricPrefix+"batches_written_total",
		"Batches acknowledged by a transport",
		[]string{"strategy"}, nil,
	)
	deliveryFailuresDesc = prometheus.NewDesc(
		MetricPrefix+"delivery_failures_total",
		"Failed delivery attempts",
		[]string{"strategy"}, nil,
	)
	flushCyclesDesc = prometheus.NewDesc(
		MetricPrefix+"flush_cycles_total",
		"Completed flush cycles",
		[]string{"strategy"}, nil,
	)
	queueLengthDesc = prometheus.NewDesc(
		MetricPrefix+"queue_length",
		"Points waiting in the ingest queue",
		[]string{"strategy"}, nil,
	)
	bufferedPointsDesc = prometheus.NewDesc(
		MetricPrefix+"buffered_points",
		"Points held in the retry backlog",
		[]string{"strategy"}, nil,
	)
)

// NewCollector creates a collector over source.
func NewCollector(source StatsSource) *Collector {
	return &Collector{source: source}
}

// Register creates a collector over source and registers it with reg.
func Register(reg prometheus.Registerer, source StatsSource) (*Collector, error) {
	c := NewCollector(source)
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- pointsQueuedDesc
	ch <- pointsWrittenDesc
	ch <- pointsLostDesc
	ch <- batchesWrittenDesc
	ch <- deliveryFailuresDesc
	ch <- flushCyclesDesc
	ch <- queueLengthDesc
	ch <- bufferedPointsDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()

	counter := func(desc *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.CounterValue, float64(v), s.Strategy)
	}
	gauge := func(desc *prometheus.Desc, v int) {
		ch <- prometheus.MustNewConstMetric(desc, prometheus.GaugeValue, float64(v), s.Strategy)
	}

	counter(pointsQueuedDesc, s.PointsQueued)
	counter(pointsWrittenDesc, s.PointsWritten)
	counter(pointsLostDesc, s.PointsLost)
	counter(batchesWrittenDesc, s.BatchesWritten)
	counter(deliveryFailuresDesc, s.DeliveryFailures)
	counter(flushCyclesDesc, s.FlushCycles)
	gauge(queueLengthDesc, s.QueueLength)
	gauge(bufferedPointsDesc, s.BufferedPoints)
}
