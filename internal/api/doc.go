// Package api implements tswrite's HTTP surface.
//
// This package provides:
//   - POST /write: line-protocol ingest into the batch processor
//   - POST /flush: a synchronous flush cycle
//   - GET /stats, /health, /metrics: processor counters, dependency health
//     and Prometheus exposition
//   - GET /deadletters: recent loss records from the dead-letter store
//   - Middleware stack (request ID, logging, recovery, body size limit)
//
// # Ingest
//
// /write accepts the InfluxDB 1.x query parameters db and rp, or udp_port
// to route points to a UDP listener instead. One point per line; blank
// lines and # comments are skipped. The request returns once every point is
// queued, not once it is delivered: delivery failures surface through the
// dead-letter sinks.
//
// The server follows the same lifecycle pattern as other infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
