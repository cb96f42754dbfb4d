// Package influxdb writes line-protocol batches to InfluxDB 1.x over HTTP.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, authentication and health checks, and posts to the 1.x
// /write endpoint so database, retention policy and consistency level can
// be chosen per request.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Write(ctx, influxdb.WriteParams{Database: "telemetry"},
//	    []string{"cpu,host=a usage=0.5 1700000000000000000"})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Write failures are returned as *WriteError, which wraps ErrWriteFailed and
// the client's HTTP error and knows whether a retry can help:
//
//	if !influxdb.IsRetryable(err) {
//	    // database missing, unparsable points, auth failure ...
//	}
//
// Connection and health check errors are returned directly.
package influxdb
