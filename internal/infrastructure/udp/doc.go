// Package udp sends line-protocol batches to InfluxDB UDP listeners.
//
// A Sender keeps one connected socket per destination port and packs lines
// into datagrams no larger than the configured maximum.
//
// # Usage
//
//	sender, err := udp.New(cfg.UDP)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer sender.Close()
//
//	err = sender.Send(ctx, 8089, []string{"cpu,host=a usage=0.5"})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Failures are returned as *SendError. A line that cannot fit in any
// datagram is permanent and nothing from that batch is sent; socket errors
// are retryable. A retried batch may duplicate datagrams that went out
// before the failure.
package udp
