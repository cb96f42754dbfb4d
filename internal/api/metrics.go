package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/tswrite/internal/batching"
)

// StatsResponse is the /stats payload.
type StatsResponse struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	Processor     batching.Stats `json:"processor"`
	DeadLetters   *int           `json:"dead_letters,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleStats returns processor counters and runtime statistics.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := StatsResponse{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Processor: s.processor.Stats(),
	}

	if s.deadLetters != nil {
		n, err := s.deadLetters.Count(r.Context())
		if err != nil {
			s.logger.Warn("counting dead letters failed", "error", err)
		} else {
			resp.DeadLetters = &n
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
