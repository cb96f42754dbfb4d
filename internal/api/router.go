package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// InfluxDB 1.x compatible ingest
	r.Post("/write", s.handleWrite)
	r.Get("/ping", s.handlePing)
	r.Head("/ping", s.handlePing)

	r.Post("/flush", s.handleFlush)
	r.Get("/stats", s.handleStats)
	r.Get("/health", s.handleHealth)
	r.Get("/deadletters", s.handleListDeadLetters)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

// handlePing answers InfluxDB client liveness probes.
func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("X-Influxdb-Version", "tswrite-"+s.version)
	w.WriteHeader(http.StatusNoContent)
}
