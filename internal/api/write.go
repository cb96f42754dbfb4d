package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/nerrad567/tswrite/internal/batching"
	"github.com/nerrad567/tswrite/internal/point"
)

// maxUDPPort is the highest valid udp_port value.
const maxUDPPort = 65535

// handleWrite queues every line of the body for the destination named by
// the query parameters.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	key, err := s.writeKey(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeTooLarge,
				fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeBadRequest(w, "failed to read request body")
		return
	}

	lines := point.ParseLines(body)
	for i, line := range lines {
		if err := s.processor.Write(r.Context(), key, line); err != nil {
			s.writeIngestError(w, r, key, i, len(lines), err)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeKey builds the destination from db/rp or udp_port.
func (s *Server) writeKey(r *http.Request) (batching.Key, error) {
	q := r.URL.Query()
	db, rp, port := q.Get("db"), q.Get("rp"), q.Get("udp_port")

	if port != "" {
		if db != "" || rp != "" {
			return batching.Key{}, errors.New("udp_port cannot be combined with db or rp")
		}
		n, err := strconv.Atoi(port)
		if err != nil || n < 1 || n > maxUDPPort {
			return batching.Key{}, fmt.Errorf("udp_port must be between 1 and %d", maxUDPPort)
		}
		return batching.UDPKey(n), nil
	}

	if db == "" {
		db, rp = s.database, s.retention
	}
	if db == "" {
		return batching.Key{}, errors.New("database is required")
	}
	return batching.HTTPKey(db, rp), nil
}

// writeIngestError reports a Write failure. Points before index are
// already queued and will be delivered.
func (s *Server) writeIngestError(w http.ResponseWriter, r *http.Request, key batching.Key, index, total int, err error) {
	s.logger.Warn("write request interrupted",
		"destination", key.String(),
		"queued", index,
		"total", total,
		"error", err,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)

	msg := fmt.Sprintf("%d of %d points queued: %v", index, total, err)
	switch {
	case errors.Is(err, batching.ErrClosed):
		writeUnavailable(w, msg)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, ErrCodeRequestTimedOut, msg)
	default:
		writeInternalError(w, msg)
	}
}
