package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/stokerlabs/stoker/internal/registry"
)

func (s *Server) handleStreamJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	interval := s.pollInterval
	if v := r.URL.Query().Get("poll_interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid poll_interval")
			return
		}
		interval = d
	}

	ch, err := s.watcher.Watch(r.Context(), id, interval)
	if errors.Is(err, registry.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("open status stream", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to open stream")
		return
	}

	// Set SSE headers.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Error("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	if canFlush {
		flusher.Flush()
	}

	// The watcher closes the channel on terminal status, deletion, or client
	// disconnect, so ranging over it is the whole loop.
	for snapshot := range ch {
		data, err := json.Marshal(snapshot)
		if err != nil {
			s.logger.Error("marshal status snapshot", "job_id", id, "error", err)
			return
		}
		if err := writeSSEData(w, string(data)); err != nil {
			return // Write failed (e.g. client gone).
		}
		if canFlush {
			flusher.Flush()
		}
	}

	if r.Context().Err() != nil {
		return // Client disconnected; no point sending a done event.
	}
	_ = writeSSEEvent(w, "done", "stream complete")
	if canFlush {
		flusher.Flush()
	}
}

// writeSSEData writes a payload as an SSE data event.
func writeSSEData(w http.ResponseWriter, data string) error {
	_, err := fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}
