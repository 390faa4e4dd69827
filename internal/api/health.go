package api

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Tasks   int    `json:"tasks"`
}

// handleHealthz reports liveness plus the size of the task registry, so a
// probe can tell a booted scheduler from one that registered nothing.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp := healthResponse{
		Status:  "ok",
		Service: "stoker",
		Tasks:   len(s.tasks.Names()),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("encode healthz response", "error", err)
	}
}
