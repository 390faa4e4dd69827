package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	ByTask        map[string]int `json:"by_task"`
	AvgDurationMS float64        `json:"avg_duration_ms"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.registry.List(r.Context(), "")
	if err != nil {
		s.logger.Error("list jobs for stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	resp := statsResponse{
		Total:    len(jobs),
		ByStatus: make(map[string]int),
		ByTask:   make(map[string]int),
	}

	var durationSum float64
	var durationCount int
	for _, j := range jobs {
		resp.ByStatus[j.Status]++
		if j.Task != "" {
			resp.ByTask[j.Task]++
		}
		if j.StartedAt != nil && j.FinishedAt != nil {
			durationSum += float64(j.FinishedAt.Sub(*j.StartedAt).Milliseconds())
			durationCount++
		}
	}
	if durationCount > 0 {
		resp.AvgDurationMS = durationSum / float64(durationCount)
	}

	s.writeJSON(w, http.StatusOK, resp)
}
