package api

import (
	"net/http"
)

// listTasksResponse is the JSON response for GET /v1/tasks.
type listTasksResponse struct {
	Tasks []string `json:"tasks"`
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, listTasksResponse{
		Tasks: s.tasks.Names(),
	})
}
