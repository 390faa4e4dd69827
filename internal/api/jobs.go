package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stokerlabs/stoker/internal/model"
	"github.com/stokerlabs/stoker/internal/registry"
	"github.com/stokerlabs/stoker/internal/scheduler"
)

const maxBodySize = 1 << 20 // 1 MB

// submitJobRequest is the JSON body for POST /v1/jobs.
type submitJobRequest struct {
	Task    string          `json:"task"`
	Payload json.RawMessage `json:"payload"`
}

// listJobsResponse wraps the list response.
type listJobsResponse struct {
	Jobs  []*model.Job `json:"jobs"`
	Total int          `json:"total"`
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if req.Task == "" {
		s.writeError(w, http.StatusBadRequest, "task is required")
		return
	}

	handler, ok := s.tasks.Get(req.Task)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "unknown task: "+req.Task)
		return
	}

	payload := []byte(req.Payload)
	id, err := s.scheduler.Submit(r.Context(), req.Task, func(ctx context.Context) (string, error) {
		return handler(ctx, payload)
	})
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrCapacity):
			s.writeError(w, http.StatusTooManyRequests, "job capacity reached")
		case errors.Is(err, scheduler.ErrClosed):
			s.writeError(w, http.StatusServiceUnavailable, "scheduler is shutting down")
		default:
			s.logger.Error("submit job", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to submit job")
		}
		return
	}

	j, err := s.scheduler.Get(r.Context(), id)
	if err != nil {
		s.logger.Error("get submitted job", "job_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve job")
		return
	}

	s.writeJSON(w, http.StatusAccepted, j)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	j, err := s.scheduler.Get(r.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.logger.Error("get job", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get job")
		return
	}

	s.writeJSON(w, http.StatusOK, j)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")

	jobs, err := s.scheduler.List(r.Context(), statusFilter)
	if err != nil {
		s.logger.Error("list jobs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	if jobs == nil {
		jobs = []*model.Job{}
	}

	s.writeJSON(w, http.StatusOK, listJobsResponse{
		Jobs:  jobs,
		Total: len(jobs),
	})
}

func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.scheduler.Delete(r.Context(), id); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error("delete job", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to delete job")
		return
	}

	// A terminal job's record is gone; a pending or running one survives in
	// its canceled (or soon-to-be-canceled) form.
	j, err := s.scheduler.Get(r.Context(), id)
	if errors.Is(err, registry.ErrNotFound) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		s.logger.Error("get deleted job", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to retrieve job")
		return
	}

	s.writeJSON(w, http.StatusOK, j)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
