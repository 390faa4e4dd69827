package model

import "time"

// Job status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// StatusDeleted is a synthetic status carried only by the final snapshot of a
// status stream whose job record was removed mid-stream. It is never stored.
const StatusDeleted = "deleted"

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning:  true,
		StatusCanceled: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCanceled:  true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Terminal reports whether a status is terminal. A job in a terminal status
// never transitions again; its record can only be deleted.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCanceled
}

// Job is the record of one submitted unit of deferred work. The same shape
// serves as the snapshot returned by get, list, and stream.
type Job struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Task        string     `json:"task,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	ResultRef   string     `json:"result_ref,omitempty"`
}
