package registry

import (
	"context"
	"errors"

	"github.com/stokerlabs/stoker/internal/model"
)

// ErrNotFound is returned when a job record does not exist.
var ErrNotFound = errors.New("job not found")

// ErrInvalidTransition is returned when a mutation attempts a status
// transition the lifecycle does not allow, or any change to a terminal record.
var ErrInvalidTransition = errors.New("invalid status transition")

// ErrDuplicateID is returned when Create is called with an id already in use.
var ErrDuplicateID = errors.New("job id already exists")

// Mutator applies an in-place change to a job record. It runs under the
// registry's write section; returning an error aborts the update.
type Mutator func(j *model.Job) error

// Registry is the authoritative store of job records. Implementations must be
// safe for concurrent use, and Update must apply its mutator atomically with
// respect to all other registry operations on the same record.
type Registry interface {
	Create(ctx context.Context, j *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	// List returns records in creation order, optionally filtered by status.
	List(ctx context.Context, statusFilter string) ([]*model.Job, error)
	Update(ctx context.Context, id string, fn Mutator) (*model.Job, error)
	// Delete removes the record and reports whether it existed.
	Delete(ctx context.Context, id string) (bool, error)
	Close() error
}

// applyMutation runs fn against a copy of old and validates the result
// against the job lifecycle: terminal records are immutable, and status
// changes must follow the legal-transition table. Both implementations route
// every update through here so the race between a pending-delete and the
// pending→running transition settles inside a single write section.
func applyMutation(old *model.Job, fn Mutator) (*model.Job, error) {
	if model.Terminal(old.Status) {
		return nil, ErrInvalidTransition
	}

	next := *old
	if err := fn(&next); err != nil {
		return nil, err
	}
	if next.Status != old.Status && !model.ValidTransition(old.Status, next.Status) {
		return nil, ErrInvalidTransition
	}
	return &next, nil
}
