package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/stokerlabs/stoker/internal/model"
)

// Compile-time interface satisfaction check.
var _ Registry = (*MemoryRegistry)(nil)

// MemoryRegistry is the default in-memory Registry. A single mutex guards the
// map; reads hand out copies so callers never observe a torn record.
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*model.Job
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		jobs: make(map[string]*model.Job),
	}
}

// Create inserts a new job record.
func (r *MemoryRegistry) Create(_ context.Context, j *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.jobs[j.ID]; ok {
		return ErrDuplicateID
	}
	stored := *j
	r.jobs[j.ID] = &stored
	return nil
}

// Get retrieves a copy of the job record by id.
func (r *MemoryRegistry) Get(_ context.Context, id string) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *j
	return &out, nil
}

// List returns copies of all records in creation order (ULIDs sort by
// creation time), optionally filtered by status.
func (r *MemoryRegistry) List(_ context.Context, statusFilter string) ([]*model.Job, error) {
	r.mu.RLock()
	jobs := make([]*model.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if statusFilter != "" && j.Status != statusFilter {
			continue
		}
		out := *j
		jobs = append(jobs, &out)
	}
	r.mu.RUnlock()

	sort.Slice(jobs, func(i, k int) bool {
		return jobs[i].ID < jobs[k].ID
	})
	return jobs, nil
}

// Update atomically applies fn to the stored record and returns a copy of the
// result.
func (r *MemoryRegistry) Update(_ context.Context, id string, fn Mutator) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}

	next, err := applyMutation(j, fn)
	if err != nil {
		return nil, err
	}
	r.jobs[id] = next

	out := *next
	return &out, nil
}

// Delete removes the record and reports whether it existed.
func (r *MemoryRegistry) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.jobs[id]
	delete(r.jobs, id)
	return ok, nil
}

// Close implements Registry. The in-memory registry holds no resources.
func (r *MemoryRegistry) Close() error { return nil }
