package registry

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stokerlabs/stoker/internal/model"
)

// newRegistries returns a named constructor for each Registry implementation
// so the contract tests below run against both.
func newRegistries(t *testing.T) map[string]Registry {
	t.Helper()

	sqlite, err := NewSQLiteRegistry(filepath.Join(t.TempDir(), "stoker.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRegistry: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Registry{
		"memory": NewMemoryRegistry(),
		"sqlite": sqlite,
	}
}

func newPendingJob() *model.Job {
	return &model.Job{
		ID:          model.NewID(),
		Status:      model.StatusPending,
		SubmittedAt: time.Now().UTC(),
	}
}

func TestCreateAndGet(t *testing.T) {
	for name, reg := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			j := newPendingJob()
			if err := reg.Create(context.Background(), j); err != nil {
				t.Fatalf("Create: %v", err)
			}

			got, err := reg.Get(context.Background(), j.ID)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.ID != j.ID {
				t.Errorf("id = %q, want %q", got.ID, j.ID)
			}
			if got.Status != model.StatusPending {
				t.Errorf("status = %q, want pending", got.Status)
			}
			if got.SubmittedAt.Unix() != j.SubmittedAt.Unix() {
				t.Errorf("submitted_at = %v, want %v", got.SubmittedAt, j.SubmittedAt)
			}
			if got.StartedAt != nil || got.FinishedAt != nil {
				t.Errorf("fresh record has started_at=%v finished_at=%v, want nil", got.StartedAt, got.FinishedAt)
			}
		})
	}
}

func TestCreateDuplicateID(t *testing.T) {
	reg := NewMemoryRegistry()
	j := newPendingJob()
	if err := reg.Create(context.Background(), j); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := reg.Create(context.Background(), j); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("Create duplicate = %v, want ErrDuplicateID", err)
	}
}

func TestGetNotFound(t *testing.T) {
	for name, reg := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := reg.Get(context.Background(), model.NewID()); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get unknown id = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestGetReturnsCopy(t *testing.T) {
	reg := NewMemoryRegistry()
	j := newPendingJob()
	if err := reg.Create(context.Background(), j); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, _ := reg.Get(context.Background(), j.ID)
	got.Status = model.StatusFailed

	again, _ := reg.Get(context.Background(), j.ID)
	if again.Status != model.StatusPending {
		t.Errorf("stored status = %q after mutating a Get result, want pending", again.Status)
	}
}

func TestListCreationOrderAndFilter(t *testing.T) {
	for name, reg := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			var ids []string
			for i := 0; i < 3; i++ {
				j := newPendingJob()
				ids = append(ids, j.ID)
				if err := reg.Create(context.Background(), j); err != nil {
					t.Fatalf("Create[%d]: %v", i, err)
				}
				// ULIDs are millisecond-granular; space out creation so
				// ordering is deterministic.
				time.Sleep(2 * time.Millisecond)
			}

			// Move the middle job to running.
			if _, err := reg.Update(context.Background(), ids[1], func(j *model.Job) error {
				j.Status = model.StatusRunning
				return nil
			}); err != nil {
				t.Fatalf("Update: %v", err)
			}

			all, err := reg.List(context.Background(), "")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(all) != 3 {
				t.Fatalf("len(List) = %d, want 3", len(all))
			}
			for i, j := range all {
				if j.ID != ids[i] {
					t.Errorf("List[%d].ID = %q, want %q (creation order)", i, j.ID, ids[i])
				}
			}

			running, err := reg.List(context.Background(), model.StatusRunning)
			if err != nil {
				t.Fatalf("List(running): %v", err)
			}
			if len(running) != 1 || running[0].ID != ids[1] {
				t.Errorf("List(running) = %v, want exactly job %s", running, ids[1])
			}
		})
	}
}

func TestUpdateTransitions(t *testing.T) {
	for name, reg := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			j := newPendingJob()
			if err := reg.Create(context.Background(), j); err != nil {
				t.Fatalf("Create: %v", err)
			}

			// pending→completed skips running and must be rejected.
			if _, err := reg.Update(context.Background(), j.ID, func(j *model.Job) error {
				j.Status = model.StatusCompleted
				return nil
			}); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("pending→completed = %v, want ErrInvalidTransition", err)
			}

			started := time.Now().UTC()
			updated, err := reg.Update(context.Background(), j.ID, func(j *model.Job) error {
				j.Status = model.StatusRunning
				j.StartedAt = &started
				return nil
			})
			if err != nil {
				t.Fatalf("pending→running: %v", err)
			}
			if updated.Status != model.StatusRunning || updated.StartedAt == nil {
				t.Errorf("after running transition: status=%q started_at=%v", updated.Status, updated.StartedAt)
			}

			finished := time.Now().UTC()
			if _, err := reg.Update(context.Background(), j.ID, func(j *model.Job) error {
				j.Status = model.StatusCompleted
				j.FinishedAt = &finished
				j.ResultRef = "artifact-1"
				return nil
			}); err != nil {
				t.Fatalf("running→completed: %v", err)
			}

			// Terminal records are immutable.
			if _, err := reg.Update(context.Background(), j.ID, func(j *model.Job) error {
				j.ResultRef = "tampered"
				return nil
			}); !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("update of terminal record = %v, want ErrInvalidTransition", err)
			}

			got, _ := reg.Get(context.Background(), j.ID)
			if got.ResultRef != "artifact-1" {
				t.Errorf("result_ref = %q, want %q", got.ResultRef, "artifact-1")
			}
		})
	}
}

func TestUpdateMutatorErrorAborts(t *testing.T) {
	for name, reg := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			j := newPendingJob()
			if err := reg.Create(context.Background(), j); err != nil {
				t.Fatalf("Create: %v", err)
			}

			boom := errors.New("boom")
			if _, err := reg.Update(context.Background(), j.ID, func(j *model.Job) error {
				j.Status = model.StatusRunning
				return boom
			}); !errors.Is(err, boom) {
				t.Errorf("Update = %v, want mutator error", err)
			}

			got, _ := reg.Get(context.Background(), j.ID)
			if got.Status != model.StatusPending {
				t.Errorf("status = %q after aborted update, want pending", got.Status)
			}
		})
	}
}

func TestUpdateNotFound(t *testing.T) {
	for name, reg := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Update(context.Background(), model.NewID(), func(j *model.Job) error { return nil })
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("Update unknown id = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestDelete(t *testing.T) {
	for name, reg := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			j := newPendingJob()
			if err := reg.Create(context.Background(), j); err != nil {
				t.Fatalf("Create: %v", err)
			}

			existed, err := reg.Delete(context.Background(), j.ID)
			if err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if !existed {
				t.Error("Delete existing record = false, want true")
			}

			if _, err := reg.Get(context.Background(), j.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get after delete = %v, want ErrNotFound", err)
			}

			existed, err = reg.Delete(context.Background(), j.ID)
			if err != nil {
				t.Fatalf("Delete again: %v", err)
			}
			if existed {
				t.Error("Delete missing record = true, want false")
			}
		})
	}
}

func TestConcurrentUpdatesSerialize(t *testing.T) {
	for name, reg := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			j := newPendingJob()
			if err := reg.Create(context.Background(), j); err != nil {
				t.Fatalf("Create: %v", err)
			}

			// Many goroutines race the same pending→canceled transition;
			// exactly one must win, the rest must find the record already
			// terminal.
			const n = 16
			wins := make(chan struct{}, n)
			done := make(chan struct{}, n)
			for i := 0; i < n; i++ {
				go func() {
					defer func() { done <- struct{}{} }()
					_, err := reg.Update(context.Background(), j.ID, func(j *model.Job) error {
						j.Status = model.StatusCanceled
						return nil
					})
					if err == nil {
						wins <- struct{}{}
					} else if !errors.Is(err, ErrInvalidTransition) {
						t.Errorf("Update: %v", err)
					}
				}()
			}
			for i := 0; i < n; i++ {
				<-done
			}
			if len(wins) != 1 {
				t.Errorf("pending→canceled won %d times, want exactly 1", len(wins))
			}
		})
	}
}

func TestConcurrentUpdatesDistinctRecords(t *testing.T) {
	for name, reg := range newRegistries(t) {
		t.Run(name, func(t *testing.T) {
			// Independent transitions on distinct records must all succeed no
			// matter how many run at once; none may be lost to write
			// contention.
			const n = 64
			ids := make([]string, n)
			for i := range ids {
				j := newPendingJob()
				if err := reg.Create(context.Background(), j); err != nil {
					t.Fatalf("Create[%d]: %v", i, err)
				}
				ids[i] = j.ID
			}

			errs := make(chan error, n)
			for _, id := range ids {
				id := id
				go func() {
					started := time.Now().UTC()
					_, err := reg.Update(context.Background(), id, func(j *model.Job) error {
						j.Status = model.StatusRunning
						j.StartedAt = &started
						return nil
					})
					errs <- err
				}()
			}
			for i := 0; i < n; i++ {
				if err := <-errs; err != nil {
					t.Errorf("Update: %v", err)
				}
			}

			running, err := reg.List(context.Background(), model.StatusRunning)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(running) != n {
				t.Errorf("%d records running, want %d", len(running), n)
			}
		})
	}
}
