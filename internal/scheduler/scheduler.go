package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/stokerlabs/stoker/internal/model"
	"github.com/stokerlabs/stoker/internal/registry"
)

// Task is one unit of deferred work. The returned string, when non-empty,
// becomes the job's result_ref (an opaque reference to whatever artifact the
// task produced). A task that wants to be cancelable must watch ctx.
type Task func(ctx context.Context) (string, error)

var (
	// ErrClosed is returned by Submit after Close has been called.
	ErrClosed = errors.New("scheduler closed")

	// ErrCapacity is returned by Submit when the configured cap on
	// pending+running jobs is reached.
	ErrCapacity = errors.New("job capacity reached")

	// ErrNotFinished is returned by Result while the job is not yet in a
	// result-bearing state.
	ErrNotFinished = errors.New("job not finished")
)

// Scheduler runs submitted tasks asynchronously and is the only writer of job
// state transitions. Construct one instance and share it; there is no
// package-level singleton.
type Scheduler struct {
	registry registry.Registry
	gate     *Gate
	logger   *slog.Logger
	capacity int

	baseCtx    context.Context
	baseCancel context.CancelFunc

	wg sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	active  int // pending + running jobs
	cancels map[string]context.CancelFunc
	done    map[string]chan struct{}
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMaxConcurrency bounds how many jobs execute simultaneously.
// Zero or less means unlimited.
func WithMaxConcurrency(n int) Option {
	return func(s *Scheduler) { s.gate = NewGate(n) }
}

// WithCapacity caps the number of jobs that may be pending or running at
// once; Submit beyond the cap returns ErrCapacity. Zero or less means
// unlimited.
func WithCapacity(n int) Option {
	return func(s *Scheduler) { s.capacity = n }
}

// New creates a scheduler writing job state through reg.
func New(reg registry.Registry, logger *slog.Logger, opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		registry:   reg,
		logger:     logger,
		baseCtx:    ctx,
		baseCancel: cancel,
		cancels:    make(map[string]context.CancelFunc),
		done:       make(map[string]chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit records a pending job for the named task and launches its execution
// path without waiting for an admission slot. The job id is returned
// immediately; name is informational and may be empty for anonymous tasks.
func (s *Scheduler) Submit(ctx context.Context, name string, task Task) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	if s.capacity > 0 && s.active >= s.capacity {
		s.mu.Unlock()
		return "", ErrCapacity
	}
	s.active++
	s.mu.Unlock()

	j := &model.Job{
		ID:          model.NewID(),
		Status:      model.StatusPending,
		Task:        name,
		SubmittedAt: time.Now().UTC(),
	}
	if err := s.registry.Create(ctx, j); err != nil {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
		return "", fmt.Errorf("create job: %w", err)
	}

	jobCtx, cancel := context.WithCancel(s.baseCtx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancels[j.ID] = cancel
	s.done[j.ID] = done
	s.mu.Unlock()

	jobsSubmitted.Inc()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		defer cancel()
		s.execute(jobCtx, j.ID, task)
	}()

	return j.ID, nil
}

// execute runs one job's lifecycle: acquire a slot, transition to running,
// invoke the task, record the terminal state, release the slot.
func (s *Scheduler) execute(ctx context.Context, id string, task Task) {
	defer s.settle()
	defer s.forget(id)

	if err := s.gate.Acquire(ctx); err != nil {
		// Canceled while waiting for a slot. The record was already marked
		// canceled by Delete; nothing ran, so there is nothing to transition.
		return
	}
	defer s.gate.Release()

	started := time.Now().UTC()
	if _, err := s.registry.Update(context.Background(), id, func(j *model.Job) error {
		j.Status = model.StatusRunning
		j.StartedAt = &started
		return nil
	}); err != nil {
		// The job was canceled or deleted between admission and this
		// transition; skip execution entirely.
		if !errors.Is(err, registry.ErrInvalidTransition) && !errors.Is(err, registry.ErrNotFound) {
			s.logger.Error("transition to running", "job_id", id, "error", err)
		}
		return
	}

	jobsRunning.Inc()
	defer jobsRunning.Dec()

	ref, err := s.invoke(ctx, task)
	finished := time.Now().UTC()
	jobDuration.Observe(finished.Sub(started).Seconds())

	switch {
	case err == nil:
		s.finish(id, model.StatusCompleted, func(j *model.Job) {
			j.FinishedAt = &finished
			j.ResultRef = ref
		})
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		// The task honored the cancellation signal.
		s.finish(id, model.StatusCanceled, func(j *model.Job) {
			j.FinishedAt = &finished
		})
	default:
		s.finish(id, model.StatusFailed, func(j *model.Job) {
			j.FinishedAt = &finished
			j.Error = err.Error()
			j.ErrorDetail = fmt.Sprintf("%+v", err)
		})
	}
}

// invoke calls the task, converting a panic into an error so a misbehaving
// task can never unwind the execution path. The stack recorded by
// pkg/errors at the recovery point still contains the panicking frames, so
// the job's error_detail pinpoints the panic site.
func (s *Scheduler) invoke(ctx context.Context, task Task) (ref string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = pkgerrors.Errorf("task panic: %v", r)
		}
	}()
	return task(ctx)
}

// finish records a terminal transition. Failures to write a terminal state
// are logged, never propagated; the record may legitimately be gone (deleted)
// or already canceled.
func (s *Scheduler) finish(id, status string, set func(j *model.Job)) {
	_, err := s.registry.Update(context.Background(), id, func(j *model.Job) error {
		j.Status = status
		set(j)
		return nil
	})
	if err != nil {
		if !errors.Is(err, registry.ErrNotFound) && !errors.Is(err, registry.ErrInvalidTransition) {
			s.logger.Error("record terminal state", "job_id", id, "status", status, "error", err)
		}
		return
	}
	jobsFinished.WithLabelValues(status).Inc()
}

// settle releases the job's pending+running capacity slot once its execution
// path exits for any reason.
func (s *Scheduler) settle() {
	s.mu.Lock()
	s.active--
	s.mu.Unlock()
}

// Get returns a snapshot of the job record.
func (s *Scheduler) Get(ctx context.Context, id string) (*model.Job, error) {
	return s.registry.Get(ctx, id)
}

// List returns snapshots of all job records in creation order, optionally
// filtered by status.
func (s *Scheduler) List(ctx context.Context, statusFilter string) ([]*model.Job, error) {
	return s.registry.List(ctx, statusFilter)
}

// Delete cancels and/or removes a job:
//
//   - pending: the record is atomically marked canceled, guaranteeing the
//     task never runs;
//   - running: the job's context is canceled. The transition to canceled
//     happens inside the execution path once the task observes the signal;
//     a task that ignores its context runs to its normal conclusion
//     (cancellation of running work is cooperative, not preemptive);
//   - terminal: the record is removed.
//
// Returns registry.ErrNotFound for unknown ids.
func (s *Scheduler) Delete(ctx context.Context, id string) error {
	j, err := s.registry.Get(ctx, id)
	if err != nil {
		return err
	}

	if model.Terminal(j.Status) {
		existed, err := s.registry.Delete(ctx, id)
		if err != nil {
			return err
		}
		if !existed {
			return registry.ErrNotFound
		}
		return nil
	}

	if j.Status == model.StatusPending {
		now := time.Now().UTC()
		_, err := s.registry.Update(ctx, id, func(j *model.Job) error {
			if j.Status != model.StatusPending {
				return registry.ErrInvalidTransition
			}
			j.Status = model.StatusCanceled
			j.FinishedAt = &now
			return nil
		})
		switch {
		case err == nil:
			jobsFinished.WithLabelValues(model.StatusCanceled).Inc()
			// Unblock the execution goroutine waiting on the gate.
			s.cancelJob(id)
			return nil
		case errors.Is(err, registry.ErrNotFound):
			return registry.ErrNotFound
		case errors.Is(err, registry.ErrInvalidTransition):
			// Lost the race: the job reached running first. Fall through to
			// the cooperative path.
		default:
			return err
		}
	}

	s.cancelJob(id)
	return nil
}

func (s *Scheduler) cancelJob(id string) {
	s.mu.Lock()
	cancel := s.cancels[id]
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// forget drops the job's cancel func and done channel once its execution path
// has exited, so tracking state does not grow with every job the process has
// ever run. Wait falls back to the registry for untracked ids.
func (s *Scheduler) forget(id string) {
	s.mu.Lock()
	delete(s.cancels, id)
	delete(s.done, id)
	s.mu.Unlock()
}

// Result returns the result_ref of a completed job. A failed job yields its
// recorded error; any other status yields ErrNotFinished.
func (s *Scheduler) Result(ctx context.Context, id string) (string, error) {
	j, err := s.registry.Get(ctx, id)
	if err != nil {
		return "", err
	}
	switch j.Status {
	case model.StatusCompleted:
		return j.ResultRef, nil
	case model.StatusFailed:
		return "", errors.New(j.Error)
	default:
		return "", fmt.Errorf("%w: status %s", ErrNotFinished, j.Status)
	}
}

// Wait blocks until the job's execution path has exited or ctx is done.
// For ids the scheduler no longer tracks, it returns immediately if the
// record exists, or registry.ErrNotFound.
func (s *Scheduler) Wait(ctx context.Context, id string) error {
	s.mu.Lock()
	done, ok := s.done[id]
	s.mu.Unlock()

	if !ok {
		if _, err := s.registry.Get(ctx, id); err != nil {
			return err
		}
		return nil
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting submissions and waits for in-flight jobs to drain.
// If ctx expires first, all remaining jobs are sent the cancellation signal
// and Close waits for them to exit; a task that ignores its context still
// blocks Close until it returns.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-ctx.Done():
		s.baseCancel()
		<-drained
	}

	s.baseCancel()
	return nil
}
