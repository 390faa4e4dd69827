package scheduler

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Gate bounds how many jobs may execute at once. A nil *Gate imposes no
// limit, so callers never branch on whether a limit is configured.
type Gate struct {
	sem *semaphore.Weighted
}

// NewGate creates a gate admitting up to limit concurrent holders.
// A limit of zero or less returns nil (unlimited).
func NewGate(limit int) *Gate {
	if limit <= 0 {
		return nil
	}
	return &Gate{sem: semaphore.NewWeighted(int64(limit))}
}

// Acquire blocks until a slot is free or ctx is done. It returns nil exactly
// when a slot was acquired and must then be paired with Release.
func (g *Gate) Acquire(ctx context.Context) error {
	if g == nil {
		return ctx.Err()
	}
	return g.sem.Acquire(ctx, 1)
}

// Release frees one previously acquired slot.
func (g *Gate) Release() {
	if g == nil {
		return
	}
	g.sem.Release(1)
}
