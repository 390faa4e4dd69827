package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/stokerlabs/stoker/internal/model"
	"github.com/stokerlabs/stoker/internal/registry"
)

// DefaultPollInterval is the status stream poll interval used when the
// caller does not specify one.
const DefaultPollInterval = 500 * time.Millisecond

// Watcher produces live status streams for individual jobs by polling the
// registry at a fixed interval. Every status transition is observed within
// one interval, and every stream ends with either a terminal snapshot or a
// synthetic deleted one.
type Watcher struct {
	registry registry.Registry
}

// NewWatcher creates a watcher reading from reg.
func NewWatcher(reg registry.Registry) *Watcher {
	return &Watcher{registry: reg}
}

// Watch returns a channel of status snapshots for the given job. The first
// snapshot is emitted immediately; after that a snapshot is emitted whenever
// the observed status differs from the last one sent. The channel is closed
// after a terminal snapshot, after a synthetic deleted snapshot (status
// "deleted") if the record disappears mid-stream, or when ctx is done. The
// polling goroutine always exits with the channel.
//
// Returns registry.ErrNotFound if the job does not exist when the watch is
// opened.
func (w *Watcher) Watch(ctx context.Context, id string, interval time.Duration) (<-chan model.Job, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if _, err := w.registry.Get(ctx, id); err != nil {
		return nil, err
	}

	ch := make(chan model.Job)
	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last string
		for {
			j, err := w.registry.Get(context.Background(), id)
			if errors.Is(err, registry.ErrNotFound) {
				// Deleted mid-stream: emit a final synthetic snapshot.
				select {
				case ch <- model.Job{ID: id, Status: model.StatusDeleted}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				// Transient registry error; keep the stream open and try
				// again on the next tick.
				select {
				case <-ticker.C:
				case <-ctx.Done():
					return
				}
				continue
			}

			if j.Status != last {
				select {
				case ch <- *j:
					last = j.Status
				case <-ctx.Done():
					return
				}
			}

			if model.Terminal(j.Status) {
				return
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
