// Package task provides the name→callable mapping resolved at submission
// time. Handlers are registered once at startup and looked up by name when a
// job is submitted over the API.
package task

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc is a type-erased task handler. It receives the raw JSON payload
// supplied at submission and returns an optional result reference (an opaque
// pointer to whatever artifact the task produced).
type HandlerFunc func(ctx context.Context, payload []byte) (string, error)

// Registry maps task names to handlers. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a handler under the given name. Registering the same name
// twice is a configuration error.
func (r *Registry) Register(name string, h HandlerFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.handlers[name]; ok {
		return fmt.Errorf("task %q already registered", name)
	}
	r.handlers[name] = h
	return nil
}

// Get returns the handler for the given task name.
// Returns false if no handler is registered.
func (r *Registry) Get(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns all registered task names, sorted for a stable API response.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Define registers a typed handler. The generic handler is wrapped in a
// closure that JSON-unmarshals the payload into T before calling it.
//
// This is a package-level generic function because Go does not allow generic
// methods on non-generic receiver types.
func Define[T any](r *Registry, name string, handler func(ctx context.Context, params T) (string, error)) error {
	return r.Register(name, func(ctx context.Context, payload []byte) (string, error) {
		var t T
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &t); err != nil {
				return "", fmt.Errorf("unmarshal payload for task %q: %w", name, err)
			}
		}
		return handler(ctx, t)
	})
}
