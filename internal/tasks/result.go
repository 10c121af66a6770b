package tasks

import (
	"context"
	"sync"

	"github.com/Iron-Ham/tasker/internal/errors"
)

// Result is a single-assignment handle to the outcome of a task's call.
// It is resolved exactly once, with either a value or an error. A second
// resolution is refused with errors.ErrAlreadyResolved.
type Result struct {
	mu       sync.Mutex
	done     chan struct{}
	resolved bool
	value    any
	err      error
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

// resolve records the outcome and wakes all waiters.
func (r *Result) resolve(value any, err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.resolved {
		return errors.ErrAlreadyResolved
	}
	r.resolved = true
	r.value = value
	r.err = err
	close(r.done)
	return nil
}

// Done returns a channel that is closed once the result is resolved.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Resolved reports whether the result has been set.
func (r *Result) Resolved() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolved
}

// Peek returns the outcome without blocking. ok is false while the result
// is unresolved.
func (r *Result) Peek() (value any, err error, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, r.err, r.resolved
}

// Wait blocks until the result is resolved or ctx is done.
// An abandoned task's result never resolves, so callers that may observe
// abandonment should pass a cancellable context.
func (r *Result) Wait(ctx context.Context) (any, error) {
	select {
	case <-r.done:
		value, err, _ := r.Peek()
		return value, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
