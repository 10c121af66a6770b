package tasks

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/tasker/internal/errors"
	"github.com/Iron-Ham/tasker/internal/event"
)

// TerminateOption configures a single Terminate call.
type TerminateOption func(*terminateConfig)

type terminateConfig struct {
	timeout  time.Duration
	crash    bool
	reassign bool
}

// WithTimeout bounds a graceful termination. Tasks still running when d
// elapses are abandoned and returned.
func WithTimeout(d time.Duration) TerminateOption {
	return func(c *terminateConfig) { c.timeout = d }
}

// WithCrash abandons the worker's in-flight tasks immediately.
func WithCrash() TerminateOption {
	return func(c *terminateConfig) { c.crash = true }
}

// WithReassign resubmits abandoned tasks to the remaining workers instead
// of returning them.
func WithReassign() TerminateOption {
	return func(c *terminateConfig) { c.reassign = true }
}

// Terminate removes the worker with the given ID from the registry and
// returns the in-flight tasks it abandoned.
//
// By default the worker is stopped gracefully and Terminate waits for all
// of its in-flight tasks to resolve, returning an empty list. WithTimeout
// crashes the worker after the grace period; WithCrash crashes it at once.
// If ctx ends first the worker is crashed and ctx's error is returned along
// with the abandoned tasks. Pending tasks are never abandoned: they stay
// queued for other workers.
//
// When Terminate returns the worker is gone and receives no more
// assignments.
func (h *Handler) Terminate(ctx context.Context, id int, opts ...TerminateOption) ([]*Task, error) {
	var cfg terminateConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	h.mu.Lock()
	entry, ok := h.workers[id]
	if !ok || entry.terminating {
		h.mu.Unlock()
		return nil, errors.NewWorkerError("cannot terminate", errors.ErrWorkerNotFound).WithWorkerID(id)
	}
	entry.terminating = true
	h.assign.CancelRequests(entry.worker)
	h.mu.Unlock()

	entry.logger.Info("terminating worker",
		"crash", cfg.crash,
		"timeout", cfg.timeout,
		"reassign", cfg.reassign)

	abandoned, crashed, err := h.stopWorker(ctx, entry, cfg)

	reassigned := false
	if len(abandoned) > 0 && cfg.reassign {
		h.mu.Lock()
		if !h.shuttingDown {
			for _, t := range abandoned {
				h.assign.New(t)
			}
			reassigned = true
		}
		h.mu.Unlock()
	}

	h.remove(entry)

	for _, t := range abandoned {
		h.publish(event.NewTaskAbandonedEvent(t.id, t.series, id, reassigned))
	}
	h.publish(event.NewWorkerTerminatedEvent(id, crashed, len(abandoned)))
	h.publishDepth()

	if len(abandoned) > 0 {
		entry.logger.Warn("worker abandoned tasks", "count", len(abandoned), "reassigned", reassigned)
	}
	entry.logger.Info("worker terminated", "crashed", crashed)

	if reassigned {
		return []*Task{}, err
	}
	if abandoned == nil {
		abandoned = []*Task{}
	}
	return abandoned, err
}

// stopWorker runs the stop or crash protocol and returns abandoned tasks.
func (h *Handler) stopWorker(ctx context.Context, entry *workerEntry, cfg terminateConfig) ([]*Task, bool, error) {
	w := entry.worker
	if cfg.crash {
		return w.Crash(), true, nil
	}

	stopped := w.Stop()

	var grace <-chan time.Time
	if cfg.timeout > 0 {
		timer := time.NewTimer(cfg.timeout)
		defer timer.Stop()
		grace = timer.C
	}

	select {
	case <-stopped:
		return nil, false, nil
	case <-grace:
		entry.logger.Warn("graceful stop timed out, crashing worker", "timeout", cfg.timeout)
		return w.Crash(), true, nil
	case <-ctx.Done():
		entry.logger.Warn("terminate cancelled, crashing worker", "error", ctx.Err())
		return w.Crash(), true, ctx.Err()
	}
}

// remove deletes entry from the registry. Tasks it still tracks are either
// reported finished, if they resolved, or dropped from the running count.
func (h *Handler) remove(entry *workerEntry) {
	var finished []*Task

	h.mu.Lock()
	for t := range entry.inflight {
		if t.result.Resolved() {
			finished = append(finished, t)
		}
		delete(entry.inflight, t)
		h.running--
	}
	delete(h.workers, entry.id)
	close(entry.gone)
	h.mu.Unlock()

	for _, t := range finished {
		h.publishFinished(entry.id, t)
	}
}

// resign crashes a worker that asked to quit and reassigns its tasks.
func (h *Handler) resign(id int) {
	if _, err := h.Terminate(context.Background(), id, WithCrash(), WithReassign()); err != nil {
		h.logger.WithWorker(id).Debug("resignation ignored", "error", err.Error())
	}
}

// Shutdown stops accepting hires and tasks, terminates every worker
// gracefully and withdraws pending tasks, whose Acceptances resolve with
// errors.ErrHandlerShutdown. It returns the tasks left unfinished: tasks
// abandoned by workers crashed because ctx ended, followed by withdrawn
// pending tasks.
//
// Only the first call does the work. Later or concurrent calls wait for it
// to finish and return an empty list.
func (h *Handler) Shutdown(ctx context.Context) ([]*Task, error) {
	h.mu.Lock()
	if h.shuttingDown {
		h.mu.Unlock()
		select {
		case <-h.shutdownDone:
			return []*Task{}, nil
		case <-ctx.Done():
			return []*Task{}, ctx.Err()
		}
	}
	h.shuttingDown = true
	ids := make([]int, 0, len(h.workers))
	for id, e := range h.workers {
		if !e.terminating {
			ids = append(ids, id)
		}
	}
	h.mu.Unlock()
	defer close(h.shutdownDone)

	h.logger.Info("shutting down task handler", "workers", len(ids), "pending", h.assign.Pending())

	type outcome struct {
		abandoned []*Task
		err       error
	}
	p := pool.NewWithResults[outcome]()
	for _, id := range ids {
		p.Go(func() outcome {
			abandoned, err := h.Terminate(ctx, id)
			if errors.Is(err, errors.ErrWorkerNotFound) {
				err = nil
			}
			return outcome{abandoned: abandoned, err: err}
		})
	}

	var unfinished []*Task
	var errs []error
	for _, o := range p.Wait() {
		unfinished = append(unfinished, o.abandoned...)
		if o.err != nil {
			errs = append(errs, o.err)
		}
	}

	// Terminate calls not in the snapshot (hired or terminating before the
	// snapshot) finish on their own; wait for the registry to drain.
	h.drain(ctx)

	withdrawn := h.assign.Close(errors.ErrHandlerShutdown)
	unfinished = append(unfinished, withdrawn...)
	h.factory.Reset()

	h.logger.Info("task handler shut down", "unfinished", len(unfinished))
	h.publishDepth()

	if unfinished == nil {
		unfinished = []*Task{}
	}
	return unfinished, errors.Join(errs...)
}

// drain waits until the registry is empty or ctx ends.
func (h *Handler) drain(ctx context.Context) {
	for {
		h.mu.Lock()
		var gone chan struct{}
		for _, e := range h.workers {
			gone = e.gone
			break
		}
		h.mu.Unlock()

		if gone == nil {
			return
		}
		select {
		case <-gone:
		case <-ctx.Done():
			return
		}
	}
}
