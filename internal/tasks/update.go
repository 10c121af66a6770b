package tasks

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/tasker/internal/errors"
)

// Update runs a copy of t directly on every current worker qualified for
// its series, bypassing the queue, and returns the results in hire order.
// Unless ephemeral is true, t is also kept and run on every qualified
// worker hired later, before that worker takes its first assignment.
//
// The first failing copy's error is returned, wrapped with the worker ID.
// Results of runs on later hires are not reported anywhere.
func (h *Handler) Update(ctx context.Context, t *Task, ephemeral bool) ([]any, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil update task", errors.ErrInvalidInput)
	}

	h.mu.Lock()
	if h.shuttingDown {
		h.mu.Unlock()
		return nil, errors.ErrHandlerShutdown
	}
	if !ephemeral {
		h.updates = append(h.updates, t)
	}
	// Workers hired after this point run t from the stored updates.
	roster := h.rosterLocked(t.series)
	h.mu.Unlock()

	copies := make([]*Task, len(roster))
	for i, w := range roster {
		copies[i] = t.Copy()
		w.Run(copies[i])
	}

	h.logger.WithSeries(t.series).WithTask(t.id).Info("update dispatched",
		"workers", len(roster),
		"ephemeral", ephemeral)

	results := make([]any, len(copies))
	for i, c := range copies {
		value, err := c.result.Wait(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return results, err
			}
			return results, fmt.Errorf("update on worker %d: %w", roster[i].ID(), err)
		}
		results[i] = value
	}
	return results, nil
}
