package cmd

import (
	"context"
	"slices"
	"sync"

	"github.com/Iron-Ham/tasker/internal/config"
	"github.com/Iron-Ham/tasker/internal/event"
	"github.com/Iron-Ham/tasker/internal/logging"
	"github.com/Iron-Ham/tasker/internal/queue"
	"github.com/Iron-Ham/tasker/internal/report"
	"github.com/Iron-Ham/tasker/internal/scaling"
	"github.com/Iron-Ham/tasker/internal/tasks"
	"github.com/Iron-Ham/tasker/internal/workers"
)

// fleet hires and retires the local workers of a run and tallies what each
// of them finished.
type fleet struct {
	q      *queue.Queue
	cfg    config.WorkersConfig
	quals  []string
	logger *logging.Logger

	mu        sync.Mutex
	active    []int // hired worker IDs, oldest first
	next      int   // index into cfg.Speeds for the next hire
	locals    map[int]*workers.Local
	summaries map[int]*report.WorkerSummary
	abandoned int
	subID     string
	bus       *event.Bus
}

// newFleet prepares a fleet whose workers take the configured
// qualifications plus every series in series.
func newFleet(q *queue.Queue, bus *event.Bus, cfg config.WorkersConfig, series []string, logger *logging.Logger) *fleet {
	f := &fleet{
		q:         q,
		cfg:       cfg,
		quals:     qualifications(cfg.Qualifications, series),
		logger:    logger,
		locals:    make(map[int]*workers.Local),
		summaries: make(map[int]*report.WorkerSummary),
		bus:       bus,
	}
	f.subID = bus.SubscribeAll(f.record)
	return f
}

func (f *fleet) close() {
	f.bus.Unsubscribe(f.subID)
}

func (f *fleet) record(e event.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch e := e.(type) {
	case event.TaskFinishedEvent:
		if s, ok := f.summaries[e.WorkerID]; ok && !e.Success {
			s.Failed++
		}
	case event.TaskAbandonedEvent:
		f.abandoned++
	}
}

// qualifications merges the configured qualifications with the series a
// run submits to. The default series and names a worker already declares
// are skipped, since a worker may not declare a name twice.
func qualifications(configured, series []string) []string {
	quals := slices.Clone(configured)
	for _, s := range series {
		if s == "" || s == workers.ClassQualification || slices.Contains(quals, s) {
			continue
		}
		quals = append(quals, s)
	}
	return quals
}

// hire attaches n new local workers.
func (f *fleet) hire(n int) error {
	for range n {
		f.mu.Lock()
		idx := f.next
		f.next++
		f.mu.Unlock()

		speed := 1.0
		if idx < len(f.cfg.Speeds) {
			speed = f.cfg.Speeds[idx]
		}
		cost := f.cfg.Cost(idx)

		w := workers.NewLocal(
			workers.WithConcurrency(f.cfg.Concurrency),
			workers.WithQualifications(f.quals...),
			workers.WithCost(cost),
			workers.WithLogger(f.logger),
		)
		id, err := f.q.AttachWorker(w)
		if err != nil {
			return err
		}

		f.mu.Lock()
		f.active = append(f.active, id)
		f.locals[id] = w
		f.summaries[id] = &report.WorkerSummary{ID: id, Speed: speed, CostMs: cost.Milliseconds()}
		f.mu.Unlock()
	}
	return nil
}

// retire detaches the n most recently hired workers. Tasks they cannot
// finish within the detach timeout go back to the queue.
func (f *fleet) retire(ctx context.Context, n int) error {
	for range n {
		f.mu.Lock()
		if len(f.active) == 0 {
			f.mu.Unlock()
			return nil
		}
		id := f.active[len(f.active)-1]
		f.active = f.active[:len(f.active)-1]
		f.mu.Unlock()

		if _, err := f.q.DetachWorker(ctx, id, tasks.WithReassign()); err != nil {
			return err
		}
	}
	return nil
}

// apply carries out a scaling decision.
func (f *fleet) apply(ctx context.Context, d scaling.Decision) {
	var err error
	switch d.Action {
	case scaling.ActionScaleUp:
		err = f.hire(d.Delta)
	case scaling.ActionScaleDown:
		err = f.retire(ctx, -d.Delta)
	}
	if err != nil {
		f.logger.Warn("scaling decision not applied", "action", d.Action.String(), "error", err)
	}
}

// size returns the number of workers currently hired.
func (f *fleet) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}

// fill copies the per-worker tallies into r. Completion counts come from
// the workers themselves, which count every task they resolved.
func (f *fleet) fill(r *report.Report) {
	f.mu.Lock()
	defer f.mu.Unlock()

	r.Abandoned = f.abandoned
	r.Workers = r.Workers[:0]
	for id, s := range f.summaries {
		ws := *s
		ws.Completed = f.locals[id].Completed()
		r.Workers = append(r.Workers, ws)
	}
}
