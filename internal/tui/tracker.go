package tui

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/Iron-Ham/tasker/internal/event"
)

// maxRecent bounds the activity log kept for display.
const maxRecent = 8

// WorkerStats is one worker's row in the dashboard.
type WorkerStats struct {
	ID        int
	Status    string // idle, busy, gone or crashed
	Running   int
	Completed int
	Failed    int
}

// Snapshot is a consistent copy of everything the dashboard shows.
type Snapshot struct {
	Submitted int
	Assigned  int
	Succeeded int
	Failed    int
	Abandoned int
	Pending   int
	Running   int
	Workers   []WorkerStats // ordered by ID
	Scaling   string        // last scaling decision, empty if none
	Recent    []string      // newest last
}

// Finished returns the number of tasks whose result has been resolved.
func (s Snapshot) Finished() int {
	return s.Succeeded + s.Failed
}

// Tracker folds handler events into dashboard state. It records on the
// publisher's goroutine and never touches the UI; the model polls Snapshot
// on every tick.
type Tracker struct {
	mu     sync.Mutex
	bus    *event.Bus
	subID  string
	snap   Snapshot
	byID   map[int]*WorkerStats
	recent []string
}

// NewTracker creates a Tracker subscribed to every event on bus.
func NewTracker(bus *event.Bus) *Tracker {
	t := &Tracker{
		bus:  bus,
		byID: make(map[int]*WorkerStats),
	}
	t.subID = bus.SubscribeAll(t.record)
	return t
}

// Close unsubscribes the tracker from the bus.
func (t *Tracker) Close() {
	t.bus.Unsubscribe(t.subID)
}

func (t *Tracker) worker(id int) *WorkerStats {
	w, ok := t.byID[id]
	if !ok {
		w = &WorkerStats{ID: id, Status: "idle"}
		t.byID[id] = w
	}
	return w
}

func (t *Tracker) note(format string, args ...any) {
	t.recent = append(t.recent, fmt.Sprintf(format, args...))
	if len(t.recent) > maxRecent {
		t.recent = t.recent[len(t.recent)-maxRecent:]
	}
}

func (t *Tracker) record(e event.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch e := e.(type) {
	case event.WorkerHiredEvent:
		t.worker(e.WorkerID)
		t.note("worker %d hired", e.WorkerID)
	case event.WorkerTerminatedEvent:
		w := t.worker(e.WorkerID)
		w.Running = 0
		w.Status = "gone"
		if e.Crashed {
			w.Status = "crashed"
			t.note("worker %d crashed, %d tasks abandoned", e.WorkerID, e.Abandoned)
		} else {
			t.note("worker %d terminated", e.WorkerID)
		}
	case event.TaskSubmittedEvent:
		t.snap.Submitted++
	case event.TaskAssignedEvent:
		t.snap.Assigned++
		w := t.worker(e.WorkerID)
		w.Running++
		w.Status = "busy"
	case event.TaskFinishedEvent:
		w := t.worker(e.WorkerID)
		if e.Success {
			t.snap.Succeeded++
			w.Completed++
		} else {
			t.snap.Failed++
			w.Failed++
			t.note("task %s failed: %s", e.TaskID, e.Error)
		}
		t.release(w)
	case event.TaskAbandonedEvent:
		t.snap.Abandoned++
		t.release(t.worker(e.WorkerID))
	case event.QueueDepthChangedEvent:
		t.snap.Pending = e.Pending
		t.snap.Running = e.Running
	case event.ScalingDecisionEvent:
		t.snap.Scaling = fmt.Sprintf("%s %+d: %s", e.Action, e.Delta, e.Reason)
		t.note("scaling: %s %+d", e.Action, e.Delta)
	}
}

func (t *Tracker) release(w *WorkerStats) {
	if w.Running > 0 {
		w.Running--
	}
	if w.Running == 0 && w.Status == "busy" {
		w.Status = "idle"
	}
}

// Snapshot returns a copy of the current dashboard state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.snap
	s.Workers = make([]WorkerStats, 0, len(t.byID))
	for _, id := range slices.Sorted(maps.Keys(t.byID)) {
		s.Workers = append(s.Workers, *t.byID[id])
	}
	s.Recent = slices.Clone(t.recent)
	return s
}
