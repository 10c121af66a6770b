package tasks

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/tasker/internal/errors"
	"github.com/Iron-Ham/tasker/internal/event"
	"github.com/Iron-Ham/tasker/internal/logging"
)

// WorkerState is a hired worker's place in its lifecycle.
type WorkerState int

const (
	// StateGone means the worker is not in the registry.
	StateGone WorkerState = iota
	// StateHired means the worker is registered and holds no assignments.
	StateHired
	// StateAssigned means the worker is running one or more accepted tasks.
	StateAssigned
	// StateTerminating means Terminate was called and has not returned yet.
	StateTerminating
)

func (s WorkerState) String() string {
	switch s {
	case StateGone:
		return "gone"
	case StateHired:
		return "hired"
	case StateAssigned:
		return "assigned"
	case StateTerminating:
		return "terminating"
	default:
		return "unknown"
	}
}

// workerEntry is the registry record for one hired worker.
type workerEntry struct {
	id             int
	worker         Worker
	qualifiers     []Qualifier
	qualifications []string
	terminating    bool
	inflight       map[*Task]struct{}
	gone           chan struct{} // closed when the worker leaves the registry
	logger         *logging.Logger
}

func (e *workerEntry) qualifiesFor(series string) bool {
	return slices.ContainsFunc(e.qualifiers, func(q Qualifier) bool {
		return qualifies(q, series)
	})
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(l *logging.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithEventBus makes the handler publish lifecycle events on bus.
func WithEventBus(bus *event.Bus) Option {
	return func(h *Handler) { h.bus = bus }
}

// WithTaskFactory replaces the handler's TaskFactory.
func WithTaskFactory(f *TaskFactory) Option {
	return func(h *Handler) {
		if f != nil {
			h.factory = f
		}
	}
}

// WithWorkerAcceptTimeout bounds how long a worker may take to accept an
// offer before the offer counts as declined.
func WithWorkerAcceptTimeout(d time.Duration) Option {
	return func(h *Handler) { h.acceptTimeout = d }
}

// Handler is the scheduler: a registry of hired workers and a priority
// queue of pending tasks. Tasks are offered to qualified workers in
// (priority, serial) order; a worker that finishes an assignment asks for
// another in the same qualification.
//
// All registry mutations happen under one mutex. Workers report back only
// through task Results and their Accept and Run return values.
type Handler struct {
	mu           sync.Mutex
	workers      map[int]*workerEntry
	nextID       int
	running      int
	updates      []*Task
	shuttingDown bool
	shutdownDone chan struct{}

	factory       *TaskFactory
	assign        *AssignmentFactory
	acceptTimeout time.Duration
	logger        *logging.Logger
	bus           *event.Bus
}

// NewHandler creates a Handler with no workers.
func NewHandler(opts ...Option) *Handler {
	h := &Handler{
		workers:       make(map[int]*workerEntry),
		shutdownDone:  make(chan struct{}),
		factory:       NewTaskFactory(),
		acceptTimeout: DefaultAcceptTimeout,
		logger:        logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.assign = NewAssignmentFactory(
		WithAcceptTimeout(h.acceptTimeout),
		WithAcceptHook(h.accepted),
		WithAssignmentLogger(h.logger),
	)
	return h
}

// Factory returns the TaskFactory that stamps serials for this handler.
func (h *Handler) Factory() *TaskFactory { return h.factory }

// NewTask builds a serial-stamped task through the handler's factory.
func (h *Handler) NewTask(call Call, args any, kwargs any, priority float64, series string, opts ...TaskOption) (*Task, error) {
	return h.factory.New(call, args, kwargs, priority, series, opts...)
}

// Hire registers w and returns its new ID.
//
// It fails with an ImplementationError if w is nil, with an InvariantError
// if w's qualifications are malformed or it rejects its own invariants, and
// with errors.ErrHandlerShutdown once shutdown has begun. A failed hire
// leaves the registry untouched.
//
// Stored update tasks the worker qualifies for are run on it before it is
// offered any assignment.
func (h *Handler) Hire(w Worker) (int, error) {
	if isNilWorker(w) {
		return 0, errors.NewImplementationError(typeName(w))
	}
	quals, declared, err := qualifiersFor(w)
	if err != nil {
		return 0, err
	}
	if v, ok := w.(InvariantValidator); ok {
		if err := v.ValidateInvariants(); err != nil {
			return 0, errors.NewInvariantError("worker rejected its invariants", err).
				WithTypeName(typeName(w))
		}
	}

	h.mu.Lock()
	if h.shuttingDown {
		h.mu.Unlock()
		return 0, errors.ErrHandlerShutdown
	}
	if id := w.ID(); id != 0 {
		if e, ok := h.workers[id]; ok && e.worker == w {
			h.mu.Unlock()
			return 0, errors.NewWorkerError("cannot hire", errors.ErrWorkerAlreadyHired).WithWorkerID(id)
		}
	}
	h.nextID++
	id := h.nextID
	w.SetID(id)
	entry := &workerEntry{
		id:             id,
		worker:         w,
		qualifiers:     quals,
		qualifications: declared,
		inflight:       make(map[*Task]struct{}),
		gone:           make(chan struct{}),
		logger:         h.logger.WithWorker(id),
	}
	h.workers[id] = entry
	updates := slices.Clone(h.updates)
	h.mu.Unlock()

	if r, ok := w.(Resigner); ok {
		r.SetResignator(func() { go h.resign(id) })
	}

	for _, u := range updates {
		if entry.qualifiesFor(u.series) {
			<-w.Run(u.Copy())
		}
	}

	h.mu.Lock()
	if !entry.terminating && !h.shuttingDown {
		for _, q := range quals {
			h.assign.Request(w, q)
		}
	}
	h.mu.Unlock()

	entry.logger.Info("worker hired",
		"type", typeName(w),
		"qualifications", declared,
		"updates", len(updates))
	h.publish(event.NewWorkerHiredEvent(id, declared))
	h.publishDepth()
	return id, nil
}

// Submit queues t for assignment and returns immediately. The returned
// Acceptance resolves when a worker accepts the task; the task's Result
// resolves when it finishes. Failures inside the task never surface here.
func (h *Handler) Submit(t *Task) (*Acceptance, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil task", errors.ErrInvalidInput)
	}

	h.mu.Lock()
	if h.shuttingDown {
		h.mu.Unlock()
		return nil, errors.ErrHandlerShutdown
	}
	acc := h.assign.New(t)
	h.mu.Unlock()

	h.logger.WithSeries(t.series).WithTask(t.id).Debug("task submitted",
		"priority", t.priority,
		"serial", t.serial)
	h.publish(event.NewTaskSubmittedEvent(t.id, t.series, t.priority))
	h.publishDepth()
	return acc, nil
}

// accepted is the AssignmentFactory hook. It hands the task to the worker
// and arranges for the worker's next request and for completion tracking.
func (h *Handler) accepted(t *Task, r *Request, waited time.Duration) bool {
	w := r.worker

	h.mu.Lock()
	entry, ok := h.workers[w.ID()]
	if !ok || entry.worker != w || entry.terminating {
		h.mu.Unlock()
		return false
	}
	entry.inflight[t] = struct{}{}
	h.running++
	ready := w.Run(t)
	h.mu.Unlock()

	go h.awaitReady(entry, r.qualifier, ready)
	go h.awaitResult(entry, t)

	entry.logger.WithTask(t.id).Debug("task assigned",
		"series", t.series,
		"qualifier", qualifierName(r.qualifier),
		"waited", waited)
	h.publish(event.NewTaskAssignedEvent(t.id, t.series, entry.id, waited))
	h.publishDepth()
	return true
}

// awaitReady renews the worker's request once it can take more work.
func (h *Handler) awaitReady(entry *workerEntry, q Qualifier, ready <-chan struct{}) {
	select {
	case <-ready:
	case <-entry.gone:
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if entry.terminating || h.shuttingDown {
		return
	}
	if _, ok := h.workers[entry.id]; !ok {
		return
	}
	h.assign.Request(entry.worker, q)
}

// awaitResult tracks a task until it resolves or its worker leaves.
func (h *Handler) awaitResult(entry *workerEntry, t *Task) {
	select {
	case <-t.result.Done():
	case <-entry.gone:
		return
	}
	if h.finish(entry, t) {
		h.publishFinished(entry.id, t)
		h.publishDepth()
	}
}

// finish removes t from the worker's in-flight set and reports whether it
// was there.
func (h *Handler) finish(entry *workerEntry, t *Task) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := entry.inflight[t]; !ok {
		return false
	}
	delete(entry.inflight, t)
	h.running--
	return true
}

func (h *Handler) publishFinished(workerID int, t *Task) {
	_, err, _ := t.result.Peek()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	h.publish(event.NewTaskFinishedEvent(t.id, t.series, workerID, err == nil, msg))
}

// Roster returns the workers qualified to run series, in hire order.
// Every worker qualifies for the default series, so Roster("") returns the
// whole work force.
func (h *Handler) Roster(series string) []Worker {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rosterLocked(series)
}

// rosterLocked is Roster for callers holding h.mu.
func (h *Handler) rosterLocked(series string) []Worker {
	ids := make([]int, 0, len(h.workers))
	for id, e := range h.workers {
		if !e.terminating && e.qualifiesFor(series) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	out := make([]Worker, len(ids))
	for i, id := range ids {
		out[i] = h.workers[id].worker
	}
	return out
}

// WorkerState returns the lifecycle state of the worker with the given ID
// and the number of assignments it is running.
func (h *Handler) WorkerState(id int) (WorkerState, int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e, ok := h.workers[id]
	switch {
	case !ok:
		return StateGone, 0
	case e.terminating:
		return StateTerminating, len(e.inflight)
	case len(e.inflight) > 0:
		return StateAssigned, len(e.inflight)
	default:
		return StateHired, 0
	}
}

// Len returns the number of workers in the registry, including workers
// that are still terminating.
func (h *Handler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.workers)
}

// Pending returns the number of tasks waiting for a worker.
func (h *Handler) Pending() int {
	return h.assign.Pending()
}

// Running returns the number of accepted tasks that have not resolved.
func (h *Handler) Running() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// IsRunning reports whether the handler still accepts hires and tasks.
func (h *Handler) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.shuttingDown
}

// Withdraw removes pending tasks selected by sel. Their Acceptances resolve
// with errors.ErrWithdrawn. Tasks already accepted are not affected.
func (h *Handler) Withdraw(sel func(*Task) bool) []*Task {
	withdrawn := h.assign.Withdraw(sel)
	if len(withdrawn) > 0 {
		h.logger.Info("tasks withdrawn", "count", len(withdrawn))
		h.publishDepth()
	}
	return withdrawn
}

func (h *Handler) publish(e event.Event) {
	if h.bus != nil {
		h.bus.Publish(e)
	}
}

func (h *Handler) publishDepth() {
	if h.bus == nil {
		return
	}
	pending := h.assign.Pending()
	h.mu.Lock()
	running, workers := h.running, len(h.workers)
	h.mu.Unlock()
	h.bus.Publish(event.NewQueueDepthChangedEvent(pending, running, workers))
}
