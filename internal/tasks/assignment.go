package tasks

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Iron-Ham/tasker/internal/errors"
	"github.com/Iron-Ham/tasker/internal/logging"
)

// DefaultAcceptTimeout bounds how long a worker may take to answer an offer.
const DefaultAcceptTimeout = 5 * time.Second

// Outcome is the result of one negotiation attempt.
type Outcome int

const (
	// OutcomePending means the worker has not answered yet.
	OutcomePending Outcome = iota
	// OutcomeAccepted means the worker took the task.
	OutcomeAccepted
	// OutcomeDeclined means the worker refused, panicked or timed out.
	OutcomeDeclined
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDeclined:
		return "declined"
	default:
		return "unknown"
	}
}

// Assignment is a single attempt to hand one task to one worker. Its
// outcome is set exactly once.
type Assignment struct {
	task   *Task
	worker Worker

	mu      sync.Mutex
	outcome Outcome
}

// Task returns the task being offered.
func (a *Assignment) Task() *Task { return a.task }

// Worker returns the candidate worker.
func (a *Assignment) Worker() Worker { return a.worker }

// Outcome returns the attempt's outcome so far.
func (a *Assignment) Outcome() Outcome {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.outcome
}

// settle sets the outcome if none was set yet and reports whether it did.
func (a *Assignment) settle(o Outcome) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.outcome != OutcomePending {
		return false
	}
	a.outcome = o
	return true
}

// Acceptance resolves once some worker accepts a submitted task, or with an
// error if the task is withdrawn first. It reports acceptance only; the
// task's own Result carries the execution outcome.
type Acceptance struct {
	task *Task
	done chan struct{}
	once sync.Once

	worker Worker
	err    error
}

func newAcceptance(t *Task) *Acceptance {
	return &Acceptance{task: t, done: make(chan struct{})}
}

func (a *Acceptance) resolve(w Worker, err error) {
	a.once.Do(func() {
		a.worker = w
		a.err = err
		close(a.done)
	})
}

// Task returns the submitted task.
func (a *Acceptance) Task() *Task { return a.task }

// Done returns a channel closed once the acceptance resolves.
func (a *Acceptance) Done() <-chan struct{} { return a.done }

// Worker returns the accepting worker, or nil if none has accepted.
func (a *Acceptance) Worker() Worker {
	select {
	case <-a.done:
		return a.worker
	default:
		return nil
	}
}

// Err returns the withdrawal error, or nil.
func (a *Acceptance) Err() error {
	select {
	case <-a.done:
		return a.err
	default:
		return nil
	}
}

// Wait blocks until a worker accepts the task, the task is withdrawn, or
// ctx is done.
func (a *Acceptance) Wait(ctx context.Context) (Worker, error) {
	select {
	case <-a.done:
		return a.worker, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Request is a worker's standing offer to take one task its qualifier admits.
type Request struct {
	worker    Worker
	qualifier Qualifier
	seq       uint64
	cancelled bool // guarded by AssignmentFactory.mu
}

// Worker returns the requesting worker.
func (r *Request) Worker() Worker { return r.worker }

// Qualifier returns the slot's qualifier. nil admits any task.
func (r *Request) Qualifier() Qualifier { return r.qualifier }

// pending is a submitted task waiting for a worker.
type pending struct {
	task       *Task
	acceptance *Acceptance
	seq        uint64
	submitted  time.Time
	declined   map[int]struct{} // IDs of workers that declined this task
}

func comparePending(a, b *pending) int {
	if c := a.task.Compare(b.task); c != 0 {
		return c
	}
	return cmp.Compare(a.seq, b.seq)
}

// AcceptHook runs after a worker accepts a task and before the task's
// Acceptance resolves. Returning false puts the task back in the pending
// set without counting a decline.
type AcceptHook func(t *Task, r *Request, waited time.Duration) bool

// AssignmentOption configures an AssignmentFactory.
type AssignmentOption func(*AssignmentFactory)

// WithAcceptTimeout bounds each Accept call. Zero disables the bound.
func WithAcceptTimeout(d time.Duration) AssignmentOption {
	return func(f *AssignmentFactory) { f.acceptTimeout = d }
}

// WithAcceptHook installs the hook run for every accepted task.
func WithAcceptHook(h AcceptHook) AssignmentOption {
	return func(f *AssignmentFactory) { f.onAccepted = h }
}

// WithAssignmentLogger sets the logger for declines.
func WithAssignmentLogger(l *logging.Logger) AssignmentOption {
	return func(f *AssignmentFactory) {
		if l != nil {
			f.logger = l
		}
	}
}

// AssignmentFactory matches pending tasks with worker requests.
//
// Pending tasks are kept ordered by (priority, serial, submission order).
// Requests are kept in registration order. Whenever either set changes the
// pending tasks are walked in order and each is offered to the first request
// that admits it and whose worker has not declined it. Every offer runs on
// its own goroutine outside the factory lock, so a worker slow to answer
// holds up only the task offered to it.
//
// No method calls back into workers or hooks synchronously, so callers may
// hold their own locks while calling the factory.
type AssignmentFactory struct {
	mu          sync.Mutex
	pending     []*pending // sorted by comparePending
	requests    []*Request // sorted by seq
	offering map[*Request]struct{} // requests with an outstanding offer
	seq      uint64
	closed   error // set by Close; refuses further work

	acceptTimeout time.Duration
	onAccepted    AcceptHook
	logger        *logging.Logger
}

// NewAssignmentFactory creates an empty AssignmentFactory.
func NewAssignmentFactory(opts ...AssignmentOption) *AssignmentFactory {
	f := &AssignmentFactory{
		offering:      make(map[*Request]struct{}),
		acceptTimeout: DefaultAcceptTimeout,
		logger:        logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Request registers a slot for w admitting tasks that q qualifies. A worker
// may hold many slots. Registering a request lifts any earlier declines by
// w, so tasks it refused may be offered to it again.
func (f *AssignmentFactory) Request(w Worker, q Qualifier) *Request {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	r := &Request{worker: w, qualifier: q, seq: f.seq}
	if f.closed != nil {
		r.cancelled = true
		return r
	}
	f.requests = append(f.requests, r)

	id := w.ID()
	for _, p := range f.pending {
		delete(p.declined, id)
	}
	f.schedule()
	return r
}

// New queues t and returns a handle that resolves when a worker accepts it.
func (f *AssignmentFactory) New(t *Task) *Acceptance {
	acc := newAcceptance(t)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.seq++
	f.requeue(&pending{
		task:       t,
		acceptance: acc,
		seq:        f.seq,
		submitted:  time.Now(),
	})
	f.schedule()
	return acc
}

// CancelRequests removes every slot held by w and returns how many were
// removed. Offers to w that are outstanding when this is called are
// treated as never made.
func (f *AssignmentFactory) CancelRequests(w Worker) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	for r := range f.offering {
		if r.worker == w {
			r.cancelled = true
		}
	}
	before := len(f.requests)
	f.requests = slices.DeleteFunc(f.requests, func(r *Request) bool {
		if r.worker == w {
			r.cancelled = true
			return true
		}
		return false
	})
	return before - len(f.requests)
}

// Withdraw removes every pending task selected by sel and resolves their
// Acceptances with errors.ErrWithdrawn. A nil sel selects all.
func (f *AssignmentFactory) Withdraw(sel func(*Task) bool) []*Task {
	return f.withdraw(sel, errors.ErrWithdrawn)
}

func (f *AssignmentFactory) withdraw(sel func(*Task) bool, cause error) []*Task {
	f.mu.Lock()
	var removed []*pending
	f.pending = slices.DeleteFunc(f.pending, func(p *pending) bool {
		if sel == nil || sel(p.task) {
			removed = append(removed, p)
			return true
		}
		return false
	})
	f.mu.Unlock()

	out := make([]*Task, 0, len(removed))
	for _, p := range removed {
		p.acceptance.resolve(nil, cause)
		out = append(out, p.task)
	}
	return out
}

// Close withdraws every pending task with cause, drops all requests and
// makes the factory refuse further work: tasks queued afterwards resolve
// their Acceptances with cause immediately. Close is idempotent.
func (f *AssignmentFactory) Close(cause error) []*Task {
	if cause == nil {
		cause = errors.ErrWithdrawn
	}
	f.mu.Lock()
	if f.closed == nil {
		f.closed = cause
	}
	for _, r := range f.requests {
		r.cancelled = true
	}
	for r := range f.offering {
		r.cancelled = true
	}
	f.requests = nil
	cause = f.closed
	f.mu.Unlock()

	return f.withdraw(nil, cause)
}

// Pending returns the number of tasks waiting for a worker.
func (f *AssignmentFactory) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Waiting returns the number of registered request slots.
func (f *AssignmentFactory) Waiting() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// PendingTasks returns the pending tasks in dispatch order.
func (f *AssignmentFactory) PendingTasks() []*Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Task, len(f.pending))
	for i, p := range f.pending {
		out[i] = p.task
	}
	return out
}

// requeue returns p to the pending set, or resolves it with the close
// cause once the factory is closed. Must be called with f.mu held.
func (f *AssignmentFactory) requeue(p *pending) {
	if f.closed != nil {
		p.acceptance.resolve(nil, f.closed)
		return
	}
	f.insertPending(p)
}

func (f *AssignmentFactory) insertPending(p *pending) {
	i, _ := slices.BinarySearchFunc(f.pending, p, comparePending)
	f.pending = slices.Insert(f.pending, i, p)
}

func (f *AssignmentFactory) restoreRequest(r *Request) {
	i, _ := slices.BinarySearchFunc(f.requests, r, func(a, b *Request) int {
		return cmp.Compare(a.seq, b.seq)
	})
	f.requests = slices.Insert(f.requests, i, r)
}

// schedule starts an offer for every pending task a free request can take.
// Must be called with f.mu held.
func (f *AssignmentFactory) schedule() {
	for {
		p, r, ok := f.nextMatch()
		if !ok {
			return
		}
		f.offering[r] = struct{}{}
		go f.negotiate(p, r)
	}
}

// nextMatch removes and returns the best pending task and the first
// request able to take it. Must be called with f.mu held.
func (f *AssignmentFactory) nextMatch() (*pending, *Request, bool) {
	for pi, p := range f.pending {
		for ri, r := range f.requests {
			if !qualifies(r.qualifier, p.task.series) {
				continue
			}
			if _, declined := p.declined[r.worker.ID()]; declined {
				continue
			}
			f.pending = slices.Delete(f.pending, pi, pi+1)
			f.requests = slices.Delete(f.requests, ri, ri+1)
			return p, r, true
		}
	}
	return nil, nil, false
}

// negotiate offers p to r's worker and settles the outcome. A decline
// returns both to their sets and lets other pairs be matched.
func (f *AssignmentFactory) negotiate(p *pending, r *Request) {
	a := &Assignment{task: p.task, worker: r.worker}
	err := f.offer(a)

	f.mu.Lock()
	delete(f.offering, r)
	cancelled := r.cancelled
	if err != nil || cancelled {
		if !cancelled {
			if p.declined == nil {
				p.declined = make(map[int]struct{})
			}
			p.declined[r.worker.ID()] = struct{}{}
			f.restoreRequest(r)
		}
		f.requeue(p)
		f.schedule()
		f.mu.Unlock()
		if err != nil {
			f.logger.WithWorker(r.worker.ID()).WithTask(p.task.id).
				Debug("assignment declined", "error", err.Error())
		}
		return
	}
	f.mu.Unlock()

	if f.onAccepted != nil && !f.onAccepted(p.task, r, time.Since(p.submitted)) {
		f.mu.Lock()
		f.requeue(p)
		f.schedule()
		f.mu.Unlock()
		return
	}
	p.acceptance.resolve(r.worker, nil)
}

// offer asks the worker to accept a, treating an error, a panic or a slow
// answer as a decline.
func (f *AssignmentFactory) offer(a *Assignment) error {
	answer := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				answer <- fmt.Errorf("%w: accept panicked: %v", errors.ErrDeclined, rec)
			}
		}()
		answer <- a.worker.Accept(a)
	}()

	var timeout <-chan time.Time
	if f.acceptTimeout > 0 {
		timer := time.NewTimer(f.acceptTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case err := <-answer:
		if err != nil {
			a.settle(OutcomeDeclined)
			return err
		}
		if !a.settle(OutcomeAccepted) {
			return errors.ErrDeclined
		}
		return nil
	case <-timeout:
		a.settle(OutcomeDeclined)
		return errors.NewTimeoutError("waiting for worker to accept task "+a.task.id, f.acceptTimeout).
			WithCause(errors.ErrDeclined)
	}
}
