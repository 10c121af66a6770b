package workers

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Iron-Ham/tasker/internal/errors"
	"github.com/Iron-Ham/tasker/internal/logging"
	"github.com/Iron-Ham/tasker/internal/tasks"
)

// ClassQualification is the qualification every Local worker declares.
const ClassQualification = "local"

// Option configures a Local worker.
type Option func(*Local)

// WithConcurrency sets how many tasks may run at once. Values below one
// make the worker fail its invariant check at hire time.
func WithConcurrency(n int) Option {
	return func(l *Local) { l.concurrency = n }
}

// WithQualifications adds instance qualifications: series names or glob
// patterns this worker will run besides the default series.
func WithQualifications(names ...string) Option {
	return func(l *Local) { l.qualifications = append(l.qualifications, names...) }
}

// WithCost adds a fixed delay before every call, simulating a slower
// machine. The delay honours the task's timeout and crashes.
func WithCost(d time.Duration) Option {
	return func(l *Local) { l.cost = d }
}

// WithLogger sets the worker's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(l *Local) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// run is one task handed to the worker.
type run struct {
	task     *tasks.Task
	ready    chan struct{}
	released bool
	started  bool
	cancel   context.CancelFunc
}

func (r *run) release() {
	if !r.released {
		r.released = true
		close(r.ready)
	}
}

// Local runs tasks on goroutines in this process. Tasks beyond the
// concurrency limit wait in FIFO order. The ready channel Run returns is
// closed whenever the worker has spare capacity.
type Local struct {
	mu             sync.Mutex
	id             int
	concurrency    int
	qualifications []string
	cost           time.Duration
	logger         *logging.Logger

	runs     []*run // accepted runs in arrival order, running or queued
	queued   []*run // runs waiting for capacity
	blocked  []*run // started runs whose ready channel is still open
	running  int
	stopping bool
	crashed  bool
	resign   func()

	ctx       context.Context
	cancel    context.CancelFunc
	stopped   chan struct{}
	stopOnce  sync.Once
	completed atomic.Int64
}

// NewLocal creates a Local worker. The default concurrency is one.
func NewLocal(opts ...Option) *Local {
	ctx, cancel := context.WithCancel(context.Background())
	l := &Local{
		concurrency: 1,
		logger:      logging.NopLogger(),
		ctx:         ctx,
		cancel:      cancel,
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// ID returns the ID assigned at hire time, or zero.
func (l *Local) ID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.id
}

// SetID records the ID assigned at hire time.
func (l *Local) SetID(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.id = id
	l.logger = l.logger.WithWorker(id)
}

// ClassQualifications implements tasks.ClassQualifier.
func (l *Local) ClassQualifications() []string {
	return []string{ClassQualification}
}

// InstanceQualifications implements tasks.InstanceQualifier.
func (l *Local) InstanceQualifications() []string {
	return slices.Clone(l.qualifications)
}

// ValidateInvariants implements tasks.InvariantValidator.
func (l *Local) ValidateInvariants() error {
	if l.concurrency < 1 {
		return fmt.Errorf("%w: concurrency must be at least 1, got %d", errors.ErrInvalidInput, l.concurrency)
	}
	return nil
}

// SetResignator implements tasks.Resigner.
func (l *Local) SetResignator(resign func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resign = resign
}

// Resign asks the handler that hired this worker to let it go. Its
// in-flight tasks are abandoned and resubmitted to other workers.
func (l *Local) Resign() error {
	l.mu.Lock()
	resign := l.resign
	l.mu.Unlock()

	if resign == nil {
		return errors.NewWorkerError("cannot resign", errors.ErrWorkerNotFound)
	}
	resign()
	return nil
}

// Accept declines offers once the worker is stopping or crashed.
func (l *Local) Accept(a *tasks.Assignment) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopping || l.crashed {
		return errors.NewWorkerError("cannot accept", errors.ErrWorkerStopped).
			WithWorkerID(l.id).
			WithTaskID(a.Task().ID())
	}
	return nil
}

// Run starts t, or queues it if the worker is at capacity.
func (l *Local) Run(t *tasks.Task) <-chan struct{} {
	r := &run{task: t, ready: make(chan struct{})}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopping || l.crashed {
		r.release()
		err := errors.NewWorkerError("cannot run", errors.ErrWorkerStopped).
			WithWorkerID(l.id).
			WithTaskID(t.ID())
		if ferr := t.Fail(err); ferr != nil {
			l.logger.WithTask(t.ID()).Error("task resolved twice", "error", ferr.Error())
		}
		return r.ready
	}

	l.runs = append(l.runs, r)
	if l.running < l.concurrency {
		l.start(r)
	} else {
		l.queued = append(l.queued, r)
	}
	return r.ready
}

// start launches r. Must be called with l.mu held.
func (l *Local) start(r *run) {
	l.running++
	r.started = true

	ctx, cancel := l.ctx, context.CancelFunc(func() {})
	if timeout := r.task.Timeout(); timeout > 0 {
		ctx, cancel = context.WithTimeout(l.ctx, timeout)
	}
	r.cancel = cancel

	if l.running < l.concurrency {
		r.release()
	} else {
		l.blocked = append(l.blocked, r)
	}
	go l.execute(ctx, r)
}

func (l *Local) execute(ctx context.Context, r *run) {
	defer r.cancel()

	if l.cost > 0 {
		timer := time.NewTimer(l.cost)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	value, err := l.call(ctx, r.task)
	l.finish(r, value, err)
}

// call runs the task's function, giving up when ctx ends.
func (l *Local) call(ctx context.Context, t *tasks.Task) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, contextError(ctx, t)
	}

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("task %s panicked: %v", t.ID(), rec)}
			}
		}()
		value, err := t.Execute(ctx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-ctx.Done():
		return nil, contextError(ctx, t)
	}
}

func contextError(ctx context.Context, t *tasks.Task) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return errors.NewTimeoutError("running task "+t.ID(), t.Timeout()).
			WithCause(errors.ErrTaskTimeout).
			WithRetryable(false)
	}
	return ctx.Err()
}

// finish resolves r's task unless the worker crashed, then hands the freed
// capacity to queued runs and waiting slots.
func (l *Local) finish(r *run, value any, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.crashed {
		return
	}

	l.completed.Add(1)
	var rerr error
	if err != nil {
		rerr = r.task.Fail(err)
	} else {
		rerr = r.task.Complete(value)
	}
	if rerr != nil {
		l.logger.WithTask(r.task.ID()).Error("task resolved twice", "error", rerr.Error())
	}

	l.runs = slices.DeleteFunc(l.runs, func(x *run) bool { return x == r })
	l.running--

	if len(l.queued) > 0 {
		next := l.queued[0]
		l.queued = l.queued[1:]
		l.start(next)
	}
	// Freed capacity renews the oldest waiting slot, which may be r's own.
	for l.running < l.concurrency && len(l.blocked) > 0 {
		l.blocked[0].release()
		l.blocked = l.blocked[1:]
	}

	if l.stopping && len(l.runs) == 0 {
		l.stopOnce.Do(func() { close(l.stopped) })
	}
}

// Stop refuses new work and returns a channel closed once every accepted
// task has resolved.
func (l *Local) Stop() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopping = true
	if len(l.runs) == 0 {
		l.stopOnce.Do(func() { close(l.stopped) })
	}
	return l.stopped
}

// Crash abandons every accepted task, running or queued, and returns them
// in arrival order. Their results are never resolved.
func (l *Local) Crash() []*tasks.Task {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.crashed {
		return []*tasks.Task{}
	}
	l.crashed = true
	l.stopping = true
	l.cancel()

	abandoned := make([]*tasks.Task, 0, len(l.runs))
	for _, r := range l.runs {
		abandoned = append(abandoned, r.task)
		r.release()
	}
	l.runs = nil
	l.queued = nil
	l.blocked = nil
	l.running = 0
	l.stopOnce.Do(func() { close(l.stopped) })

	if len(abandoned) > 0 {
		l.logger.Warn("worker crashed with tasks in flight", "abandoned", len(abandoned))
	}
	return abandoned
}

// Completed returns how many tasks this worker has resolved.
func (l *Local) Completed() int {
	return int(l.completed.Load())
}

// Running returns how many tasks are executing and how many are queued.
func (l *Local) Running() (running, queued int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running, len(l.queued)
}
