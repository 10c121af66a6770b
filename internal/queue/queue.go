package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/Iron-Ham/tasker/internal/errors"
	"github.com/Iron-Ham/tasker/internal/event"
	"github.com/Iron-Ham/tasker/internal/logging"
	"github.com/Iron-Ham/tasker/internal/tasks"
)

// Queue owns a tasks.Handler and offers a call-oriented API on top of it.
// All methods are safe for concurrent use.
type Queue struct {
	handler       *tasks.Handler
	logger        *logging.Logger
	bus           *event.Bus
	acceptTimeout time.Duration
	detachTimeout time.Duration
}

// New creates a running Queue with no workers.
func New(opts ...Option) *Queue {
	q := &Queue{
		logger:        logging.NopLogger(),
		acceptTimeout: tasks.DefaultAcceptTimeout,
	}
	for _, opt := range opts {
		opt(q)
	}

	handlerOpts := []tasks.Option{
		tasks.WithLogger(q.logger),
		tasks.WithWorkerAcceptTimeout(q.acceptTimeout),
	}
	if q.bus != nil {
		handlerOpts = append(handlerOpts, tasks.WithEventBus(q.bus))
	}
	q.handler = tasks.NewHandler(handlerOpts...)
	return q
}

// Handler returns the handler behind the queue.
func (q *Queue) Handler() *tasks.Handler { return q.handler }

// AttachWorker hires w and returns its ID.
func (q *Queue) AttachWorker(w tasks.Worker) (int, error) {
	return q.handler.Hire(w)
}

// DetachWorker terminates the worker with the given ID using the queue's
// detach timeout, unless opts say otherwise, and returns the tasks it left
// unfinished. Detaching an unknown worker returns an empty list.
func (q *Queue) DetachWorker(ctx context.Context, id int, opts ...tasks.TerminateOption) ([]*tasks.Task, error) {
	if q.detachTimeout > 0 {
		opts = append([]tasks.TerminateOption{tasks.WithTimeout(q.detachTimeout)}, opts...)
	}
	unfinished, err := q.handler.Terminate(ctx, id, opts...)
	if errors.Is(err, errors.ErrWorkerNotFound) {
		return []*tasks.Task{}, nil
	}
	return unfinished, err
}

// Submit queues a call to fn and returns its task without waiting. The
// task's Result resolves with the call's outcome.
func (q *Queue) Submit(fn tasks.Call, args any, kwargs any, opts ...CallOption) (*tasks.Task, error) {
	if !q.handler.IsRunning() {
		return nil, fmt.Errorf("cannot queue call: %w", errors.ErrHandlerShutdown)
	}

	cfg := newCallConfig(opts)
	factory := q.handler.Factory()

	var (
		t   *tasks.Task
		err error
	)
	if cfg.useNiceness {
		t, err = factory.NewNice(fn, args, kwargs, cfg.niceness, cfg.series, cfg.taskOptions()...)
	} else {
		t, err = factory.New(fn, args, kwargs, cfg.priority, cfg.series, cfg.taskOptions()...)
	}
	if err != nil {
		return nil, err
	}

	if _, err := q.handler.Submit(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Call queues a call to fn and waits for its result. If ctx ends while the
// task is still pending it is withdrawn; a task already running is left to
// finish and its result discarded.
func (q *Queue) Call(ctx context.Context, fn tasks.Call, args any, kwargs any, opts ...CallOption) (any, error) {
	t, err := q.Submit(fn, args, kwargs, opts...)
	if err != nil {
		return nil, err
	}

	value, err := t.Result().Wait(ctx)
	if ctx.Err() != nil && !t.Result().Resolved() {
		if n := len(q.handler.Withdraw(func(p *tasks.Task) bool { return p == t })); n > 0 {
			q.logger.WithTask(t.ID()).Debug("call abandoned while pending", "error", ctx.Err())
		}
	}
	return value, err
}

// Update runs fn on every current worker qualified for the series given
// in opts, and on later hires unless ephemeral is set.
func (q *Queue) Update(ctx context.Context, fn tasks.Call, args any, kwargs any, ephemeral bool, opts ...CallOption) ([]any, error) {
	cfg := newCallConfig(opts)
	t, err := q.handler.NewTask(fn, args, kwargs, cfg.priority, cfg.series, cfg.taskOptions()...)
	if err != nil {
		return nil, err
	}
	return q.handler.Update(ctx, t, ephemeral)
}

// CancelSeries withdraws every pending task in series and returns how many
// were withdrawn. Running tasks are unaffected.
func (q *Queue) CancelSeries(series string) int {
	return len(q.handler.Withdraw(func(t *tasks.Task) bool { return t.Series() == series }))
}

// CancelAll withdraws every pending task and returns how many were withdrawn.
func (q *Queue) CancelAll() int {
	return len(q.handler.Withdraw(nil))
}

// Shutdown stops the queue. Workers get the detach timeout to finish their
// tasks; tasks still pending or abandoned are returned.
func (q *Queue) Shutdown(ctx context.Context) ([]*tasks.Task, error) {
	if q.detachTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.detachTimeout)
		defer cancel()
	}
	return q.handler.Shutdown(ctx)
}

// Len returns the number of tasks pending or running.
func (q *Queue) Len() int {
	return q.handler.Pending() + q.handler.Running()
}

// Workers returns the number of attached workers.
func (q *Queue) Workers() int {
	return q.handler.Len()
}

// IsRunning reports whether the queue still accepts calls.
func (q *Queue) IsRunning() bool {
	return q.handler.IsRunning()
}
