package queue

import (
	"math"
	"time"

	"github.com/Iron-Ham/tasker/internal/event"
	"github.com/Iron-Ham/tasker/internal/logging"
	"github.com/Iron-Ham/tasker/internal/tasks"
)

// Priorities used by WithDoNext and WithDoLast. No finite priority sorts
// outside them; ties fall back to serial order.
var (
	doNextPriority = math.Inf(-1)
	doLastPriority = math.Inf(1)
)

// Option configures a Queue.
type Option func(*Queue)

// WithLogger sets the queue's logger. It is passed on to the handler.
func WithLogger(l *logging.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithEventBus makes the queue's handler publish lifecycle events on bus.
func WithEventBus(bus *event.Bus) Option {
	return func(q *Queue) { q.bus = bus }
}

// WithAcceptTimeout bounds how long a worker may take to accept an offer.
func WithAcceptTimeout(d time.Duration) Option {
	return func(q *Queue) { q.acceptTimeout = d }
}

// WithDetachTimeout sets the grace period DetachWorker and Shutdown give
// workers to finish in-flight tasks. Zero waits indefinitely.
func WithDetachTimeout(d time.Duration) Option {
	return func(q *Queue) { q.detachTimeout = d }
}

// CallOption configures a single submitted call.
type CallOption func(*callConfig)

type callConfig struct {
	priority    float64
	niceness    int
	useNiceness bool
	series      string
	timeout     time.Duration
}

// WithPriority sets the task's priority. Lower values run first.
func WithPriority(p float64) CallOption {
	return func(c *callConfig) {
		c.priority = p
		c.useNiceness = false
	}
}

// WithNiceness derives the task's priority from a niceness between
// tasks.MinNiceness and tasks.MaxNiceness.
func WithNiceness(n int) CallOption {
	return func(c *callConfig) {
		c.niceness = n
		c.useNiceness = true
	}
}

// WithSeries puts the task in the named series.
func WithSeries(series string) CallOption {
	return func(c *callConfig) { c.series = series }
}

// WithTimeout bounds how long the task's call may run once a worker starts it.
func WithTimeout(d time.Duration) CallOption {
	return func(c *callConfig) { c.timeout = d }
}

// WithDoNext runs the task ahead of every ordinary task.
func WithDoNext() CallOption {
	return WithPriority(doNextPriority)
}

// WithDoLast runs the task after every ordinary task.
func WithDoLast() CallOption {
	return WithPriority(doLastPriority)
}

func newCallConfig(opts []CallOption) callConfig {
	// Calls default to niceness zero, like an unadorned process.
	c := callConfig{useNiceness: true}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

func (c callConfig) taskOptions() []tasks.TaskOption {
	if c.timeout > 0 {
		return []tasks.TaskOption{tasks.WithTaskTimeout(c.timeout)}
	}
	return nil
}
