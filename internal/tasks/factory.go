package tasks

import (
	"fmt"
	"math"
	"sync"

	"github.com/Iron-Ham/tasker/internal/errors"
)

// Niceness bounds accepted by TaskFactory.NewNice.
const (
	MinNiceness = -20
	MaxNiceness = 20
)

// TaskBuilder constructs a task. NewTask is the default builder; tests and
// embedders substitute their own to produce alternate task types.
type TaskBuilder func(call Call, args any, kwargs any, priority float64, series string, opts ...TaskOption) (*Task, error)

// FactoryOption configures a TaskFactory.
type FactoryOption func(*TaskFactory)

// WithTaskBuilder makes the factory construct every task through b.
func WithTaskBuilder(b TaskBuilder) FactoryOption {
	return func(f *TaskFactory) {
		if b != nil {
			f.build = b
		}
	}
}

// TaskFactory builds tasks and stamps each with a serial number.
// Serials increase strictly within a series. A series seen for the first
// time starts above the highest serial issued in any series, so all tasks
// stay comparable by (priority, serial).
// It is safe for concurrent use.
type TaskFactory struct {
	mu      sync.Mutex
	build   TaskBuilder
	serials map[string]float64 // series -> last issued serial
	high    float64            // highest serial issued in any series
}

// NewTaskFactory creates a TaskFactory.
func NewTaskFactory(opts ...FactoryOption) *TaskFactory {
	f := &TaskFactory{
		build:   NewTask,
		serials: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NextSerial returns the next serial number for series.
func (f *TaskFactory) NextSerial(series string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	last, ok := f.serials[series]
	if !ok {
		last = f.high
	}
	next := last + 1
	f.serials[series] = next
	if next > f.high {
		f.high = next
	}
	return next
}

// New builds a task and stamps it with NextSerial(series). A construction
// error does not consume a serial.
func (f *TaskFactory) New(call Call, args any, kwargs any, priority float64, series string, opts ...TaskOption) (*Task, error) {
	t, err := f.build(call, args, kwargs, priority, series, opts...)
	if err != nil {
		return nil, err
	}
	t.serial = f.NextSerial(series)
	return t, nil
}

// NewNice builds a task whose priority is derived from a niceness between
// -20 (most urgent) and 20 and the task's serial, so that nicer tasks fall
// progressively behind as their series advances:
//
//	priority = serial * (1 + ((niceness+20)/10)^2)
func (f *TaskFactory) NewNice(call Call, args any, kwargs any, niceness int, series string, opts ...TaskOption) (*Task, error) {
	if niceness < MinNiceness || niceness > MaxNiceness {
		return nil, fmt.Errorf("%w: niceness %d outside [%d, %d]",
			errors.ErrInvalidInput, niceness, MinNiceness, MaxNiceness)
	}
	t, err := f.build(call, args, kwargs, 0, series, opts...)
	if err != nil {
		return nil, err
	}
	t.serial = f.NextSerial(series)
	t.priority = NicePriority(niceness, t.serial)
	return t, nil
}

// NicePriority maps a niceness and serial to a priority.
func NicePriority(niceness int, serial float64) float64 {
	positivized := float64(niceness - MinNiceness)
	return serial * (1 + math.Pow(positivized/10, 2))
}

// Reset forgets every series.
func (f *TaskFactory) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.serials)
	f.high = 0
}
