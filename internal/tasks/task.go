package tasks

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/tasker/internal/errors"
)

// Call is the function a task runs. args and kwargs are the task's
// normalized positional and named arguments.
type Call func(ctx context.Context, args []any, kwargs map[string]any) (any, error)

// TaskOption configures optional task attributes.
type TaskOption func(*Task)

// WithTaskTimeout sets a deadline for the task's call, measured from the
// moment a worker starts it. Zero means no deadline.
func WithTaskTimeout(d time.Duration) TaskOption {
	return func(t *Task) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// Task is an immutable unit of work: a call, its arguments, a priority and
// a series. Lower priority values are more urgent. Only the task's Result
// changes after construction.
type Task struct {
	id       string
	call     Call
	args     []any
	kwargs   map[string]any
	priority float64
	series   string
	serial   float64
	timeout  time.Duration
	created  time.Time
	result   *Result
}

// NewTask builds a task. args must be nil, a slice or an array; kwargs must
// be nil or a map keyed by strings. The empty series is the default series.
//
// Tasks built directly have serial 0. Use a TaskFactory to stamp serials.
func NewTask(call Call, args any, kwargs any, priority float64, series string, opts ...TaskOption) (*Task, error) {
	if call == nil {
		return nil, errors.NewTaskError("cannot build task", errors.ErrNilCall).WithField("call")
	}
	normArgs, err := normalizeArgs(args)
	if err != nil {
		return nil, err
	}
	normKwargs, err := normalizeKwargs(kwargs)
	if err != nil {
		return nil, err
	}

	t := &Task{
		id:       uuid.New().String()[:8],
		call:     call,
		args:     normArgs,
		kwargs:   normKwargs,
		priority: priority,
		series:   series,
		created:  time.Now(),
		result:   newResult(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

func normalizeArgs(args any) ([]any, error) {
	switch a := args.(type) {
	case nil:
		return []any{}, nil
	case []any:
		return slices.Clone(a), nil
	}

	v := reflect.ValueOf(args)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, errors.NewTaskError(
			fmt.Sprintf("args must be a slice or array, got %T", args),
			errors.ErrArgsNotSequence,
		).WithField("args")
	}
	out := make([]any, v.Len())
	for i := range out {
		out[i] = v.Index(i).Interface()
	}
	return out, nil
}

func normalizeKwargs(kwargs any) (map[string]any, error) {
	switch kw := kwargs.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return maps.Clone(kw), nil
	}

	v := reflect.ValueOf(kwargs)
	if v.Kind() != reflect.Map || v.Type().Key().Kind() != reflect.String {
		return nil, errors.NewTaskError(
			fmt.Sprintf("kwargs must be a string-keyed map, got %T", kwargs),
			errors.ErrKwargsNotMapping,
		).WithField("kwargs")
	}
	out := make(map[string]any, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, nil
}

// ID returns the task's short unique identifier.
func (t *Task) ID() string { return t.id }

// Priority returns the task's priority. Lower is more urgent.
func (t *Task) Priority() float64 { return t.priority }

// Series returns the task's series. The empty string is the default series.
func (t *Task) Series() string { return t.series }

// Serial returns the tie-break number stamped by a TaskFactory.
func (t *Task) Serial() float64 { return t.serial }

// Timeout returns the task's execution deadline, or zero if it has none.
func (t *Task) Timeout() time.Duration { return t.timeout }

// Created returns when the task was built.
func (t *Task) Created() time.Time { return t.created }

// Args returns a copy of the task's positional arguments.
func (t *Task) Args() []any { return slices.Clone(t.args) }

// Kwargs returns a copy of the task's named arguments.
func (t *Task) Kwargs() map[string]any { return maps.Clone(t.kwargs) }

// Result returns the task's single-assignment outcome handle.
func (t *Task) Result() *Result { return t.result }

// Execute invokes the task's call. It does not resolve the Result; the
// worker running the task decides how the outcome is reported.
func (t *Task) Execute(ctx context.Context) (any, error) {
	return t.call(ctx, t.Args(), t.Kwargs())
}

// Complete resolves the task's result with a value.
// It returns errors.ErrAlreadyResolved if the result was already set.
func (t *Task) Complete(value any) error {
	return t.result.resolve(value, nil)
}

// Fail resolves the task's result with an error.
// It returns errors.ErrAlreadyResolved if the result was already set.
func (t *Task) Fail(err error) error {
	if err == nil {
		err = errors.NewTaskError("failed without an error", nil).WithTaskID(t.id)
	}
	return t.result.resolve(nil, err)
}

// Compare orders tasks by priority, then serial. A nil other stands for
// "nothing pending": every task sorts before it.
func (t *Task) Compare(other *Task) int {
	if other == nil {
		return -1
	}
	if c := cmp.Compare(t.priority, other.priority); c != 0 {
		return c
	}
	return cmp.Compare(t.serial, other.serial)
}

// Less reports whether t should be dispatched before other.
func (t *Task) Less(other *Task) bool {
	return t.Compare(other) < 0
}

// Copy returns a functional copy of t with a fresh ID and an unresolved
// Result. Priority, series, serial and timeout are preserved.
func (t *Task) Copy() *Task {
	return &Task{
		id:       uuid.New().String()[:8],
		call:     t.call,
		args:     slices.Clone(t.args),
		kwargs:   maps.Clone(t.kwargs),
		priority: t.priority,
		series:   t.series,
		serial:   t.serial,
		timeout:  t.timeout,
		created:  time.Now(),
		result:   newResult(),
	}
}

// String returns a short description for logs.
func (t *Task) String() string {
	series := t.series
	if series == "" {
		series = "default"
	}
	return fmt.Sprintf("Task %s(priority=%g, series=%s, serial=%g)", t.id, t.priority, series, t.serial)
}
