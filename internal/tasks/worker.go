package tasks

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/tasker/internal/errors"
)

// Worker is an executor the Handler can hire.
//
// Accept is called for every assignment offered to the worker; a non-nil
// error declines it. Accept must not start the task: an accepted task is
// handed over through Run.
//
// Run starts the task and returns immediately. The returned channel is
// closed when the worker is ready for another assignment. The worker
// resolves the task's Result when the call finishes. Run may be invoked with
// the Handler's lock held and must not call back into the Handler.
//
// Stop asks the worker to finish its in-flight tasks and take no more. The
// returned channel is closed once all of them have resolved.
//
// Crash abandons in-flight tasks immediately and returns them. Abandoned
// tasks must never be resolved afterwards.
type Worker interface {
	ID() int
	SetID(id int)
	Accept(a *Assignment) error
	Run(t *Task) <-chan struct{}
	Stop() <-chan struct{}
	Crash() []*Task
}

// ClassQualifier is implemented by worker types that run only certain
// series by nature.
type ClassQualifier interface {
	ClassQualifications() []string
}

// InstanceQualifier is implemented by workers configured per instance to
// run certain series.
type InstanceQualifier interface {
	InstanceQualifications() []string
}

// InvariantValidator lets a worker reject its own configuration at hire time.
type InvariantValidator interface {
	ValidateInvariants() error
}

// Resigner is implemented by workers that can quit on their own. The
// Handler installs a resignator that crashes the worker and resubmits its
// in-flight tasks elsewhere.
type Resigner interface {
	SetResignator(resign func())
}

// Qualifier decides whether an assignment slot may take tasks of a series.
// A nil Qualifier takes any task.
type Qualifier interface {
	Qualifies(series string) bool
	String() string
}

// SeriesQualifier matches exactly one series. SeriesQualifier("") is the
// default series.
type SeriesQualifier string

// Qualifies reports whether series equals q.
func (q SeriesQualifier) Qualifies(series string) bool { return string(q) == series }

func (q SeriesQualifier) String() string {
	if q == "" {
		return "default"
	}
	return string(q)
}

// globQualifier matches series names against a pattern such as "render.*".
type globQualifier struct {
	pattern string
	g       glob.Glob
}

func (q globQualifier) Qualifies(series string) bool { return q.g.Match(series) }
func (q globQualifier) String() string              { return q.pattern }

// ParseQualifier turns a declared qualification into a Qualifier. Names
// containing glob metacharacters are compiled as patterns with '.' as the
// segment separator; other names match one series exactly.
func ParseQualifier(name string) (Qualifier, error) {
	if name == "" {
		return nil, errors.NewInvariantError("empty qualification", nil)
	}
	if !strings.ContainsAny(name, "*?[{") {
		return SeriesQualifier(name), nil
	}
	g, err := glob.Compile(name, '.')
	if err != nil {
		return nil, errors.NewInvariantError("invalid qualification pattern", err).
			WithQualification(name)
	}
	return globQualifier{pattern: name, g: g}, nil
}

// qualifies reports whether q (nil meaning any) admits series.
func qualifies(q Qualifier, series string) bool {
	return q == nil || q.Qualifies(series)
}

func qualifierName(q Qualifier) string {
	if q == nil {
		return "*any*"
	}
	return q.String()
}

// isNilWorker reports whether w is nil or a typed nil.
func isNilWorker(w Worker) bool {
	if w == nil {
		return true
	}
	v := reflect.ValueOf(w)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

func typeName(w Worker) string {
	if w == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", w)
}

// qualifiersFor collects a worker's declared qualifications. A worker that
// declares none gets a single catch-all slot; otherwise it gets the default
// series plus one slot per declaration.
func qualifiersFor(w Worker) ([]Qualifier, []string, error) {
	var declared []string
	if c, ok := w.(ClassQualifier); ok {
		declared = append(declared, c.ClassQualifications()...)
	}
	if i, ok := w.(InstanceQualifier); ok {
		declared = append(declared, i.InstanceQualifications()...)
	}
	if len(declared) == 0 {
		return []Qualifier{nil}, nil, nil
	}

	quals := []Qualifier{SeriesQualifier("")}
	seen := make(map[string]struct{}, len(declared))
	for _, name := range declared {
		if _, dup := seen[name]; dup {
			return nil, nil, errors.NewInvariantError("duplicate qualification", nil).
				WithTypeName(typeName(w)).
				WithQualification(name)
		}
		seen[name] = struct{}{}

		q, err := ParseQualifier(name)
		if err != nil {
			var invErr *errors.InvariantError
			if errors.As(err, &invErr) {
				return nil, nil, invErr.WithTypeName(typeName(w)).WithQualification(name)
			}
			return nil, nil, err
		}
		quals = append(quals, q)
	}
	return quals, declared, nil
}
