package tasks

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"
)

// fakeWorker is a Worker whose tasks finish only when the test says so,
// unless auto is set, in which case each task's call runs on a goroutine.
type fakeWorker struct {
	mu           sync.Mutex
	id           int
	class        []string
	instance     []string
	auto         bool
	declineErr   error
	acceptPanic  bool
	acceptDelay  time.Duration
	invariantErr error

	runs     []*Task
	inflight []*Task
	ready    map[*Task]chan struct{}
	accepted int
	stopping bool
	crashed  bool
	stopped  chan struct{}
	stopOnce sync.Once
	resign   func()
	started  chan *Task
}

func newFakeWorker() *fakeWorker {
	return &fakeWorker{
		ready:   make(map[*Task]chan struct{}),
		stopped: make(chan struct{}),
		started: make(chan *Task, 256),
	}
}

func newAutoWorker() *fakeWorker {
	w := newFakeWorker()
	w.auto = true
	return w
}

func (w *fakeWorker) ID() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.id
}

func (w *fakeWorker) SetID(id int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.id = id
}

func (w *fakeWorker) Accept(a *Assignment) error {
	if w.acceptPanic {
		panic("accept exploded")
	}
	if w.acceptDelay > 0 {
		time.Sleep(w.acceptDelay)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.declineErr != nil {
		return w.declineErr
	}
	w.accepted++
	return nil
}

func (w *fakeWorker) Run(t *Task) <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()

	ready := make(chan struct{})
	w.runs = append(w.runs, t)
	w.inflight = append(w.inflight, t)
	w.ready[t] = ready
	select {
	case w.started <- t:
	default:
	}
	if w.auto {
		go func() {
			v, err := t.Execute(context.Background())
			w.finish(t, v, err)
		}()
	}
	return ready
}

// finish resolves t and renews the slot it came from.
func (w *fakeWorker) finish(t *Task, v any, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.crashed || !slices.Contains(w.inflight, t) {
		return
	}
	w.inflight = slices.DeleteFunc(w.inflight, func(x *Task) bool { return x == t })
	if err != nil {
		_ = t.Fail(err)
	} else {
		_ = t.Complete(v)
	}
	close(w.ready[t])
	delete(w.ready, t)
	if w.stopping && len(w.inflight) == 0 {
		w.stopOnce.Do(func() { close(w.stopped) })
	}
}

func (w *fakeWorker) Stop() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopping = true
	if len(w.inflight) == 0 {
		w.stopOnce.Do(func() { close(w.stopped) })
	}
	return w.stopped
}

func (w *fakeWorker) Crash() []*Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.crashed = true
	abandoned := w.inflight
	w.inflight = nil
	w.stopOnce.Do(func() { close(w.stopped) })
	if abandoned == nil {
		abandoned = []*Task{}
	}
	return abandoned
}

func (w *fakeWorker) runCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.runs)
}

func (w *fakeWorker) inflightCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.inflight)
}

// qualifiedWorker declares class and instance qualifications.
type qualifiedWorker struct {
	*fakeWorker
}

func (w qualifiedWorker) ClassQualifications() []string    { return w.class }
func (w qualifiedWorker) InstanceQualifications() []string { return w.instance }

func newQualifiedWorker(auto bool, class []string, instance ...string) qualifiedWorker {
	w := newFakeWorker()
	w.auto = auto
	w.class = class
	w.instance = instance
	return qualifiedWorker{w}
}

// validatingWorker rejects its own invariants.
type validatingWorker struct {
	*fakeWorker
}

func (w validatingWorker) ValidateInvariants() error { return w.invariantErr }

// resigningWorker can ask to be let go.
type resigningWorker struct {
	*fakeWorker
}

func (w resigningWorker) SetResignator(resign func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resign = resign
}

func (w resigningWorker) quit() {
	w.mu.Lock()
	resign := w.resign
	w.mu.Unlock()
	resign()
}

// nextStarted returns the next task handed to w.
func nextStarted(t *testing.T, w *fakeWorker) *Task {
	t.Helper()
	select {
	case task := <-w.started:
		return task
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the worker to receive a task")
		return nil
	}
}

// waitFor polls cond until it holds or two seconds pass.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
