package event

import (
	"bytes"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/Iron-Ham/tasker/internal/logging"
)

// recorder collects the handler calls made during a test.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) handler(tag string) Handler {
	return func(e Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.calls = append(r.calls, tag+":"+e.EventType())
	}
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.calls)
}

func TestBus_Delivery(t *testing.T) {
	tests := []struct {
		name      string
		subscribe func(b *Bus, r *recorder)
		publish   []Event
		want      []string
	}{
		{
			name: "matching type",
			subscribe: func(b *Bus, r *recorder) {
				b.Subscribe(TypeWorkerHired, r.handler("hired"))
			},
			publish: []Event{NewWorkerHiredEvent(1, nil)},
			want:    []string{"hired:worker.hired"},
		},
		{
			name: "other type ignored",
			subscribe: func(b *Bus, r *recorder) {
				b.Subscribe(TypeTaskFinished, r.handler("finished"))
			},
			publish: []Event{NewTaskSubmittedEvent("t-1", "", 0)},
			want:    nil,
		},
		{
			name: "registration order",
			subscribe: func(b *Bus, r *recorder) {
				b.Subscribe(TypeTaskAssigned, r.handler("first"))
				b.Subscribe(TypeTaskAssigned, r.handler("second"))
			},
			publish: []Event{NewTaskAssignedEvent("t-1", "", 2, 0)},
			want:    []string{"first:task.assigned", "second:task.assigned"},
		},
		{
			name: "specific before wildcard",
			subscribe: func(b *Bus, r *recorder) {
				b.SubscribeAll(r.handler("all"))
				b.Subscribe(TypeTaskAbandoned, r.handler("abandoned"))
			},
			publish: []Event{NewTaskAbandonedEvent("t-1", "s", 3, true)},
			want:    []string{"abandoned:task.abandoned", "all:task.abandoned"},
		},
		{
			name: "wildcard sees everything in order",
			subscribe: func(b *Bus, r *recorder) {
				b.SubscribeAll(r.handler("all"))
			},
			publish: []Event{
				NewTaskSubmittedEvent("t-1", "", 0),
				NewQueueDepthChangedEvent(1, 0, 1),
				NewScalingDecisionEvent("scale_up", 1, "pending", 1),
			},
			want: []string{"all:task.submitted", "all:queue.depth_changed", "all:scaling.decision"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewBus()
			rec := &recorder{}
			tt.subscribe(bus, rec)
			for _, e := range tt.publish {
				bus.Publish(e)
			}
			if got := rec.got(); !slices.Equal(got, tt.want) {
				t.Errorf("calls = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBus_PublishCarriesPayload(t *testing.T) {
	bus := NewBus()

	var got TaskFinishedEvent
	bus.Subscribe(TypeTaskFinished, func(e Event) {
		got = e.(TaskFinishedEvent)
	})
	bus.Publish(NewTaskFinishedEvent("t-7", "render", 4, false, "boom"))

	if got.TaskID != "t-7" || got.WorkerID != 4 || got.Success || got.Error != "boom" {
		t.Errorf("handler received %+v", got)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}
	first := bus.Subscribe(TypeWorkerTerminated, rec.handler("first"))
	bus.Subscribe(TypeWorkerTerminated, rec.handler("second"))

	if !bus.Unsubscribe(first) {
		t.Fatal("Unsubscribe should report an existing subscription")
	}
	if bus.Unsubscribe(first) {
		t.Error("Unsubscribe should report false the second time")
	}
	if bus.Unsubscribe("sub-unknown") {
		t.Error("Unsubscribe should report false for an unknown ID")
	}

	bus.Publish(NewWorkerTerminatedEvent(1, false, 0))
	if got := rec.got(); !slices.Equal(got, []string{"second:worker.terminated"}) {
		t.Errorf("calls = %v", got)
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
}

func TestBus_Clear(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(TypeTaskSubmitted, func(Event) {})
	bus.Subscribe(TypeTaskFinished, func(Event) {})
	bus.SubscribeAll(func(Event) {})

	if bus.SubscriptionCount() != 3 {
		t.Fatalf("SubscriptionCount() = %d, want 3", bus.SubscriptionCount())
	}
	bus.Clear()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() after Clear = %d, want 0", bus.SubscriptionCount())
	}
}

func TestBus_HandlerPanicRecovery(t *testing.T) {
	bus := NewBus()
	var buf bytes.Buffer
	bus.SetLogger(logging.NewLoggerWithWriter(&buf, logging.LevelError))
	bus.SetLogger(nil)

	rec := &recorder{}
	bus.Subscribe(TypeTaskAssigned, func(Event) { panic("handler panic") })
	bus.Subscribe(TypeTaskAssigned, rec.handler("after"))

	bus.Publish(NewTaskAssignedEvent("t-1", "", 1, 0))

	if got := rec.got(); len(got) != 1 {
		t.Errorf("handler after the panicking one got %v", got)
	}
	if !strings.Contains(buf.String(), "event handler panicked") {
		t.Errorf("panic should be logged, got %q", buf.String())
	}
}

func TestBus_Concurrency(t *testing.T) {
	bus := NewBus()
	rec := &recorder{}
	bus.Subscribe(TypeQueueDepthChanged, rec.handler("depth"))

	var wg sync.WaitGroup
	seen := sync.Map{}
	for range 50 {
		wg.Go(func() {
			bus.Publish(NewQueueDepthChangedEvent(0, 0, 0))
		})
		wg.Go(func() {
			id := bus.Subscribe(TypeTaskSubmitted, func(Event) {})
			if _, dup := seen.LoadOrStore(id, true); dup {
				t.Errorf("duplicate subscription ID %s", id)
			}
			bus.Unsubscribe(id)
		})
	}
	wg.Wait()

	if n := len(rec.got()); n != 50 {
		t.Errorf("depth handler called %d times, want 50", n)
	}
	if bus.SubscriptionCount() != 1 {
		t.Errorf("SubscriptionCount() = %d, want 1", bus.SubscriptionCount())
	}
}
