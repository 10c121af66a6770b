package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Iron-Ham/tasker/internal/event"
)

func attached(t *testing.T) (*Metrics, *event.Bus) {
	t.Helper()
	bus := event.NewBus()
	m := New()
	m.Attach(bus)
	t.Cleanup(m.Detach)
	return m, bus
}

func TestMetrics_Counters(t *testing.T) {
	m, bus := attached(t)

	bus.Publish(event.NewTaskSubmittedEvent("t1", "video", 0))
	bus.Publish(event.NewTaskSubmittedEvent("t2", "video", 0))
	bus.Publish(event.NewTaskSubmittedEvent("t3", "", 1))
	bus.Publish(event.NewTaskAssignedEvent("t1", "video", 1, 10*time.Millisecond))
	bus.Publish(event.NewTaskAssignedEvent("t2", "video", 2, time.Millisecond))
	bus.Publish(event.NewTaskFinishedEvent("t1", "video", 1, true, ""))
	bus.Publish(event.NewTaskFinishedEvent("t2", "video", 2, false, "boom"))
	bus.Publish(event.NewTaskAbandonedEvent("t3", "", 2, true))

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"submitted video", testutil.ToFloat64(m.tasksSubmitted.WithLabelValues("video")), 2},
		{"submitted default", testutil.ToFloat64(m.tasksSubmitted.WithLabelValues("")), 1},
		{"assigned worker 1", testutil.ToFloat64(m.tasksAssigned.WithLabelValues("1")), 1},
		{"assigned worker 2", testutil.ToFloat64(m.tasksAssigned.WithLabelValues("2")), 1},
		{"finished success", testutil.ToFloat64(m.tasksFinished.WithLabelValues("video", "success")), 1},
		{"finished failure", testutil.ToFloat64(m.tasksFinished.WithLabelValues("video", "failure")), 1},
		{"abandoned reassigned", testutil.ToFloat64(m.tasksAbandoned.WithLabelValues("true")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if n := testutil.CollectAndCount(m.taskWait); n != 1 {
		t.Errorf("task_wait_seconds collected %d series, want 1", n)
	}
}

func TestMetrics_DepthGauges(t *testing.T) {
	m, bus := attached(t)

	bus.Publish(event.NewQueueDepthChangedEvent(4, 2, 3))
	bus.Publish(event.NewQueueDepthChangedEvent(3, 1, 3))

	if got := testutil.ToFloat64(m.tasksPending); got != 3 {
		t.Errorf("tasks_pending = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.tasksRunning); got != 1 {
		t.Errorf("tasks_running = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.workersHired); got != 3 {
		t.Errorf("workers_hired = %v, want 3", got)
	}
}

func TestMetrics_Detach(t *testing.T) {
	m, bus := attached(t)
	bus.Publish(event.NewTaskSubmittedEvent("t1", "s", 0))

	m.Detach()
	if bus.SubscriptionCount() != 0 {
		t.Errorf("SubscriptionCount() = %d after Detach, want 0", bus.SubscriptionCount())
	}

	bus.Publish(event.NewTaskSubmittedEvent("t2", "s", 0))
	if got := testutil.ToFloat64(m.tasksSubmitted.WithLabelValues("s")); got != 1 {
		t.Errorf("tasks_submitted_total = %v after Detach, want 1", got)
	}

	// Detaching twice is harmless.
	m.Detach()
}

func TestMetrics_AttachReplaces(t *testing.T) {
	m, bus := attached(t)
	m.Attach(bus)

	if bus.SubscriptionCount() != 5 {
		t.Errorf("SubscriptionCount() = %d, want 5", bus.SubscriptionCount())
	}
}

func TestMetrics_Handler(t *testing.T) {
	m, bus := attached(t)
	bus.Publish(event.NewTaskSubmittedEvent("t1", "render", 0))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !strings.Contains(string(body), `tasks_submitted_total{series="render"} 1`) {
		t.Errorf("exposition missing submitted counter:\n%s", body)
	}
}
