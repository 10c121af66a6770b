// Package metrics exports task handler activity as Prometheus metrics.
//
// Collectors live on a private registry and are fed from the event bus, so
// the handler never imports this package.
package metrics

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Iron-Ham/tasker/internal/event"
)

// Metrics holds the Prometheus collectors for one task handler.
type Metrics struct {
	registry *prometheus.Registry
	bus      *event.Bus

	mu     sync.Mutex
	subIDs []string

	// Counters
	tasksSubmitted *prometheus.CounterVec
	tasksAssigned  *prometheus.CounterVec
	tasksFinished  *prometheus.CounterVec
	tasksAbandoned *prometheus.CounterVec

	// Gauges
	tasksPending prometheus.Gauge
	tasksRunning prometheus.Gauge
	workersHired prometheus.Gauge

	// Histograms
	taskWait prometheus.Histogram
}

// New creates the collectors and registers them on a private registry.
// Call Attach to start consuming events.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasksSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasks_submitted_total",
				Help: "Total number of tasks submitted to the handler",
			},
			[]string{"series"},
		),
		tasksAssigned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasks_assigned_total",
				Help: "Total number of tasks accepted, by worker",
			},
			[]string{"worker"},
		),
		tasksFinished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasks_finished_total",
				Help: "Total number of tasks whose result was resolved",
			},
			[]string{"series", "status"},
		),
		tasksAbandoned: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tasks_abandoned_total",
				Help: "Total number of in-flight tasks dropped by a terminated worker",
			},
			[]string{"reassigned"},
		),
		tasksPending: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tasks_pending",
				Help: "Current number of tasks waiting for a worker",
			},
		),
		tasksRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tasks_running",
				Help: "Current number of accepted tasks not yet resolved",
			},
		),
		workersHired: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "workers_hired",
				Help: "Current number of hired workers",
			},
		),
		taskWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "task_wait_seconds",
				Help:    "Time a task spent pending before a worker accepted it",
				Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 5, 30},
			},
		),
	}

	m.registry.MustRegister(
		m.tasksSubmitted,
		m.tasksAssigned,
		m.tasksFinished,
		m.tasksAbandoned,
		m.tasksPending,
		m.tasksRunning,
		m.workersHired,
		m.taskWait,
	)

	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the collectors in the Prometheus
// exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Attach subscribes the collectors to lifecycle events on bus.
// Attaching twice replaces the earlier subscriptions.
func (m *Metrics) Attach(bus *event.Bus) {
	m.Detach()

	ids := []string{
		bus.Subscribe(event.TypeTaskSubmitted, func(e event.Event) {
			if se, ok := e.(event.TaskSubmittedEvent); ok {
				m.tasksSubmitted.WithLabelValues(se.Series).Inc()
			}
		}),
		bus.Subscribe(event.TypeTaskAssigned, func(e event.Event) {
			if ae, ok := e.(event.TaskAssignedEvent); ok {
				m.tasksAssigned.WithLabelValues(strconv.Itoa(ae.WorkerID)).Inc()
				m.taskWait.Observe(ae.Waited.Seconds())
			}
		}),
		bus.Subscribe(event.TypeTaskFinished, func(e event.Event) {
			if fe, ok := e.(event.TaskFinishedEvent); ok {
				m.tasksFinished.WithLabelValues(fe.Series, status(fe.Success)).Inc()
			}
		}),
		bus.Subscribe(event.TypeTaskAbandoned, func(e event.Event) {
			if ae, ok := e.(event.TaskAbandonedEvent); ok {
				m.tasksAbandoned.WithLabelValues(strconv.FormatBool(ae.Reassigned)).Inc()
			}
		}),
		bus.Subscribe(event.TypeQueueDepthChanged, func(e event.Event) {
			if de, ok := e.(event.QueueDepthChangedEvent); ok {
				m.tasksPending.Set(float64(de.Pending))
				m.tasksRunning.Set(float64(de.Running))
				m.workersHired.Set(float64(de.Workers))
			}
		}),
	}

	m.mu.Lock()
	m.bus = bus
	m.subIDs = ids
	m.mu.Unlock()
}

// Detach removes the event subscriptions. Collected values are kept.
func (m *Metrics) Detach() {
	m.mu.Lock()
	bus, ids := m.bus, m.subIDs
	m.bus, m.subIDs = nil, nil
	m.mu.Unlock()

	for _, id := range ids {
		bus.Unsubscribe(id)
	}
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
