package scaling

import (
	"context"
	"sync"

	"github.com/Iron-Ham/tasker/internal/event"
	"github.com/Iron-Ham/tasker/internal/logging"
)

// Monitor watches queue depth events on the event bus and applies a scaling
// policy to recommend hiring or terminating workers. The worker count comes
// from the events themselves, so the monitor tracks the handler's work force
// without being told about hires.
type Monitor struct {
	mu       sync.Mutex
	bus      *event.Bus
	policy   *Policy
	logger   *logging.Logger
	handlers []func(Decision)
	subID    string
	cancel   context.CancelFunc
	last     Decision
}

// NewMonitor creates a Monitor that evaluates the given policy whenever
// a QueueDepthChangedEvent is received on the bus.
func NewMonitor(bus *event.Bus, policy *Policy) *Monitor {
	return &Monitor{
		bus:    bus,
		policy: policy,
		logger: logging.NopLogger(),
		last:   Decision{Action: ActionNone},
	}
}

// SetLogger sets the logger used for scaling decisions. A nil logger is ignored.
func (m *Monitor) SetLogger(l *logging.Logger) {
	if l == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = l
}

// OnDecision registers a callback that is invoked when a non-none scaling
// decision is made. Multiple handlers may be registered.
func (m *Monitor) OnDecision(handler func(Decision)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, handler)
}

// Last returns the most recent non-none decision.
func (m *Monitor) Last() Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Start subscribes to queue depth events and begins evaluating the policy.
// It blocks until the context is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	subID := m.bus.Subscribe(event.TypeQueueDepthChanged, func(e event.Event) {
		de, ok := e.(event.QueueDepthChangedEvent)
		if !ok {
			return
		}
		m.evaluate(Status{Pending: de.Pending, Running: de.Running}, de.Workers)
	})

	m.mu.Lock()
	m.subID = subID
	m.cancel = cancel
	m.mu.Unlock()

	<-ctx.Done()
}

func (m *Monitor) evaluate(status Status, workers int) {
	decision := m.policy.Evaluate(status, workers)
	if decision.Action == ActionNone {
		return
	}

	m.mu.Lock()
	m.last = decision
	logger := m.logger
	handlers := make([]func(Decision), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()

	logger.Info("scaling decision",
		"action", decision.Action.String(),
		"delta", decision.Delta,
		"workers", workers,
		"reason", decision.Reason)
	m.bus.Publish(event.NewScalingDecisionEvent(
		string(decision.Action), decision.Delta, decision.Reason, workers,
	))
	for _, h := range handlers {
		h(decision)
	}
}

// Stop unsubscribes from events and cancels the monitor.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	subID := m.subID
	m.mu.Unlock()

	if subID != "" {
		m.bus.Unsubscribe(subID)
	}
	if cancel != nil {
		cancel()
	}
}
