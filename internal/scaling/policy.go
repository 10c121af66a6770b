package scaling

import (
	"fmt"
	"sync"
	"time"
)

// Default policy values.
const (
	defaultMinWorkers         = 1
	defaultMaxWorkers         = 8
	defaultScaleUpThreshold   = 2
	defaultScaleDownThreshold = 1
	defaultCooldownPeriod     = 5 * time.Second
)

// Option configures a Policy.
type Option func(*Policy)

// WithMinWorkers sets the minimum number of workers to maintain.
func WithMinWorkers(n int) Option {
	return func(p *Policy) { p.minWorkers = n }
}

// WithMaxWorkers sets the maximum number of workers allowed.
func WithMaxWorkers(n int) Option {
	return func(p *Policy) { p.maxWorkers = n }
}

// WithScaleUpThreshold sets the pending task count above which to scale up.
// The recommended delta is the excess over the threshold, capped by the
// maximum work force.
func WithScaleUpThreshold(n int) Option {
	return func(p *Policy) { p.scaleUpThreshold = n }
}

// WithScaleDownThreshold sets the running task count at or below which an
// empty queue triggers a scale down.
func WithScaleDownThreshold(n int) Option {
	return func(p *Policy) { p.scaleDownThreshold = n }
}

// WithCooldownPeriod sets the minimum time between scaling decisions.
func WithCooldownPeriod(d time.Duration) Option {
	return func(p *Policy) { p.cooldownPeriod = d }
}

// Policy defines the rules for elastic scaling decisions.
// It is safe for concurrent use.
type Policy struct {
	mu                 sync.Mutex
	minWorkers         int
	maxWorkers         int
	scaleUpThreshold   int
	scaleDownThreshold int
	cooldownPeriod     time.Duration
	lastDecisionTime   time.Time
}

// NewPolicy creates a Policy with the given options.
// Unset options use defaults.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{
		minWorkers:         defaultMinWorkers,
		maxWorkers:         defaultMaxWorkers,
		scaleUpThreshold:   defaultScaleUpThreshold,
		scaleDownThreshold: defaultScaleDownThreshold,
		cooldownPeriod:     defaultCooldownPeriod,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Evaluate inspects the queue status and current worker count, returning
// a scaling decision. A work force below the minimum is topped up at once;
// other decisions respect the cooldown period.
func (p *Policy) Evaluate(status Status, currentWorkers int) Decision {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()

	if currentWorkers < p.minWorkers {
		p.lastDecisionTime = now
		return Decision{
			Action: ActionScaleUp,
			Delta:  p.minWorkers - currentWorkers,
			Reason: fmt.Sprintf("%d workers below minimum of %d", currentWorkers, p.minWorkers),
		}
	}

	if !p.lastDecisionTime.IsZero() && now.Sub(p.lastDecisionTime) < p.cooldownPeriod {
		return Decision{
			Action: ActionNone,
			Reason: "cooldown period active",
		}
	}

	// Every hired worker holds at least one slot, so tasks still pending
	// beyond the threshold mean the work force is saturated.
	if status.Pending > p.scaleUpThreshold && currentWorkers < p.maxWorkers {
		delta := min(status.Pending-p.scaleUpThreshold, p.maxWorkers-currentWorkers)
		p.lastDecisionTime = now
		return Decision{
			Action: ActionScaleUp,
			Delta:  delta,
			Reason: fmt.Sprintf("%d pending tasks with %d running on %d workers (threshold: %d)",
				status.Pending, status.Running, currentWorkers, p.scaleUpThreshold),
		}
	}

	// Scale down one worker at a time while the queue is idle.
	if status.Pending == 0 && status.Running <= p.scaleDownThreshold && currentWorkers > p.minWorkers {
		p.lastDecisionTime = now
		return Decision{
			Action: ActionScaleDown,
			Delta:  -1,
			Reason: fmt.Sprintf("no pending tasks with %d running (threshold: %d)", status.Running, p.scaleDownThreshold),
		}
	}

	return Decision{
		Action: ActionNone,
		Reason: "no scaling needed",
	}
}
