// Package scaling turns queue depth into advice about how many workers a
// handler should have.
//
// The handler publishes a queue.depth_changed event whenever its pending
// count, running count or work force changes. A [Monitor] subscribes to
// those events and runs them through a [Policy], which recommends hiring
// more workers while tasks pile up and letting one go at a time when the
// queue is idle.
//
// The core types are:
//
//   - [Policy]: Scaling rules (thresholds, cooldown, worker limits)
//   - [Monitor]: Watches queue depth events on the event bus and applies the policy
//   - [Decision]: The output of policy evaluation: scale up, scale down, or hold
//
// # Usage
//
//	policy := scaling.NewPolicy(
//	    scaling.WithMinWorkers(1),
//	    scaling.WithMaxWorkers(8),
//	    scaling.WithScaleUpThreshold(2),
//	    scaling.WithCooldownPeriod(5 * time.Second),
//	)
//
//	monitor := scaling.NewMonitor(bus, policy)
//	monitor.OnDecision(func(d scaling.Decision) {
//	    // hire or terminate d.Delta workers
//	})
//	go monitor.Start(ctx)
//	defer monitor.Stop()
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package scaling
