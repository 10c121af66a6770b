// Package event provides a pub-sub event bus for decoupled inter-component
// communication in tasker.
//
// The task handler publishes worker and task lifecycle events without knowing
// who consumes them. Metrics, the scaling monitor and the TUI subscribe to
// those events without holding a reference to the handler's internals.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Handler]: Function type for event handlers (func(Event))
//
// # Event Categories
//
// Worker Lifecycle:
//   - [WorkerHiredEvent]: Emitted when a worker is registered
//   - [WorkerTerminatedEvent]: Emitted when a worker leaves the registry
//
// Task Lifecycle:
//   - [TaskSubmittedEvent]: Emitted when a task enters the pending queue
//   - [TaskAssignedEvent]: Emitted when a worker accepts a task
//   - [TaskFinishedEvent]: Emitted when a task's result is resolved
//   - [TaskAbandonedEvent]: Emitted when a terminated worker drops a task
//
// Queue and Scaling:
//   - [QueueDepthChangedEvent]: Emitted when pending or running counts change
//   - [ScalingDecisionEvent]: Emitted when the scaling monitor recommends a change
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Handlers are called
// synchronously on the publishing goroutine and protected against panics.
// A panicking handler is logged and does not prevent other handlers from
// being called.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeTaskFinished, func(e event.Event) {
//	    finished := e.(event.TaskFinishedEvent)
//	    fmt.Printf("task %s finished on worker %d\n", finished.TaskID, finished.WorkerID)
//	})
//
//	id := bus.SubscribeAll(func(e event.Event) {
//	    fmt.Printf("event: %s at %v\n", e.EventType(), e.Timestamp())
//	})
//	defer bus.Unsubscribe(id)
//
// # Event Type Naming Convention
//
// Event types follow the pattern "category.action":
//   - worker.hired, worker.terminated
//   - task.submitted, task.assigned, task.finished, task.abandoned
//   - queue.depth_changed
//   - scaling.decision
package event
