package event

import "time"

// Event is the interface that all events must implement.
// It provides a common way to identify and timestamp events.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "worker.hired", "task.finished")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeWorkerHired       = "worker.hired"
	TypeWorkerTerminated  = "worker.terminated"
	TypeTaskSubmitted     = "task.submitted"
	TypeTaskAssigned      = "task.assigned"
	TypeTaskFinished      = "task.finished"
	TypeTaskAbandoned     = "task.abandoned"
	TypeQueueDepthChanged = "queue.depth_changed"
	TypeScalingDecision   = "scaling.decision"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

// newBaseEvent creates a baseEvent with the current time.
func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Worker Lifecycle Events
// -----------------------------------------------------------------------------

// WorkerHiredEvent is emitted when the handler registers a worker.
type WorkerHiredEvent struct {
	baseEvent
	WorkerID       int
	Qualifications []string // empty for a catch-all worker
}

// NewWorkerHiredEvent creates a WorkerHiredEvent.
func NewWorkerHiredEvent(workerID int, qualifications []string) WorkerHiredEvent {
	return WorkerHiredEvent{
		baseEvent:      newBaseEvent(TypeWorkerHired),
		WorkerID:       workerID,
		Qualifications: qualifications,
	}
}

// WorkerTerminatedEvent is emitted once a worker has left the registry.
type WorkerTerminatedEvent struct {
	baseEvent
	WorkerID  int
	Crashed   bool // in-flight work was abandoned rather than awaited
	Abandoned int  // number of in-flight tasks abandoned
}

// NewWorkerTerminatedEvent creates a WorkerTerminatedEvent.
func NewWorkerTerminatedEvent(workerID int, crashed bool, abandoned int) WorkerTerminatedEvent {
	return WorkerTerminatedEvent{
		baseEvent: newBaseEvent(TypeWorkerTerminated),
		WorkerID:  workerID,
		Crashed:   crashed,
		Abandoned: abandoned,
	}
}

// -----------------------------------------------------------------------------
// Task Lifecycle Events
// -----------------------------------------------------------------------------

// TaskSubmittedEvent is emitted when a task enters the pending queue.
type TaskSubmittedEvent struct {
	baseEvent
	TaskID   string
	Series   string
	Priority float64
}

// NewTaskSubmittedEvent creates a TaskSubmittedEvent.
func NewTaskSubmittedEvent(taskID, series string, priority float64) TaskSubmittedEvent {
	return TaskSubmittedEvent{
		baseEvent: newBaseEvent(TypeTaskSubmitted),
		TaskID:    taskID,
		Series:    series,
		Priority:  priority,
	}
}

// TaskAssignedEvent is emitted when a worker accepts a task.
type TaskAssignedEvent struct {
	baseEvent
	TaskID   string
	Series   string
	WorkerID int
	Waited   time.Duration // time spent pending before acceptance
}

// NewTaskAssignedEvent creates a TaskAssignedEvent.
func NewTaskAssignedEvent(taskID, series string, workerID int, waited time.Duration) TaskAssignedEvent {
	return TaskAssignedEvent{
		baseEvent: newBaseEvent(TypeTaskAssigned),
		TaskID:    taskID,
		Series:    series,
		WorkerID:  workerID,
		Waited:    waited,
	}
}

// TaskFinishedEvent is emitted when a task's result is resolved.
type TaskFinishedEvent struct {
	baseEvent
	TaskID   string
	Series   string
	WorkerID int
	Success  bool
	Error    string // error message (if failed)
}

// NewTaskFinishedEvent creates a TaskFinishedEvent.
func NewTaskFinishedEvent(taskID, series string, workerID int, success bool, errMsg string) TaskFinishedEvent {
	return TaskFinishedEvent{
		baseEvent: newBaseEvent(TypeTaskFinished),
		TaskID:    taskID,
		Series:    series,
		WorkerID:  workerID,
		Success:   success,
		Error:     errMsg,
	}
}

// TaskAbandonedEvent is emitted for each in-flight task dropped by a
// crashed or timed-out worker.
type TaskAbandonedEvent struct {
	baseEvent
	TaskID     string
	Series     string
	WorkerID   int
	Reassigned bool
}

// NewTaskAbandonedEvent creates a TaskAbandonedEvent.
func NewTaskAbandonedEvent(taskID, series string, workerID int, reassigned bool) TaskAbandonedEvent {
	return TaskAbandonedEvent{
		baseEvent:  newBaseEvent(TypeTaskAbandoned),
		TaskID:     taskID,
		Series:     series,
		WorkerID:   workerID,
		Reassigned: reassigned,
	}
}

// -----------------------------------------------------------------------------
// Queue and Scaling Events
// -----------------------------------------------------------------------------

// QueueDepthChangedEvent is emitted when the number of pending or running
// tasks changes.
type QueueDepthChangedEvent struct {
	baseEvent
	Pending int // tasks waiting for a worker
	Running int // tasks accepted and not yet resolved
	Workers int // workers currently hired
}

// NewQueueDepthChangedEvent creates a QueueDepthChangedEvent.
func NewQueueDepthChangedEvent(pending, running, workers int) QueueDepthChangedEvent {
	return QueueDepthChangedEvent{
		baseEvent: newBaseEvent(TypeQueueDepthChanged),
		Pending:   pending,
		Running:   running,
		Workers:   workers,
	}
}

// ScalingDecisionEvent is emitted when the scaling monitor recommends a
// change in worker count.
type ScalingDecisionEvent struct {
	baseEvent
	Action         string // "scale_up" or "scale_down"
	Delta          int    // workers to add (positive) or remove (negative)
	Reason         string
	CurrentWorkers int
}

// NewScalingDecisionEvent creates a ScalingDecisionEvent.
func NewScalingDecisionEvent(action string, delta int, reason string, currentWorkers int) ScalingDecisionEvent {
	return ScalingDecisionEvent{
		baseEvent:      newBaseEvent(TypeScalingDecision),
		Action:         action,
		Delta:          delta,
		Reason:         reason,
		CurrentWorkers: currentWorkers,
	}
}
