package scaling

// Action represents a scaling decision action.
type Action string

const (
	// ActionScaleUp indicates more workers should be hired.
	ActionScaleUp Action = "scale_up"

	// ActionScaleDown indicates workers should be terminated.
	ActionScaleDown Action = "scale_down"

	// ActionNone indicates no scaling change is needed.
	ActionNone Action = "none"
)

// String returns the string representation of the action.
func (a Action) String() string {
	return string(a)
}

// Status is the handler's queue depth at one moment.
type Status struct {
	// Pending is the number of tasks waiting for a worker.
	Pending int

	// Running is the number of accepted tasks that have not resolved.
	Running int
}

// Decision is the result of evaluating the scaling policy against the
// current queue state and worker count.
type Decision struct {
	// Action is the recommended scaling action.
	Action Action

	// Delta is the number of workers to hire (positive) or terminate (negative).
	// Zero when Action is ActionNone.
	Delta int

	// Reason is a human-readable explanation of the decision.
	Reason string
}
