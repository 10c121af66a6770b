// Package tasks implements tasker's scheduling core: tasks, the factory
// that stamps their serial numbers, the assignment negotiation between
// pending tasks and workers, and the Handler that hires and terminates
// workers.
//
// # Main Types
//
//   - [Task]: an immutable call with arguments, priority and series, plus a
//     single-assignment [Result]
//   - [TaskFactory]: builds tasks and issues per-series serials used to
//     break priority ties
//   - [AssignmentFactory]: offers pending tasks to qualified worker requests
//     in (priority, serial) order
//   - [Handler]: the worker registry and the entry point for submission,
//     termination and shutdown
//   - [Worker]: the contract executors implement
//
// # Ordering
//
// Among tasks a worker is eligible for, the one with the smallest
// (priority, serial) is offered first. Tasks from different series with
// equal priority and serial are offered in submission order.
//
// # Qualifications
//
// A worker that declares no qualifications runs anything. Otherwise it runs
// tasks of the default series ("") and of every declared qualification.
// Qualifications containing glob metacharacters, such as "render.*", match
// series by pattern.
//
// # Usage
//
//	h := tasks.NewHandler(tasks.WithLogger(logger))
//	id, err := h.Hire(worker)
//
//	t, err := h.NewTask(call, []any{1, 2}, nil, 0, "")
//	acc, err := h.Submit(t)
//	value, err := t.Result().Wait(ctx)
//
//	abandoned, err := h.Terminate(ctx, id, tasks.WithTimeout(time.Second))
//	_, err = h.Shutdown(ctx)
//
// # Thread Safety
//
// All exported types are safe for concurrent use.
package tasks
