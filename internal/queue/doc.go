// Package queue is the front door to a [tasks.Handler]: it turns plain
// function calls into prioritized tasks, queues them, and lets callers
// wait for results, cancel pending work and attach or detach workers.
//
// Scheduling is controlled per call:
//
//   - [WithNiceness] maps a UNIX-style niceness (-20..20) onto a priority
//     that scales with the task's serial, so a series run at niceness N+10
//     is dequeued at about half the rate of one at niceness N.
//   - [WithPriority] sets the priority directly; lower runs first.
//   - [WithSeries] names the series a task belongs to. Tasks within a
//     series run in submission order unless their priorities differ.
//   - [WithDoNext] and [WithDoLast] jump ahead of, or fall behind, any
//     ordinary priority.
//
// Usage:
//
//	q := queue.New(queue.WithLogger(logger))
//	q.AttachWorker(workers.NewLocal(workers.WithConcurrency(4)))
//	v, err := q.Call(ctx, resize, []any{"photo.jpg"}, nil, queue.WithSeries("images"))
//	...
//	unfinished, err := q.Shutdown(ctx)
package queue
