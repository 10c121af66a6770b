// Package workers provides task executors that can be hired by a
// tasks.Handler.
//
// [Local] runs each task's call on its own goroutine with a concurrency
// limit, an optional per-task deadline and an optional fixed cost that
// simulates slower machines. It declares the "local" class qualification
// and any instance qualifications given with [WithQualifications].
//
//	h := tasks.NewHandler()
//	fast := workers.NewLocal(workers.WithConcurrency(4))
//	slow := workers.NewLocal(workers.WithCost(200 * time.Millisecond))
//	h.Hire(fast)
//	h.Hire(slow)
package workers
