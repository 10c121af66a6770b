// Package logging provides structured logging for tasker.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// worker, series and task context. The task handler, the queue facade and the
// local workers all accept a [Logger] so that hires, declines, terminations
// and abandoned tasks can be traced after the fact.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer and level.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/tasker", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.WithWorker(3).WithSeries("render").Info("assignment accepted", "task_id", id)
//
// Output:
//
//	{"time":"...","level":"INFO","msg":"assignment accepted","worker_id":3,"series":"render","task_id":"1f2e3d4c"}
//
// # Live Level Changes
//
// [Logger.SetLevel] updates the level of a logger and all of its children,
// which is how the CLI applies a changed logging.level from a watched config
// file without restarting.
//
// # Testing
//
// Use [NopLogger] to discard all log output.
package logging
