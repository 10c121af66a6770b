// Package errors provides centralized error definitions and error handling utilities
// for the tasker codebase. It defines sentinel errors, structured error types for
// the task handler's failure taxonomy, and error classification helpers.
//
// # Error Types
//
// The taxonomy follows the points at which the task handler can fail:
//   - TaskError: a task was constructed with malformed arguments
//   - ImplementationError: a hired object does not satisfy the worker contract
//   - InvariantError: a worker declared malformed qualifications
//   - WorkerError: an operation referenced a worker that cannot serve it
//   - TimeoutError: a bounded wait elapsed
//
// Execution failures are not represented here: they travel on the task's own
// result handle as whatever error the task's call returned.
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewTaskError("args must be a slice or array", errors.ErrArgsNotSequence).
//	    WithField("args")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrHandlerShutdown) { ... }
//
//	var invErr *errors.InvariantError
//	if errors.As(err, &invErr) { ... }
//
// # Error Classification
//
// Errors can be classified by severity and behavior:
//   - Retryable: transient errors that may succeed on retry
//   - UserFacing: errors safe to display to users (vs internal errors)
//   - Severity: Debug, Info, Warning, Error, Critical
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Task construction and resolution sentinel errors
var (
	// ErrArgsNotSequence indicates that task args were not a slice or array.
	ErrArgsNotSequence = New("args is not a sequence")
	// ErrKwargsNotMapping indicates that task kwargs were not a string-keyed map.
	ErrKwargsNotMapping = New("kwargs is not a mapping")
	// ErrNilCall indicates that a task was built without a callable.
	ErrNilCall = New("task call is nil")
	// ErrAlreadyResolved indicates a second attempt to resolve a task result.
	ErrAlreadyResolved = New("task result already resolved")
	// ErrTaskTimeout indicates that a task's call exceeded its execution deadline.
	ErrTaskTimeout = New("task timed out")
)

// Handler and worker sentinel errors
var (
	// ErrHandlerShutdown indicates the handler is shutting down or has shut down.
	ErrHandlerShutdown = New("task handler is shut down")
	// ErrWorkerNotFound indicates that no hired worker has the given ID.
	ErrWorkerNotFound = New("worker not found")
	// ErrWorkerAlreadyHired indicates that a worker was hired twice.
	ErrWorkerAlreadyHired = New("worker already hired")
	// ErrWorkerStopped indicates a worker that was stopped or crashed was asked to run a task.
	ErrWorkerStopped = New("worker stopped")
	// ErrNotImplemented indicates an object that does not implement the worker contract.
	ErrNotImplemented = New("worker contract not implemented")
	// ErrInvalidQualification indicates a malformed qualification declaration.
	ErrInvalidQualification = New("invalid qualification")
	// ErrWithdrawn indicates a pending task was withdrawn before any worker accepted it.
	ErrWithdrawn = New("task withdrawn before assignment")
	// ErrDeclined indicates a worker declined an assignment.
	ErrDeclined = New("assignment declined")
)

// General sentinel errors
var (
	// ErrTimeout indicates that an operation timed out.
	ErrTimeout = New("operation timed out")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// TaskerError is the base interface for all tasker errors.
// It extends the standard error interface with additional methods for
// error handling and classification.
type TaskerError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity

	// IsRetryable returns true if the error is transient and the operation
	// may succeed on retry.
	IsRetryable() bool

	// IsUserFacing returns true if the error message is safe to display
	// to end users.
	IsUserFacing() bool
}

// -----------------------------------------------------------------------------
// Base Error Implementation
// -----------------------------------------------------------------------------

// baseError provides common functionality for all error types.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

// IsRetryable returns whether the error is retryable.
func (e *baseError) IsRetryable() bool {
	return e.retryable
}

// IsUserFacing returns whether the error is safe to show users.
func (e *baseError) IsUserFacing() bool {
	return e.userFacing
}

// formatWithContext renders "<kind> [k=v, ...]: message: cause".
func (e *baseError) formatWithContext(kind string, parts []string) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// TaskError represents a malformed task construction. It is always reported
// synchronously to whoever tried to build the task.
//
// Example:
//
//	err := errors.NewTaskError("kwargs must be a map", errors.ErrKwargsNotMapping).WithField("kwargs")
//	fmt.Println(err) // "task error [field=kwargs]: kwargs must be a map: kwargs is not a mapping"
type TaskError struct {
	baseError
	TaskID string
	Field  string
}

// NewTaskError creates a new TaskError.
func NewTaskError(message string, cause error) *TaskError {
	return &TaskError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithTaskID adds a task ID to the error context.
func (e *TaskError) WithTaskID(id string) *TaskError {
	e.TaskID = id
	return e
}

// WithField names the offending task field.
func (e *TaskError) WithField(field string) *TaskError {
	e.Field = field
	return e
}

// Error returns the formatted error message.
func (e *TaskError) Error() string {
	var parts []string
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	return e.formatWithContext("task error", parts)
}

// Is checks if this error matches the target.
func (e *TaskError) Is(target error) bool {
	if _, ok := target.(*TaskError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ImplementationError reports an object handed to Hire that does not
// satisfy the worker contract. The object is never registered.
//
// Example:
//
//	err := errors.NewImplementationError("<nil>")
//	fmt.Println(err) // "implementation error [type=<nil>]: does not provide the worker interface"
type ImplementationError struct {
	baseError
	TypeName string
}

// NewImplementationError creates a new ImplementationError for the named type.
func NewImplementationError(typeName string) *ImplementationError {
	return &ImplementationError{
		baseError: baseError{
			message:    "does not provide the worker interface",
			cause:      ErrNotImplemented,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		TypeName: typeName,
	}
}

// Error returns the formatted error message.
func (e *ImplementationError) Error() string {
	var parts []string
	if e.TypeName != "" {
		parts = append(parts, fmt.Sprintf("type=%s", e.TypeName))
	}
	prefix := "implementation error"
	if len(parts) > 0 {
		prefix = fmt.Sprintf("implementation error [%s]", strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s: %s", prefix, e.message)
}

// Is checks if this error matches the target.
func (e *ImplementationError) Is(target error) bool {
	if _, ok := target.(*ImplementationError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// InvariantError reports a worker whose declared qualifications are
// malformed. Like ImplementationError it is raised before registration.
//
// Example:
//
//	err := errors.NewInvariantError("duplicate qualification", errors.ErrInvalidQualification).
//	    WithQualification("render")
type InvariantError struct {
	baseError
	TypeName      string
	Qualification string
}

// NewInvariantError creates a new InvariantError.
func NewInvariantError(message string, cause error) *InvariantError {
	return &InvariantError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithTypeName adds the worker's dynamic type to the error context.
func (e *InvariantError) WithTypeName(name string) *InvariantError {
	e.TypeName = name
	return e
}

// WithQualification adds the offending qualification to the error context.
func (e *InvariantError) WithQualification(q string) *InvariantError {
	e.Qualification = q
	return e
}

// Error returns the formatted error message.
func (e *InvariantError) Error() string {
	var parts []string
	if e.TypeName != "" {
		parts = append(parts, fmt.Sprintf("type=%s", e.TypeName))
	}
	if e.Qualification != "" {
		parts = append(parts, fmt.Sprintf("qualification=%q", e.Qualification))
	}
	return e.formatWithContext("invariant error", parts)
}

// Is checks if this error matches the target.
func (e *InvariantError) Is(target error) bool {
	if _, ok := target.(*InvariantError); ok {
		return true
	}
	if errors.Is(target, ErrInvalidQualification) {
		return true
	}
	return e.baseError.Is(target)
}

// WorkerError represents a failed operation on a specific worker.
//
// Example:
//
//	err := errors.NewWorkerError("cannot terminate", errors.ErrWorkerNotFound).WithWorkerID(3)
//	fmt.Println(err) // "worker error [worker=3]: cannot terminate: worker not found"
type WorkerError struct {
	baseError
	WorkerID int
	TaskID   string
}

// NewWorkerError creates a new WorkerError.
func NewWorkerError(message string, cause error) *WorkerError {
	return &WorkerError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithWorkerID adds a worker ID to the error context.
func (e *WorkerError) WithWorkerID(id int) *WorkerError {
	e.WorkerID = id
	return e
}

// WithTaskID adds a task ID to the error context.
func (e *WorkerError) WithTaskID(id string) *WorkerError {
	e.TaskID = id
	return e
}

// WithSeverity sets the error severity.
func (e *WorkerError) WithSeverity(s Severity) *WorkerError {
	e.severity = s
	return e
}

// Error returns the formatted error message.
func (e *WorkerError) Error() string {
	var parts []string
	if e.WorkerID != 0 {
		parts = append(parts, fmt.Sprintf("worker=%d", e.WorkerID))
	}
	if e.TaskID != "" {
		parts = append(parts, fmt.Sprintf("task=%s", e.TaskID))
	}
	return e.formatWithContext("worker error", parts)
}

// Is checks if this error matches the target.
func (e *WorkerError) Is(target error) bool {
	if _, ok := target.(*WorkerError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// TimeoutError represents an operation that timed out.
//
// Example:
//
//	err := errors.NewTimeoutError("running task abc123", 2*time.Second)
//	fmt.Println(err) // "timeout error: running task abc123 (timeout: 2s)"
type TimeoutError struct {
	baseError
	Operation string
	Duration  time.Duration
}

// NewTimeoutError creates a new TimeoutError.
func NewTimeoutError(operation string, duration time.Duration) *TimeoutError {
	return &TimeoutError{
		baseError: baseError{
			message:    operation,
			severity:   SeverityWarning,
			retryable:  true, // Timeouts are generally retryable
			userFacing: true,
		},
		Operation: operation,
		Duration:  duration,
	}
}

// WithCause adds a cause to the error.
func (e *TimeoutError) WithCause(cause error) *TimeoutError {
	e.cause = cause
	return e
}

// WithRetryable sets whether the error is retryable (default true for timeouts).
func (e *TimeoutError) WithRetryable(r bool) *TimeoutError {
	e.retryable = r
	return e
}

// Error returns the formatted error message.
func (e *TimeoutError) Error() string {
	base := fmt.Sprintf("timeout error: %s (timeout: %s)", e.Operation, e.Duration)
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", base, e.cause)
	}
	return base
}

// Is checks if this error matches the target.
func (e *TimeoutError) Is(target error) bool {
	if _, ok := target.(*TimeoutError); ok {
		return true
	}
	if errors.Is(target, ErrTimeout) {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Error Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var taskerErr TaskerError
	if As(err, &taskerErr) {
		return taskerErr.IsRetryable()
	}

	return Is(err, ErrTimeout)
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var taskerErr TaskerError
	if As(err, &taskerErr) {
		return taskerErr.IsUserFacing()
	}
	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement TaskerError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var taskerErr TaskerError
	if As(err, &taskerErr) {
		return taskerErr.Severity()
	}

	return SeverityError
}

// IsHireError returns true if the error was raised by Hire's contract or
// qualification checks.
func IsHireError(err error) bool {
	if err == nil {
		return false
	}
	var implErr *ImplementationError
	var invErr *InvariantError
	return As(err, &implErr) || As(err, &invErr)
}

// -----------------------------------------------------------------------------
// Convenience Constructors
// -----------------------------------------------------------------------------

// Wrap wraps an error with additional context message.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
