package dispatcher

import (
	"context"
	"errors"
	"fmt"
)

// Error types for the dispatcher
var (
	// ErrInvalidConfig is wrapped by every ConfigurationError
	ErrInvalidConfig = errors.New("invalid dispatcher configuration")

	// ErrPoolClosed is returned when trying to submit to a closed pool
	ErrPoolClosed = errors.New("pool is closed")

	// ErrTaskCancelled is returned when a task is cancelled before it could start
	ErrTaskCancelled = errors.New("task was cancelled")

	// ErrTaskPanicked marks a collaborator call that panicked
	ErrTaskPanicked = errors.New("task panicked")

	// ErrAggregationInvariant is wrapped by every AggregationError
	ErrAggregationInvariant = errors.New("aggregation invariant violated")

	// ErrIncomplete is returned when a result set is requested before every task terminated
	ErrIncomplete = errors.New("result set is incomplete")
)

// ConfigurationError reports an invalid setting detected before any task starts.
type ConfigurationError struct {
	Field  string
	Value  any
	Reason string
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}

// Unwrap returns ErrInvalidConfig
func (e *ConfigurationError) Unwrap() error {
	return ErrInvalidConfig
}

// TaskError represents an error that occurred during task processing.
// It is always contained inside an Outcome.
type TaskError struct {
	TaskID    int
	Statement string
	Err       error
}

// Error implements the error interface
func (e *TaskError) Error() string {
	return fmt.Sprintf("task %d failed: %v", e.TaskID, e.Err)
}

// Unwrap returns the underlying error
func (e *TaskError) Unwrap() error {
	return e.Err
}

// NewTaskError creates a new TaskError
func NewTaskError(task Task, err error) error {
	return &TaskError{
		TaskID:    task.ID,
		Statement: task.Statement,
		Err:       err,
	}
}

// IsTaskError checks if an error is a TaskError
func IsTaskError(err error) bool {
	var taskErr *TaskError
	return errors.As(err, &taskErr)
}

// GetTaskID returns the task ID from a TaskError if the error is a TaskError
func GetTaskID(err error) (int, bool) {
	var taskErr *TaskError
	if errors.As(err, &taskErr) {
		return taskErr.TaskID, true
	}
	return 0, false
}

// AggregationError signals a scheduling defect: an outcome for a task that
// was never expected, or a second outcome for a task already resolved.
type AggregationError struct {
	TaskID int
	Reason string
}

// Error implements the error interface
func (e *AggregationError) Error() string {
	return fmt.Sprintf("task %d: %s", e.TaskID, e.Reason)
}

// Unwrap returns ErrAggregationInvariant
func (e *AggregationError) Unwrap() error {
	return ErrAggregationInvariant
}

// describe turns a collaborator error into the text shown to users.
func describe(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("timed out: %v", err)
	case errors.Is(err, ErrTaskCancelled), errors.Is(err, context.Canceled):
		return fmt.Sprintf("cancelled: %v", err)
	default:
		return err.Error()
	}
}
