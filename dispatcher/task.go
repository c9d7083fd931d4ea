package dispatcher

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a single task.
type Status int

const (
	// StatusPending means the task was submitted but no worker owns it yet
	StatusPending Status = iota
	// StatusRunning means a worker is calling the collaborator for the task
	StatusRunning
	// StatusSucceeded is terminal
	StatusSucceeded
	// StatusFailed is terminal
	StatusFailed
)

var statusNames = map[Status]string{
	StatusPending:   "pending",
	StatusRunning:   "running",
	StatusSucceeded: "succeeded",
	StatusFailed:    "failed",
}

// String implements fmt.Stringer
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// CanTransition reports whether s -> next is a legal state change.
// Pending -> Running -> {Succeeded, Failed}; terminal states are absorbing.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusRunning
	case StatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// Task represents a unit of work to be processed
type Task struct {
	// ID uniquely identifies this task within its batch.
	// It is the task's submission index.
	ID int

	// Statement is the opaque payload handed to the collaborator
	Statement string
}

// Batch is an ordered set of tasks submitted together to one dispatch call.
type Batch []Task

// NewBatch builds a batch from statements, numbering tasks in submission order.
func NewBatch(statements ...string) Batch {
	batch := make(Batch, len(statements))
	for i, stmt := range statements {
		batch[i] = Task{ID: i, Statement: stmt}
	}
	return batch
}

// Statements returns the payloads of the batch in submission order.
func (b Batch) Statements() []string {
	out := make([]string, len(b))
	for i, task := range b {
		out[i] = task.Statement
	}
	return out
}

// Outcome represents the terminal result of processing a Task
type Outcome struct {
	// TaskID identifies which task this outcome is for
	TaskID int

	// Statement echoes the task payload so callers can retry failures
	Statement string

	// Status is either StatusSucceeded or StatusFailed
	Status Status

	// Value is what the collaborator produced on success, possibly nil
	Value any

	// Err is the contained task failure, always a *TaskError when set
	Err error

	// Description is a human-readable summary of Err
	Description string

	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded reports whether the task completed without failure
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSucceeded
}

// Duration is how long the collaborator call took.
func (o Outcome) Duration() time.Duration {
	if o.StartedAt.IsZero() || o.FinishedAt.IsZero() {
		return 0
	}
	return o.FinishedAt.Sub(o.StartedAt)
}

// String renders the outcome the way the CLI prints it.
func (o Outcome) String() string {
	if o.Succeeded() {
		return fmt.Sprintf("succeeded: %s", o.Statement)
	}
	return fmt.Sprintf("failed: %s, error: %s", o.Statement, o.Description)
}

func success(task Task, value any, started time.Time) Outcome {
	return Outcome{
		TaskID:     task.ID,
		Statement:  task.Statement,
		Status:     StatusSucceeded,
		Value:      value,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
}

func failure(task Task, err error, started time.Time) Outcome {
	taskErr := NewTaskError(task, err)
	return Outcome{
		TaskID:      task.ID,
		Statement:   task.Statement,
		Status:      StatusFailed,
		Err:         taskErr,
		Description: describe(err),
		StartedAt:   started,
		FinishedAt:  time.Now(),
	}
}
