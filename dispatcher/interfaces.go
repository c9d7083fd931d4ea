package dispatcher

import (
	"context"
	"fmt"
	"time"
)

// Executor is the boundary to the remote service client.
// Execute runs one statement and reports success or a descriptive failure.
// It is all-or-nothing per call and has no deadline unless ctx carries one.
//
// A single Executor is shared by every worker of a dispatch, so
// implementations must be safe for concurrent use. Wrap clients that are
// not with PerWorker.
type Executor interface {
	Execute(ctx context.Context, statement string) error
}

// ValueExecutor is implemented by collaborators that return something
// useful on success. The value is recorded in Outcome.Value.
type ValueExecutor interface {
	Executor
	ExecuteValue(ctx context.Context, statement string) (any, error)
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, statement string) error

// Execute implements Executor
func (f ExecutorFunc) Execute(ctx context.Context, statement string) error {
	return f(ctx, statement)
}

// Processor defines how tasks should be processed
type Processor interface {
	// Process handles one task and always returns its terminal outcome.
	// It must never panic or return a non-terminal status.
	Process(ctx context.Context, task Task) Outcome
}

// ResultHandler defines how outcomes should be handled
type ResultHandler interface {
	// HandleResult records an outcome
	// It should return an error if the outcome cannot be accepted
	HandleResult(outcome Outcome) error
}

// Observer receives lifecycle notifications from pool workers.
// Calls happen on the worker goroutine, so implementations must be
// safe for concurrent use.
type Observer interface {
	OnStart(task Task)
	OnFinish(outcome Outcome)
}

// ExecProcessor calls the collaborator exactly once per task and
// contains whatever goes wrong inside the outcome.
type ExecProcessor struct {
	executor Executor
	timeout  time.Duration
}

// NewProcessor creates a Processor around executor.
// Tasks whose context is already done are failed with ErrTaskCancelled
// without calling executor. A started call does not see later
// cancellation of that context; a zero timeout leaves it unbounded.
func NewProcessor(executor Executor, timeout time.Duration) *ExecProcessor {
	return &ExecProcessor{
		executor: executor,
		timeout:  timeout,
	}
}

// Process implements Processor for ExecProcessor
func (p *ExecProcessor) Process(ctx context.Context, task Task) Outcome {
	started := time.Now()

	// The dispatch was abandoned before this task got a worker.
	if err := ctx.Err(); err != nil {
		return failure(task, fmt.Errorf("%w: %w", ErrTaskCancelled, err), started)
	}

	// Once started, a call runs to completion even if the dispatch is
	// abandoned; only the per-task timeout can cut it short.
	callCtx := context.WithoutCancel(ctx)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, p.timeout)
		defer cancel()
	}

	value, err := p.call(callCtx, task.Statement)
	if err != nil {
		return failure(task, err, started)
	}
	return success(task, value, started)
}

func (p *ExecProcessor) call(ctx context.Context, statement string) (value any, err error) {
	// A panicking collaborator fails this task only.
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()

	// Prefer the value-returning form when the collaborator has one
	if ve, ok := p.executor.(ValueExecutor); ok {
		return ve.ExecuteValue(ctx, statement)
	}
	return nil, p.executor.Execute(ctx, statement)
}
