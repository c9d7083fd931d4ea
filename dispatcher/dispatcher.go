// Package dispatcher runs a batch of independent statements against a
// remote collaborator with bounded concurrency and collects exactly one
// outcome per statement.
package dispatcher

import (
	"context"
	"log/slog"
	"time"

	"go.uber.org/multierr"
)

/*
Dispatcher runs batches against one collaborator.
It owns no state between calls, so a Dispatcher may be used by several
goroutines at once as long as its Executor is safe for concurrent use.
*/
type Dispatcher struct {
	executor Executor
	config   Config
	opts     []Option
	logger   *slog.Logger
}

/*
New creates a Dispatcher.
executor is shared by every worker of every dispatch and must be safe for
concurrent use; wrap it with PerWorker otherwise. The config is checked by
each Dispatch call, not here.
*/
func New(executor Executor, config Config, opts ...Option) *Dispatcher {
	return &Dispatcher{
		executor: executor,
		config:   config,
		opts:     opts,
		logger:   applyOptions(opts).logger,
	}
}

/*
Dispatch is a shorthand for New(executor, Config{MaxConcurrency: maxConcurrency}, opts...).Dispatch(ctx, batch).
*/
func Dispatch(ctx context.Context, executor Executor, batch Batch, maxConcurrency int, opts ...Option) (*ResultSet, error) {
	return New(executor, Config{MaxConcurrency: maxConcurrency}, opts...).Dispatch(ctx, batch)
}

// DispatchStatements numbers statements in order and dispatches them.
func (d *Dispatcher) DispatchStatements(ctx context.Context, statements ...string) (*ResultSet, error) {
	return d.Dispatch(ctx, NewBatch(statements...))
}

/*
Dispatch runs every task of batch and blocks until all of them are done.

An invalid config fails with a *ConfigurationError before any task starts.
An empty batch returns an empty result set without starting workers.
Task failures never fail the call; they are reported in the result set.

If ctx is cancelled, tasks that have not started yet fail with
ErrTaskCancelled without reaching the collaborator, running tasks finish
their call, and the complete result set is returned together with
ctx.Err(). A nil ctx is treated as context.Background(). An
*AggregationError in the returned error means the scheduler itself
misbehaved.
*/
func (d *Dispatcher) Dispatch(ctx context.Context, batch Batch) (*ResultSet, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := d.config.Validate(); err != nil {
		return nil, err
	}
	if d.executor == nil {
		return nil, &ConfigurationError{Field: "executor", Value: nil, Reason: "must not be nil"}
	}

	aggregator, err := NewAggregator(batch)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return aggregator.ResultSet()
	}

	workers := min(d.config.MaxConcurrency, len(batch))
	processor := NewProcessor(d.executor, d.config.TaskTimeout)

	pool, err := NewPool(workers, processor, aggregator, d.opts...)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	d.logger.Info("dispatching batch", "tasks", len(batch), "workers", workers)

	pool.Start(ctx)

	// Admission ignores cancellation so every task still reaches a worker,
	// which resolves it as cancelled without calling the collaborator.
	admit := context.WithoutCancel(ctx)
	var dispatchErr error
	for _, task := range batch {
		if err := pool.Submit(admit, task); err != nil {
			dispatchErr = multierr.Append(dispatchErr, aggregator.HandleResult(failure(task, err, time.Now())))
		}
	}

	dispatchErr = multierr.Append(dispatchErr, pool.Close())

	rs, err := aggregator.ResultSet()
	if err != nil {
		return nil, multierr.Append(dispatchErr, err)
	}

	d.logger.Info("batch finished",
		"tasks", rs.Len(),
		"succeeded", len(rs.Succeeded()),
		"failed", len(rs.Failed()),
		"peak_running", pool.Peak(),
		"elapsed", time.Since(started),
	)

	return rs, multierr.Append(dispatchErr, ctx.Err())
}
