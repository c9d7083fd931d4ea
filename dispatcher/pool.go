package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

/*
Pool is a fixed-size set of workers draining tasks in submission order.
At most size tasks are running at any instant; a submitted task waits
until a worker is free and is started as soon as one is.
*/
type Pool struct {
	size      int           // Number of workers, which is also the concurrency bound
	tasks     chan Task     // Unbuffered, so admission order equals submission order
	done      chan struct{} // Closed by Close to stop admission and release idle workers
	processor Processor     // Runs one task to a terminal outcome
	handler   ResultHandler // Receives every outcome exactly once
	observer  Observer
	logger    *slog.Logger

	ctx   context.Context // Passed to every task, set by Start
	group errgroup.Group  // Tracks worker lifetimes; workers never return an error

	running atomic.Int64
	peak    atomic.Int64

	mu          sync.Mutex // Guards the lifecycle flags and handlerErr
	started     bool
	closed      bool
	handlerErr  error
	closeResult error
}

/*
NewPool creates a pool of maxConcurrency workers.
It fails with a *ConfigurationError when maxConcurrency is below 1; in
that case nothing has been started.
*/
func NewPool(maxConcurrency int, processor Processor, handler ResultHandler, opts ...Option) (*Pool, error) {
	if err := (Config{MaxConcurrency: maxConcurrency}).Validate(); err != nil {
		return nil, err
	}
	o := applyOptions(opts)

	return &Pool{
		size:      maxConcurrency,
		tasks:     make(chan Task),
		done:      make(chan struct{}),
		processor: processor,
		handler:   handler,
		observer:  o.observer,
		logger:    o.logger,
		ctx:       context.Background(),
	}, nil
}

/*
Start launches the workers. Every task processed by the pool receives ctx.
Calling Start more than once, or after Close, does nothing.
*/
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started || p.closed {
		return
	}
	p.started = true
	if ctx != nil {
		p.ctx = ctx
	}

	p.logger.Debug("starting pool", "workers", p.size)

	for i := 0; i < p.size; i++ {
		id := i + 1
		p.group.Go(func() error {
			p.worker(id)
			return nil
		})
	}
}

/*
Submit hands task to the next free worker, blocking until one accepts it.
It returns ErrPoolClosed once Close was called, and ctx.Err() if ctx ends
while waiting. A task for which Submit returned an error was never started.
*/
func (p *Pool) Submit(ctx context.Context, task Task) error {
	// Check the lifecycle under lock
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if !p.started {
		p.mu.Unlock()
		return fmt.Errorf("submit task %d: pool not started", task.ID)
	}
	p.mu.Unlock()

	// Blocks until an idle worker receives the task; the channel is
	// unbuffered so nothing queues behind the submitter.
	select {
	case p.tasks <- task:
		p.logger.Debug("task submitted", "task_id", task.ID)
		return nil
	case <-p.done:
		return ErrPoolClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

/*
Close stops admission, waits for running tasks to finish and returns any
error the result handler reported. It is safe to call more than once.
*/
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		err := p.closeResult
		p.mu.Unlock()
		return err
	}
	p.closed = true
	p.mu.Unlock()

	p.logger.Debug("stopping pool")

	// Idle workers exit at once, busy ones after their current task
	close(p.done)
	_ = p.group.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeResult = p.handlerErr
	return p.closeResult
}

// Running is the number of tasks currently being processed.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Peak is the highest number of tasks that were processed at the same time.
func (p *Pool) Peak() int {
	return int(p.peak.Load())
}

// Size returns the concurrency bound.
func (p *Pool) Size() int {
	return p.size
}

/*
worker is the main loop for each worker goroutine.
It takes tasks until the pool is closed; a worker busy with a task always
finishes it before looking at the done channel again.
*/
func (p *Pool) worker(id int) {
	p.logger.Debug("worker started", "worker", id)

	for {
		select {
		case <-p.done:
			// Admission has stopped and nothing is left in the channel
			p.logger.Debug("worker stopping", "worker", id)
			return
		case task := <-p.tasks:
			// The submitter handed this task to us directly
			p.run(id, task)
		}
	}
}

// run owns task from admission to its terminal state.
func (p *Pool) run(id int, task Task) {
	// Admission moves the task from pending to running; only this worker
	// touches its status from here on.
	status := StatusRunning

	// Record the high-water mark of concurrently running tasks
	n := p.running.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	p.logger.Debug("processing task", "worker", id, "task_id", task.ID)
	p.observer.OnStart(task)

	outcome := p.process(task)
	if !status.CanTransition(outcome.Status) {
		outcome = failure(task, fmt.Errorf("processor returned non-terminal status %s", outcome.Status), outcome.StartedAt)
	}

	// The slot is free again before the result is handed on
	p.running.Add(-1)
	p.observer.OnFinish(outcome)

	if outcome.Succeeded() {
		p.logger.Debug("task succeeded", "worker", id, "task_id", task.ID, "duration", outcome.Duration())
	} else {
		p.logger.Warn("task failed", "worker", id, "task_id", task.ID, "error", outcome.Description)
	}

	if err := p.handler.HandleResult(outcome); err != nil {
		p.logger.Error("failed to handle result", "worker", id, "task_id", task.ID, "error", err)
		p.mu.Lock()
		p.handlerErr = multierr.Append(p.handlerErr, err)
		p.mu.Unlock()
	}
}

// process runs the processor. A panic becomes a failure of this task only.
func (p *Pool) process(task Task) (outcome Outcome) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("processor panicked", "task_id", task.ID, "panic", r)
			outcome = failure(task, fmt.Errorf("%w: %v", ErrTaskPanicked, r), started)
		}
	}()
	return p.processor.Process(p.ctx, task)
}
