package dispatcher

import (
	"context"
	"fmt"
	"sync"
)

// exclusive hands every call its own collaborator instance.
// Instances are reused once released, so at most one instance exists per
// concurrently running task.
type exclusive struct {
	newExecutor func() (Executor, error)

	mu   sync.Mutex
	free []Executor
}

// PerWorker returns an Executor for collaborators that are not safe for
// concurrent use. newExecutor is called whenever every existing instance is
// busy; an instance is never used by two tasks at the same time.
func PerWorker(newExecutor func() (Executor, error)) Executor {
	return &exclusive{newExecutor: newExecutor}
}

// Execute implements Executor
func (e *exclusive) Execute(ctx context.Context, statement string) error {
	_, err := e.ExecuteValue(ctx, statement)
	return err
}

// ExecuteValue implements ValueExecutor
func (e *exclusive) ExecuteValue(ctx context.Context, statement string) (any, error) {
	instance, err := e.acquire()
	if err != nil {
		return nil, err
	}
	defer e.release(instance)

	if ve, ok := instance.(ValueExecutor); ok {
		return ve.ExecuteValue(ctx, statement)
	}
	return nil, instance.Execute(ctx, statement)
}

func (e *exclusive) acquire() (Executor, error) {
	e.mu.Lock()
	if n := len(e.free); n > 0 {
		instance := e.free[n-1]
		e.free = e.free[:n-1]
		e.mu.Unlock()
		return instance, nil
	}
	e.mu.Unlock()

	instance, err := e.newExecutor()
	if err != nil {
		return nil, fmt.Errorf("failed to create collaborator instance: %w", err)
	}
	return instance, nil
}

func (e *exclusive) release(instance Executor) {
	e.mu.Lock()
	e.free = append(e.free, instance)
	e.mu.Unlock()
}
