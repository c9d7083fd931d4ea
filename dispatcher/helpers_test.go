package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// instrumentedExecutor counts enter/exit events around each collaborator
// call and fails statements that contain "fail".
type instrumentedExecutor struct {
	delay time.Duration

	calls   atomic.Int64
	running atomic.Int64
	peak    atomic.Int64

	mu     sync.Mutex
	starts []string
}

func (e *instrumentedExecutor) Execute(ctx context.Context, statement string) error {
	e.calls.Add(1)
	n := e.running.Add(1)
	defer e.running.Add(-1)
	for {
		peak := e.peak.Load()
		if n <= peak || e.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	e.mu.Lock()
	e.starts = append(e.starts, statement)
	e.mu.Unlock()

	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if strings.Contains(statement, "fail") {
		return errors.New("remote rejected statement: " + statement)
	}
	return nil
}

func (e *instrumentedExecutor) startOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.starts...)
}

// countingObserver tracks how many tasks are between OnStart and OnFinish.
type countingObserver struct {
	started  atomic.Int64
	finished atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (o *countingObserver) OnStart(Task) {
	o.started.Add(1)
	n := o.inFlight.Add(1)
	for {
		peak := o.peak.Load()
		if n <= peak || o.peak.CompareAndSwap(peak, n) {
			break
		}
	}
}

func (o *countingObserver) OnFinish(Outcome) {
	o.finished.Add(1)
	o.inFlight.Add(-1)
}

func statements(n int, prefix string) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("INSERT INTO %s VALUES (%d)", prefix, i)
	}
	return out
}
