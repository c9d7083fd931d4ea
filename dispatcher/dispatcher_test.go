package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDispatchCompleteness verifies every submitted task yields exactly one outcome
func TestDispatchCompleteness(t *testing.T) {
	t.Log(`
🧪 TestDispatchCompleteness
┌─────────────────────────────────────────────────────────┐
│ Test Assertion:                                         │
│ - N submitted tasks produce N outcomes                  │
│ - Each outcome belongs to a distinct submitted task     │
└─────────────────────────────────────────────────────────┘

Dispatcher Flow:
┌─────────────┐     ┌─────────────┐     ┌─────────────┐
│  Batch (N)  │────▶│  Pool (B)   │────▶│ ResultSet(N)│
└─────────────┘     └─────────────┘     └─────────────┘
`)

	cases := []struct {
		name  string
		tasks int
		bound int
	}{
		{"single worker", 5, 1},
		{"bound equals size", 8, 8},
		{"bound below size", 20, 3},
		{"bound above size", 3, 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			exec := &instrumentedExecutor{delay: time.Millisecond}
			batch := NewBatch(statements(tc.tasks, "events")...)

			rs, err := Dispatch(context.Background(), exec, batch, tc.bound)
			require.NoError(t, err)
			require.Equal(t, tc.tasks, rs.Len())
			assert.EqualValues(t, tc.tasks, exec.calls.Load(), "collaborator called once per task")

			seen := make(map[int]bool)
			for _, o := range rs.Outcomes() {
				assert.False(t, seen[o.TaskID], "task %d reported twice", o.TaskID)
				seen[o.TaskID] = true
				assert.True(t, o.Succeeded())
			}
			for _, task := range batch {
				assert.True(t, seen[task.ID], "task %d missing", task.ID)
			}
		})
	}
	t.Log("✅ TestDispatchCompleteness PASSED")
}

// TestConcurrencyBound verifies the running count never exceeds the bound
func TestConcurrencyBound(t *testing.T) {
	t.Log(`
🧪 TestConcurrencyBound
┌─────────────────────────────────────────────────────────┐
│ Test Assertion:                                         │
│ - At most B collaborator calls are in flight            │
│ - Observer enter/exit counters agree                    │
└─────────────────────────────────────────────────────────┘
`)

	const bound = 4
	exec := &instrumentedExecutor{delay: 5 * time.Millisecond}
	observer := &countingObserver{}

	rs, err := Dispatch(context.Background(), exec, NewBatch(statements(40, "events")...), bound, WithObserver(observer))
	require.NoError(t, err)
	require.Equal(t, 40, rs.Len())

	t.Logf("📊 peak collaborator calls = %d, peak observed = %d", exec.peak.Load(), observer.peak.Load())
	assert.LessOrEqual(t, exec.peak.Load(), int64(bound))
	assert.LessOrEqual(t, observer.peak.Load(), int64(bound))
	assert.EqualValues(t, 40, observer.started.Load())
	assert.EqualValues(t, 40, observer.finished.Load())
	assert.Zero(t, observer.inFlight.Load())
	t.Log("✅ TestConcurrencyBound PASSED")
}

// TestFailureIsolation verifies a failing task does not affect its siblings
func TestFailureIsolation(t *testing.T) {
	t.Log(`
🧪 TestFailureIsolation
┌─────────────────────────────────────────────────────────┐
│ Test Assertion:                                         │
│ - [ok1, fail, ok2] with B=2                             │
│ - ok1 and ok2 succeed, fail carries a description       │
└─────────────────────────────────────────────────────────┘
`)

	exec := &instrumentedExecutor{}
	rs, err := Dispatch(context.Background(), exec, NewBatch("ok1", "fail", "ok2"), 2)
	require.NoError(t, err, "task failures never fail the dispatch")
	require.Equal(t, 3, rs.Len())

	ok1, _ := rs.Get(0)
	failed, _ := rs.Get(1)
	ok2, _ := rs.Get(2)

	assert.Equal(t, StatusSucceeded, ok1.Status)
	assert.Equal(t, StatusSucceeded, ok2.Status)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.Description, "remote rejected statement: fail")
	assert.True(t, IsTaskError(failed.Err))

	id, ok := GetTaskID(failed.Err)
	assert.True(t, ok)
	assert.Equal(t, 1, id)

	assert.Equal(t, []string{"fail"}, rs.FailedStatements())
	assert.Error(t, rs.Err())
	t.Log("✅ TestFailureIsolation PASSED")
}

// TestEmptyBatch verifies an empty batch never starts the pool
func TestEmptyBatch(t *testing.T) {
	exec := &instrumentedExecutor{}
	observer := &countingObserver{}

	rs, err := Dispatch(context.Background(), exec, nil, 4, WithObserver(observer))
	require.NoError(t, err)
	assert.Zero(t, rs.Len())
	assert.Empty(t, rs.Outcomes())
	assert.NoError(t, rs.Err())
	assert.Zero(t, exec.calls.Load())
	assert.Zero(t, observer.started.Load())
}

// TestInvalidConcurrency verifies a bound below 1 fails before any task runs
func TestInvalidConcurrency(t *testing.T) {
	for _, bound := range []int{0, -1} {
		t.Run(fmt.Sprintf("bound %d", bound), func(t *testing.T) {
			exec := &instrumentedExecutor{}

			rs, err := Dispatch(context.Background(), exec, NewBatch("a", "b"), bound)
			require.Error(t, err)
			assert.Nil(t, rs)
			assert.ErrorIs(t, err, ErrInvalidConfig)

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, bound, cfgErr.Value)
			assert.Zero(t, exec.calls.Load(), "no task may start")
		})
	}
}

func TestNilExecutor(t *testing.T) {
	_, err := Dispatch(context.Background(), nil, NewBatch("a"), 1)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

// TestDeterministicRepeat verifies the pass/fail shape is stable across runs
func TestDeterministicRepeat(t *testing.T) {
	batch := NewBatch("select 1", "fail 1", "select 2", "fail 2", "select 3")
	d := New(&instrumentedExecutor{delay: time.Millisecond}, Config{MaxConcurrency: 3})

	shape := func() []Status {
		rs, err := d.Dispatch(context.Background(), batch)
		require.NoError(t, err)
		out := make([]Status, 0, rs.Len())
		for _, o := range rs.Outcomes() {
			out = append(out, o.Status)
		}
		return out
	}

	first := shape()
	second := shape()
	assert.Equal(t, first, second)
	assert.Equal(t, []Status{StatusSucceeded, StatusFailed, StatusSucceeded, StatusFailed, StatusSucceeded}, first)
}

// TestHundredTasks runs the reference scenario: 100 tasks with 10 workers
func TestHundredTasks(t *testing.T) {
	t.Log(`
🧪 TestHundredTasks
┌─────────────────────────────────────────────────────────┐
│ Test Assertion:                                         │
│ - 100 tasks, B=10, all complete                         │
│ - Peak running count is exactly 10                      │
│ - No outcome is duplicated or missing                   │
└─────────────────────────────────────────────────────────┘
`)

	exec := &instrumentedExecutor{delay: 20 * time.Millisecond}
	d := New(exec, Config{MaxConcurrency: 10})

	rs, err := d.DispatchStatements(context.Background(), statements(100, "your_table_name")...)
	require.NoError(t, err)
	require.Equal(t, 100, rs.Len())
	assert.Len(t, rs.Succeeded(), 100)
	assert.Len(t, rs.Completed(), 100)
	assert.EqualValues(t, 10, exec.peak.Load())

	ids := make(map[int]int)
	for _, o := range rs.Completed() {
		ids[o.TaskID]++
	}
	assert.Len(t, ids, 100)
	for id, n := range ids {
		assert.Equal(t, 1, n, "task %d", id)
	}
	t.Log("✅ TestHundredTasks PASSED")
}

// TestFIFOAdmission verifies tasks start in submission order
func TestFIFOAdmission(t *testing.T) {
	exec := &instrumentedExecutor{}
	batch := NewBatch(statements(10, "ordered")...)

	_, err := Dispatch(context.Background(), exec, batch, 1)
	require.NoError(t, err)
	assert.Equal(t, batch.Statements(), exec.startOrder())
}

// TestTaskTimeout verifies tasks respect their timeout
func TestTaskTimeout(t *testing.T) {
	blocking := ExecutorFunc(func(ctx context.Context, statement string) error {
		<-ctx.Done()
		return ctx.Err()
	})
	d := New(blocking, Config{MaxConcurrency: 2, TaskTimeout: 20 * time.Millisecond})

	rs, err := d.DispatchStatements(context.Background(), "slow 1", "slow 2")
	require.NoError(t, err)
	for _, o := range rs.Outcomes() {
		assert.Equal(t, StatusFailed, o.Status)
		assert.ErrorIs(t, o.Err, context.DeadlineExceeded)
		assert.Contains(t, o.Description, "timed out")
	}
}

// TestPanicContained verifies a panicking collaborator only fails its own task
func TestPanicContained(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, statement string) error {
		if statement == "boom" {
			panic("driver exploded")
		}
		return nil
	})

	rs, err := Dispatch(context.Background(), exec, NewBatch("a", "boom", "b"), 3)
	require.NoError(t, err)

	boom, _ := rs.Get(1)
	assert.ErrorIs(t, boom.Err, ErrTaskPanicked)
	assert.Contains(t, boom.Description, "driver exploded")
	assert.Len(t, rs.Succeeded(), 2)
}

// TestCancelledDispatch verifies abandoned tasks are resolved without running
// while the task already running finishes its call
func TestCancelledDispatch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	var inFlightErr atomic.Value
	started := make(chan struct{})
	release := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, statement string) error {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		if err := ctx.Err(); err != nil {
			inFlightErr.Store(err)
			return err
		}
		return nil
	})

	go func() {
		<-started
		cancel()
		close(release)
	}()

	rs, err := Dispatch(ctx, exec, NewBatch(statements(5, "abandoned")...), 1)
	require.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, rs)
	require.Equal(t, 5, rs.Len(), "result set stays complete")
	assert.EqualValues(t, 1, calls.Load(), "only the running task reached the collaborator")
	assert.Nil(t, inFlightErr.Load(), "running call must not see the cancellation")

	first, ok := rs.Get(0)
	require.True(t, ok)
	assert.True(t, first.Succeeded(), "running task completes: %s", first)

	assert.Len(t, rs.Failed(), 4)
	for _, o := range rs.Outcomes()[1:] {
		assert.ErrorIs(t, o.Err, ErrTaskCancelled)
	}
}

// TestCancelledDispatchKeepsTimeout checks the per-task deadline still applies
// to a call that outlives its dispatch
func TestCancelledDispatchKeepsTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	started := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, statement string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	go func() {
		<-started
		cancel()
	}()

	d := New(exec, Config{MaxConcurrency: 1, TaskTimeout: 50 * time.Millisecond})
	rs, err := d.DispatchStatements(ctx, "SELECT sleep(60)")
	require.ErrorIs(t, err, context.Canceled)

	o, ok := rs.Get(0)
	require.True(t, ok)
	assert.ErrorIs(t, o.Err, context.DeadlineExceeded)
	assert.NotErrorIs(t, o.Err, ErrTaskCancelled)
}

func TestDispatchNilContext(t *testing.T) {
	exec := &instrumentedExecutor{}
	//nolint:staticcheck // a nil context is accepted
	rs, err := Dispatch(nil, exec, NewBatch("a", "b"), 2)
	require.NoError(t, err)
	assert.Len(t, rs.Succeeded(), 2)
}

type valueExecutor struct{}

func (valueExecutor) Execute(ctx context.Context, statement string) error { return nil }

func (valueExecutor) ExecuteValue(ctx context.Context, statement string) (any, error) {
	return len(statement), nil
}

func TestSuccessValues(t *testing.T) {
	rs, err := Dispatch(context.Background(), valueExecutor{}, NewBatch("a", "bbb"), 2)
	require.NoError(t, err)

	a, _ := rs.Get(0)
	b, _ := rs.Get(1)
	assert.Equal(t, 1, a.Value)
	assert.Equal(t, 3, b.Value)
	assert.False(t, a.StartedAt.After(a.FinishedAt))
}

func TestDuplicateTaskIDs(t *testing.T) {
	batch := Batch{{ID: 1, Statement: "a"}, {ID: 1, Statement: "b"}}
	exec := &instrumentedExecutor{}

	_, err := Dispatch(context.Background(), exec, batch, 2)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Zero(t, exec.calls.Load())
}

func TestResultSetOrdering(t *testing.T) {
	// Later statements finish first.
	exec := ExecutorFunc(func(ctx context.Context, statement string) error {
		switch statement {
		case "slow":
			time.Sleep(40 * time.Millisecond)
		case "medium":
			time.Sleep(20 * time.Millisecond)
		}
		if statement == "medium" {
			return errors.New("quota exceeded")
		}
		return nil
	})

	rs, err := Dispatch(context.Background(), exec, NewBatch("slow", "medium", "fast"), 3)
	require.NoError(t, err)

	var submitted, completed []string
	for _, o := range rs.Outcomes() {
		submitted = append(submitted, o.Statement)
	}
	for _, o := range rs.Completed() {
		completed = append(completed, o.Statement)
	}
	assert.Equal(t, []string{"slow", "medium", "fast"}, submitted)
	assert.Equal(t, []string{"fast", "medium", "slow"}, completed)
	assert.Equal(t, "failed: medium, error: quota exceeded", rs.Failed()[0].String())
	assert.Equal(t, "succeeded: slow", rs.Succeeded()[0].String())
}
