package dispatcher

import (
	"fmt"
	"sync"
)

// Aggregator collects exactly one outcome per expected task.
// HandleResult may be called from any number of workers at once.
type Aggregator struct {
	mu        sync.RWMutex
	expected  map[int]Task
	outcomes  map[int]Outcome
	completed []int // task IDs in completion order
	order     []int // task IDs in submission order
}

// NewAggregator creates an aggregator expecting one outcome per task in batch.
// Task IDs must be unique within the batch.
func NewAggregator(batch Batch) (*Aggregator, error) {
	a := &Aggregator{
		expected:  make(map[int]Task, len(batch)),
		outcomes:  make(map[int]Outcome, len(batch)),
		completed: make([]int, 0, len(batch)),
		order:     make([]int, 0, len(batch)),
	}
	for _, task := range batch {
		if _, dup := a.expected[task.ID]; dup {
			return nil, &ConfigurationError{
				Field:  "task id",
				Value:  task.ID,
				Reason: "appears more than once in the batch",
			}
		}
		a.expected[task.ID] = task
		a.order = append(a.order, task.ID)
	}
	return a, nil
}

// HandleResult implements ResultHandler for Aggregator.
// An outcome for an unknown task, a non-terminal outcome, or a second
// outcome for a resolved task is rejected with an *AggregationError.
func (a *Aggregator) HandleResult(outcome Outcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.expected[outcome.TaskID]; !ok {
		return &AggregationError{TaskID: outcome.TaskID, Reason: "outcome for a task that was never submitted"}
	}
	if !outcome.Status.Terminal() {
		return &AggregationError{TaskID: outcome.TaskID, Reason: fmt.Sprintf("outcome has non-terminal status %s", outcome.Status)}
	}
	if prev, ok := a.outcomes[outcome.TaskID]; ok {
		return &AggregationError{
			TaskID: outcome.TaskID,
			Reason: fmt.Sprintf("reported more than once (already %s)", prev.Status),
		}
	}

	a.outcomes[outcome.TaskID] = outcome
	a.completed = append(a.completed, outcome.TaskID)
	return nil
}

// Pending returns how many expected tasks have no outcome yet.
func (a *Aggregator) Pending() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.expected) - len(a.outcomes)
}

// Done reports whether every expected task has an outcome.
func (a *Aggregator) Done() bool {
	return a.Pending() == 0
}

// Snapshot returns the outcomes collected so far, in completion order.
func (a *Aggregator) Snapshot() []Outcome {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Outcome, len(a.completed))
	for i, id := range a.completed {
		out[i] = a.outcomes[id]
	}
	return out
}

// ResultSet returns the complete result set.
// It fails with ErrIncomplete while any expected task is unresolved.
func (a *Aggregator) ResultSet() (*ResultSet, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if missing := len(a.expected) - len(a.outcomes); missing > 0 {
		return nil, fmt.Errorf("%w: %d of %d tasks unresolved", ErrIncomplete, missing, len(a.expected))
	}

	rs := &ResultSet{
		byID:      make(map[int]Outcome, len(a.outcomes)),
		order:     append([]int(nil), a.order...),
		completed: append([]int(nil), a.completed...),
	}
	for id, outcome := range a.outcomes {
		rs.byID[id] = outcome
	}
	return rs, nil
}
