package dispatcher

import "go.uber.org/multierr"

// ResultSet holds one outcome for every task of a dispatched batch.
type ResultSet struct {
	byID      map[int]Outcome
	order     []int
	completed []int
}

// Len returns the number of outcomes, equal to the batch size.
func (rs *ResultSet) Len() int {
	return len(rs.order)
}

// Get returns the outcome of the task with the given ID.
func (rs *ResultSet) Get(taskID int) (Outcome, bool) {
	outcome, ok := rs.byID[taskID]
	return outcome, ok
}

// Outcomes returns every outcome in submission order.
func (rs *ResultSet) Outcomes() []Outcome {
	return rs.collect(rs.order, nil)
}

// Completed returns every outcome in the order tasks finished.
func (rs *ResultSet) Completed() []Outcome {
	return rs.collect(rs.completed, nil)
}

// Succeeded returns the successful outcomes in submission order.
func (rs *ResultSet) Succeeded() []Outcome {
	return rs.collect(rs.order, func(o Outcome) bool { return o.Succeeded() })
}

// Failed returns the failed outcomes in submission order.
func (rs *ResultSet) Failed() []Outcome {
	return rs.collect(rs.order, func(o Outcome) bool { return !o.Succeeded() })
}

// FailedStatements returns the payloads of failed tasks, ready to be
// dispatched again.
func (rs *ResultSet) FailedStatements() []string {
	failed := rs.Failed()
	out := make([]string, len(failed))
	for i, o := range failed {
		out[i] = o.Statement
	}
	return out
}

// Err combines every task failure, in submission order.
// It is nil when all tasks succeeded.
func (rs *ResultSet) Err() error {
	var err error
	for _, o := range rs.Failed() {
		err = multierr.Append(err, o.Err)
	}
	return err
}

func (rs *ResultSet) collect(ids []int, keep func(Outcome) bool) []Outcome {
	out := make([]Outcome, 0, len(ids))
	for _, id := range ids {
		o := rs.byID[id]
		if keep == nil || keep(o) {
			out = append(out, o)
		}
	}
	return out
}
