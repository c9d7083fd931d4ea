package collaborator

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// Recorder is an in-memory collaborator. It records every statement it is
// given and rejects those matching any of its failure patterns. The CLI
// uses it for dry runs.
type Recorder struct {
	delay    time.Duration
	failures []*regexp.Regexp

	mu       sync.Mutex
	executed []string
}

// NewRecorder creates a Recorder that waits delay per statement and fails
// statements matching any of failPatterns.
func NewRecorder(delay time.Duration, failPatterns ...string) (*Recorder, error) {
	r := &Recorder{delay: delay}
	for _, pattern := range failPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid failure pattern %q: %w", pattern, err)
		}
		r.failures = append(r.failures, re)
	}
	return r, nil
}

// Execute implements dispatcher.Executor
func (r *Recorder) Execute(ctx context.Context, statement string) error {
	if r.delay > 0 {
		timer := time.NewTimer(r.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	r.executed = append(r.executed, statement)
	r.mu.Unlock()

	for _, re := range r.failures {
		if re.MatchString(statement) {
			return fmt.Errorf("statement rejected (matches %q)", re.String())
		}
	}
	return nil
}

// Executed returns the statements seen so far, in the order they ran.
func (r *Recorder) Executed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.executed...)
}
