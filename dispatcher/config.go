package dispatcher

import "time"

// DefaultMaxConcurrency mirrors the worker count batch jobs have always run with.
const DefaultMaxConcurrency = 10

// Config holds the basic configuration for the dispatcher
type Config struct {
	// MaxConcurrency is the number of tasks allowed to run at once
	MaxConcurrency int

	// TaskTimeout bounds each collaborator call. Zero means no deadline.
	TaskTimeout time.Duration
}

// DefaultConfig returns a simple default configuration
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: DefaultMaxConcurrency,
	}
}

// Validate returns a *ConfigurationError when the config cannot be used.
func (c Config) Validate() error {
	if c.MaxConcurrency < 1 {
		return &ConfigurationError{
			Field:  "max concurrency",
			Value:  c.MaxConcurrency,
			Reason: "must be at least 1",
		}
	}
	if c.TaskTimeout < 0 {
		return &ConfigurationError{
			Field:  "task timeout",
			Value:  c.TaskTimeout,
			Reason: "must not be negative",
		}
	}
	return nil
}
