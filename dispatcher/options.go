package dispatcher

import "log/slog"

type options struct {
	logger   *slog.Logger
	observer Observer
}

// Option configures a Pool or Dispatcher.
type Option func(*options)

func defaultOptions() *options {
	return &options{
		logger:   slog.New(slog.DiscardHandler),
		observer: nopObserver{},
	}
}

func applyOptions(opts []Option) *options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger sets the structured logger. Nothing is logged by default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithObserver registers lifecycle hooks invoked by pool workers.
func WithObserver(observer Observer) Option {
	return func(o *options) {
		if observer != nil {
			o.observer = observer
		}
	}
}

type nopObserver struct{}

func (nopObserver) OnStart(Task)     {}
func (nopObserver) OnFinish(Outcome) {}
