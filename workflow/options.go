package workflow

import (
	"go.uber.org/zap"
)

// DefaultStepLimit bounds the number of node executions in one run.
const DefaultStepLimit = 25

// Option configures compilation and the resulting Workflow.
type Option func(*options)

type options struct {
	name       string
	logger     *zap.Logger
	observer   Observer
	stepLimit  int
	permissive bool
}

func defaultOptions() options {
	return options{
		name:      "workflow",
		logger:    zap.NewNop(),
		observer:  NopObserver{},
		stepLimit: DefaultStepLimit,
	}
}

// WithName sets the workflow name used in logs, spans and metrics.
func WithName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.name = name
		}
	}
}

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = zap.NewNop()
		}
		o.logger = logger
	}
}

// WithObserver installs a run observer, e.g. a metrics collector.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		if obs == nil {
			obs = NopObserver{}
		}
		o.observer = obs
	}
}

// WithStepLimit sets the maximum number of node executions per run. Values
// below 1 keep the default.
func WithStepLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.stepLimit = n
		}
	}
}

// WithPermissive disables compile-time reachability checks. Dead ends are then
// reported at run time with ErrDeadEnd, and routers may return any existing
// node even when no outgoing edge declares it as a destination; names that
// match no node still fail with ErrUnknownRoute. This restores the original
// permissive routing; strict routing is the default.
func WithPermissive() Option {
	return func(o *options) {
		o.permissive = true
	}
}
