package flow

import (
	"context"
	"time"

	"github.com/dshills/flowmark/flow/emit"
	"github.com/dshills/flowmark/flow/store"
)

// ErrorHandler observes node failures before the wave aggregates them.
// A panic or secondary failure inside the handler is contained and never
// masks the original node error.
type ErrorHandler func(ctx context.Context, state *ExecutionState, nodeID string, err error)

// Options configures an Executor.
type Options struct {
	// MaxConcurrency bounds simultaneously executing nodes across the
	// whole run. Defaults to 10.
	MaxConcurrency int

	// Timeout is the global wall-clock budget for Execute. Zero means no
	// global deadline.
	Timeout time.Duration

	// PersistencePath, when set, checkpoints the state to this file after
	// every wave.
	PersistencePath string

	// Store, when set, checkpoints the state after every wave keyed by
	// run ID. Store and PersistencePath compose.
	Store store.Store[*ExecutionState]

	// ErrorHandler, when set, observes every node failure.
	ErrorHandler ErrorHandler

	// DefaultRetry applies to nodes that declare no retry policy of their
	// own. Nil means no retries by default.
	DefaultRetry *RetryConfig

	// LogPath, when set, appends a JSON line per node completion.
	// Logging failures never affect execution.
	LogPath string

	// Emitter receives execution events. Defaults to the null emitter.
	Emitter emit.Emitter

	// Metrics, when set, records Prometheus metrics for the run.
	Metrics *Metrics
}

// Option mutates Options.
type Option func(*Options)

func defaultOptions() Options {
	return Options{
		MaxConcurrency: 10,
		Emitter:        emit.NewNullEmitter(),
	}
}

// WithMaxConcurrency bounds simultaneously executing nodes.
func WithMaxConcurrency(n int) Option {
	return func(o *Options) { o.MaxConcurrency = n }
}

// WithTimeout sets the global execution deadline.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) { o.Timeout = d }
}

// WithPersistencePath enables file checkpointing after each wave.
func WithPersistencePath(path string) Option {
	return func(o *Options) { o.PersistencePath = path }
}

// WithStore enables store checkpointing after each wave.
func WithStore(s store.Store[*ExecutionState]) Option {
	return func(o *Options) { o.Store = s }
}

// WithErrorHandler installs a node-failure observer.
func WithErrorHandler(h ErrorHandler) Option {
	return func(o *Options) { o.ErrorHandler = h }
}

// WithDefaultRetry sets the retry policy for nodes without one.
func WithDefaultRetry(rc *RetryConfig) Option {
	return func(o *Options) { o.DefaultRetry = rc }
}

// WithLogPath enables append-only JSON execution logging.
func WithLogPath(path string) Option {
	return func(o *Options) { o.LogPath = path }
}

// WithEmitter sets the event emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(o *Options) { o.Emitter = e }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(o *Options) { o.Metrics = m }
}
