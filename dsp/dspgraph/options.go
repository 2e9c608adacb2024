package dspgraph

import (
	"runtime"

	"github.com/cwbudde/algo-dspgraph/dsp/buffer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Options configures a Graph beyond its output format.
type Options struct {
	// Workers is the number of job goroutines used by Jobified mixes. Zero
	// makes every mix synchronous.
	Workers int
	// EventQueueSize bounds the node event queue. Events posted while the
	// queue is full are dropped and counted.
	EventQueueSize int
	// Logger receives lifecycle and fault logs.
	Logger zerolog.Logger
	// Registerer receives the graph's metrics. Nil keeps them in a private
	// registry.
	Registerer prometheus.Registerer
	// Allocator supplies port buffers and kernel memory. Nil creates one per
	// graph.
	Allocator *buffer.Allocator
	// Providers is the sample provider registry. Nil creates one per graph.
	Providers *ProviderRegistry
	// DefaultMode is used by BeginMix when the requested mode selects
	// neither Jobified nor Synchronous execution.
	DefaultMode ExecutionMode
}

// Option mutates Options.
type Option func(*Options)

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		Workers:        runtime.GOMAXPROCS(0),
		EventQueueSize: 1024,
		Logger:         zerolog.Nop(),
		DefaultMode:    Jobified,
	}
}

// WithWorkers sets the job worker count.
func WithWorkers(n int) Option {
	return func(o *Options) {
		if n >= 0 {
			o.Workers = n
		}
	}
}

// WithEventQueueSize sets the node event queue capacity.
func WithEventQueueSize(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.EventQueueSize = n
		}
	}
}

// WithDefaultExecutionMode sets the mode used when BeginMix is given
// neither Jobified nor Synchronous.
func WithDefaultExecutionMode(m ExecutionMode) Option {
	return func(o *Options) {
		o.DefaultMode = m
	}
}

// WithLogger sets the graph logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// WithRegisterer registers the graph metrics with r.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(o *Options) {
		o.Registerer = r
	}
}

// WithAllocator shares an allocator between graphs.
func WithAllocator(a *buffer.Allocator) Option {
	return func(o *Options) {
		o.Allocator = a
	}
}

// WithProviders shares a provider registry between graphs.
func WithProviders(r *ProviderRegistry) Option {
	return func(o *Options) {
		o.Providers = r
	}
}

func applyOptions(opts ...Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	if o.Allocator == nil {
		o.Allocator = buffer.NewAllocator()
	}

	if o.Providers == nil {
		o.Providers = NewProviderRegistry()
	}

	return o
}
