package orchestrator

import (
	"github.com/loomery/loom/internal/batcher"
	"github.com/loomery/loom/internal/decompose"
	"github.com/loomery/loom/internal/learning"
)

// defaultParallelism bounds concurrent subtask executions per request.
const defaultParallelism = 4

// defaultEventBuffer is the capacity of the event channel.
const defaultEventBuffer = 128

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBatcherConfig overrides the batching parameters.
func WithBatcherConfig(cfg batcher.Config) Option {
	return func(o *Orchestrator) {
		o.batcherCfg = cfg
	}
}

// WithDecomposerConfig overrides the decomposition parameters.
func WithDecomposerConfig(cfg decompose.Config) Option {
	return func(o *Orchestrator) {
		o.decomposerCfg = cfg
	}
}

// WithParallelism sets the maximum number of subtasks executed concurrently
// within one request. Values below 1 are ignored.
func WithParallelism(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.parallelism = n
		}
	}
}

// WithEventBuffer sets the event channel capacity. Values below 1 are ignored.
func WithEventBuffer(n int) Option {
	return func(o *Orchestrator) {
		if n >= 1 {
			o.eventBuffer = n
		}
	}
}

// WithDebugLogger attaches a debug logger. The orchestrator owns the logger
// and closes it on Close.
func WithDebugLogger(l *DebugLogger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithStore attaches a profile store. Profiles and beliefs are loaded from
// it at construction and saved back on Close.
func WithStore(store *learning.ProfileStore) Option {
	return func(o *Orchestrator) {
		o.store = store
	}
}

// WithRouterSeed fixes the router's random source, for reproducible runs.
func WithRouterSeed(seed int64) Option {
	return func(o *Orchestrator) {
		o.routerSeed = &seed
	}
}
