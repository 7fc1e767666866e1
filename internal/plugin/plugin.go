// Package plugin defines the capability contracts for sources, processors and
// sinks, the error taxonomy they report through, and the process-wide
// type-tag registry used to construct them from declarative configuration.
package plugin

import (
	"context"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/logflow-dev/logflow/internal/model"
)

// EmitFunc is the callback a source uses to hand events to its pipeline.
// It blocks while the ingest queue is full unless the source is configured
// to drop, and returns the context error once the pipeline is stopping.
type EmitFunc func(ctx context.Context, ev *model.LogEvent) error

// Source produces a lazy, potentially infinite sequence of LogEvents.
//
// Lifecycle: the factory validates configuration, Open acquires external
// resources without producing events, Run blocks and emits until the context
// is cancelled or the input is exhausted, Close releases resources.
// Sources must not share mutable state across pipelines; Run may be invoked
// again on a source that has been stopped.
type Source interface {
	// Name returns the instance name from the pipeline configuration.
	Name() string

	// Open validates external resources (files, brokers, buckets) without
	// producing events.
	Open(ctx context.Context) error

	// Run blocks, emitting events until ctx is cancelled or the input is
	// exhausted. A nil return means clean exhaustion.
	Run(ctx context.Context, emit EmitFunc) error

	// Close flushes anything the source can still deliver cleanly and
	// releases resources.
	Close(ctx context.Context) error
}

// Processor transforms one event into zero, one or many events.
//
// Process returning (nil, nil) drops the event; returning multiple events
// splits it. State compiled from configuration is per-instance, never
// global. Processors are expected to be CPU-bound and non-blocking; a
// processor that must block on I/O documents it.
type Processor interface {
	Name() string

	// Open compiles inner state. Configuration that cannot compile has
	// already been rejected by the factory.
	Open(ctx context.Context) error

	Process(ctx context.Context, ev *model.LogEvent) ([]*model.LogEvent, error)

	Close() error
}

// Sink consumes batches.
//
// Write delivers a batch atomically from the sink's perspective, best
// effort. Errors are classified with Retryable and Fatal; anything else is
// treated as retryable. Sinks must not mutate the batch they are given.
type Sink interface {
	Name() string

	// Open connects to and validates the target.
	Open(ctx context.Context) error

	Write(ctx context.Context, batch model.Batch) error

	// Flush blocks until all in-flight writes are durable or have failed.
	Flush(ctx context.Context) error

	// Close flushes then releases resources.
	Close(ctx context.Context) error
}

// Factory signatures. A factory receives the instance name from the pipeline
// document, the opaque config mapping, and a logger; it decodes the config
// strictly (unknown keys are errors) and returns a configured instance.
// Factory failures are configuration errors and fail pipeline load.
type (
	SourceFactory    func(name string, cfg map[string]any, log logger.ILogger) (Source, error)
	ProcessorFactory func(name string, cfg map[string]any, log logger.ILogger) (Processor, error)
	SinkFactory      func(name string, cfg map[string]any, log logger.ILogger) (Sink, error)
)
