// Package pipeline implements the concurrent data path connecting sources to
// sinks: bounded ingest and out queues, a processor driver, a batcher with
// size/timeout flushing, per-sink dispatch queues with overflow policies,
// bounded write retries, and an explicit lifecycle state machine.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/hashicorp/go-multierror"

	"github.com/logflow-dev/logflow/internal/config"
	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

// onFullKey is a source-record config key consumed by the runtime, not the
// plugin: it selects the emit backpressure policy for that source.
const onFullKey = "on_full"

// managedSource wraps a source plugin with its runtime counters and
// backpressure policy.
type managedSource struct {
	src        plugin.Source
	typeTag    string
	dropOnFull bool

	emitted atomic.Uint64
	errors  atomic.Uint64
}

// managedSink wraps a sink plugin with its dispatch queue and counters.
type managedSink struct {
	sink    plugin.Sink
	typeTag string
	queue   chan model.Batch

	writeErrors atomic.Uint64
}

// Pipeline binds one validated config record to a running data flow.
type Pipeline struct {
	cfg   *config.Pipeline
	log   logger.ILogger
	retry RetryPolicy

	sources    []*managedSource
	processors []plugin.Processor
	sinks      []*managedSink

	metrics metrics

	mu     sync.Mutex // lifecycle operations
	state  atomic.Int32
	reason atomic.Value // string

	// Per-run plumbing, rebuilt on every Start.
	ingestCh  chan *model.LogEvent
	outCh     chan *model.LogEvent
	runCancel context.CancelFunc
	srcCancel context.CancelFunc
	done      chan struct{}
	closed    bool // closeAll already ran for this run
}

// New validates the config against the plugin registry and constructs every
// component. Factory failures are configuration errors; no resources are
// acquired yet.
func New(cfg *config.Pipeline, log logger.ILogger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &plugin.ConfigError{Err: err}
	}

	p := &Pipeline{
		cfg:   cfg,
		log:   log.SubLogger("Pipeline[" + cfg.Name + "]"),
		retry: DefaultRetryPolicy,
	}
	p.state.Store(int32(StateCreated))
	p.reason.Store("")

	for _, ref := range cfg.Sources {
		pluginCfg, dropOnFull, err := splitOnFull(ref)
		if err != nil {
			return nil, err
		}
		src, err := plugin.NewSource(ref.Type, ref.Name, pluginCfg, p.log)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: source %q: %w", cfg.Name, ref.Name, err)
		}
		p.sources = append(p.sources, &managedSource{
			src:        src,
			typeTag:    ref.Type,
			dropOnFull: dropOnFull,
		})
	}

	for _, ref := range cfg.Processors {
		proc, err := plugin.NewProcessor(ref.Type, ref.Name, ref.Config, p.log)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: processor %q: %w", cfg.Name, ref.Name, err)
		}
		p.processors = append(p.processors, proc)
	}

	for _, ref := range cfg.Sinks {
		snk, err := plugin.NewSink(ref.Type, ref.Name, ref.Config, p.log)
		if err != nil {
			return nil, fmt.Errorf("pipeline %q: sink %q: %w", cfg.Name, ref.Name, err)
		}
		p.sinks = append(p.sinks, &managedSink{sink: snk, typeTag: ref.Type})
	}

	return p, nil
}

// splitOnFull extracts the runtime-owned on_full key from a source record.
func splitOnFull(ref config.PluginRef) (map[string]any, bool, error) {
	policy, ok := ref.Config[onFullKey]
	if !ok {
		return ref.Config, false, nil
	}

	cfg := make(map[string]any, len(ref.Config)-1)
	for k, v := range ref.Config {
		if k != onFullKey {
			cfg[k] = v
		}
	}

	switch policy {
	case "block":
		return cfg, false, nil
	case "drop":
		return cfg, true, nil
	default:
		return nil, false, plugin.Configf("source %q: invalid on_full policy %v", ref.Name, policy)
	}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.cfg.Name }

// State returns the current lifecycle state.
func (p *Pipeline) State() State { return State(p.state.Load()) }

// Reason returns the terminal reason of a failed pipeline, empty otherwise.
func (p *Pipeline) Reason() string { return p.reason.Load().(string) }

// transition moves the state machine along a legal edge.
func (p *Pipeline) transition(to State) bool {
	for {
		from := State(p.state.Load())
		if !canTransition(from, to) {
			return false
		}
		if p.state.CompareAndSwap(int32(from), int32(to)) {
			return true
		}
	}
}

// fail records a terminal reason, moves to failed and tears the run down.
// It isolates the failure to this pipeline.
func (p *Pipeline) fail(reason string) {
	if p.transition(StateFailed) {
		p.reason.Store(reason)
		p.metrics.markStopped(time.Now())
		p.log.Errorf("pipeline failed: %s", reason)
	}
	if p.runCancel != nil {
		p.runCancel()
	}
}

// Start opens every component and launches the data path. It is a no-op on
// a pipeline that is already starting or running.
//
// Open order: sinks, processors, sources; task order: sink runners, batcher,
// processor drivers, sources.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case StateStarting, StateRunning:
		return nil
	case StateFailed:
		return fmt.Errorf("pipeline %q has failed: %s", p.cfg.Name, p.Reason())
	case StateStopping:
		return fmt.Errorf("pipeline %q is stopping", p.cfg.Name)
	}
	if !p.transition(StateStarting) {
		return fmt.Errorf("pipeline %q cannot start from state %s", p.cfg.Name, p.State())
	}

	p.metrics.reset(time.Now())
	p.reason.Store("")
	p.closed = false

	if err := p.openAll(ctx); err != nil {
		p.fail(err.Error())
		return err
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	srcCtx, srcCancel := context.WithCancel(runCtx)
	p.runCancel = runCancel
	p.srcCancel = srcCancel
	p.ingestCh = make(chan *model.LogEvent, p.cfg.IngestQueue)
	p.outCh = make(chan *model.LogEvent, p.cfg.OutQueue)
	p.done = make(chan struct{})

	// Sink runners.
	var sinkWg sync.WaitGroup
	for _, ms := range p.sinks {
		ms.queue = make(chan model.Batch, p.cfg.SinkQueue)
		sinkWg.Add(1)
		ms := ms
		p.goSafely("sink:"+ms.sink.Name(), func() {
			defer sinkWg.Done()
			p.runSink(runCtx, ms)
		})
	}

	// Batcher.
	var batcherWg sync.WaitGroup
	batcherWg.Add(1)
	p.goSafely("batcher", func() {
		defer batcherWg.Done()
		p.runBatcher(runCtx)
	})

	// Processor drivers.
	var workerWg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		workerWg.Add(1)
		p.goSafely(fmt.Sprintf("worker-%d", i), func() {
			defer workerWg.Done()
			p.runWorker(runCtx)
		})
	}

	// Sources.
	var sourceWg sync.WaitGroup
	for _, ms := range p.sources {
		sourceWg.Add(1)
		ms := ms
		p.goSafely("source:"+ms.src.Name(), func() {
			defer sourceWg.Done()
			p.runSource(srcCtx, ms)
		})
	}

	// Stage closers: sources exhausted -> ingest closes -> workers drain ->
	// out closes -> batcher flushes and closes sink queues -> sinks drain.
	go func() {
		sourceWg.Wait()
		close(p.ingestCh)
	}()
	go func() {
		workerWg.Wait()
		close(p.outCh)
	}()
	go func() {
		batcherWg.Wait()
		sinkWg.Wait()
		close(p.done)
	}()

	if !p.transition(StateRunning) {
		// A component paniced between Starting and here.
		return fmt.Errorf("pipeline %q failed during start: %s", p.cfg.Name, p.Reason())
	}

	p.log.Infof("pipeline started: sources=%d, processors=%d, sinks=%d, batch_size=%d",
		len(p.sources), len(p.processors), len(p.sinks), p.cfg.BatchSize)
	return nil
}

// openAll opens sinks, then processors, then sources; on error it closes
// whatever opened, in reverse.
func (p *Pipeline) openAll(ctx context.Context) error {
	var opened []func()

	unwind := func() {
		for i := len(opened) - 1; i >= 0; i-- {
			opened[i]()
		}
	}

	for _, ms := range p.sinks {
		if err := ms.sink.Open(ctx); err != nil {
			unwind()
			return fmt.Errorf("opening sink %q: %w", ms.sink.Name(), err)
		}
		ms := ms
		opened = append(opened, func() { _ = ms.sink.Close(ctx) })
	}

	for _, proc := range p.processors {
		if err := proc.Open(ctx); err != nil {
			unwind()
			return fmt.Errorf("opening processor %q: %w", proc.Name(), err)
		}
		proc := proc
		opened = append(opened, func() { _ = proc.Close() })
	}

	for _, ms := range p.sources {
		if err := ms.src.Open(ctx); err != nil {
			unwind()
			return fmt.Errorf("opening source %q: %w", ms.src.Name(), err)
		}
		ms := ms
		opened = append(opened, func() { _ = ms.src.Close(ctx) })
	}

	return nil
}

// goSafely launches fn in a goroutine with panic isolation: a panic fails
// this pipeline and never escapes to the process.
func (p *Pipeline) goSafely(task string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.fail(fmt.Sprintf("panic in %s: %v", task, r))
			}
		}()
		fn()
	}()
}

// runSource drives one source, counting emissions and applying its
// backpressure policy at the ingest queue.
func (p *Pipeline) runSource(ctx context.Context, ms *managedSource) {
	emit := func(ctx context.Context, ev *model.LogEvent) error {
		ms.emitted.Add(1)

		if ms.dropOnFull {
			select {
			case p.ingestCh <- ev:
			default:
				p.metrics.eventsDropped.Add(1)
			}
			return nil
		}

		select {
		case p.ingestCh <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := ms.src.Run(ctx, emit)
	if err != nil && ctx.Err() == nil {
		ms.errors.Add(1)
		p.log.Errorf("source %q stopped with error: %v", ms.src.Name(), err)
		return
	}
	p.log.Debugf("source stopped: name=%s", ms.src.Name())
}

// runWorker drains the ingest queue through the processor chain into the
// out queue. With a single worker, processing order equals emission order.
func (p *Pipeline) runWorker(ctx context.Context) {
	for ev := range p.ingestCh {
		results := p.processEvent(ctx, ev)
		for _, out := range results {
			select {
			case p.outCh <- out:
			case <-ctx.Done():
				return
			}
		}
	}
}

// processEvent runs the chain sequentially over one event. An empty result
// is a drop; a processor error drops the event and counts it.
func (p *Pipeline) processEvent(ctx context.Context, ev *model.LogEvent) []*model.LogEvent {
	current := []*model.LogEvent{ev}

	for _, proc := range p.processors {
		var next []*model.LogEvent
		for _, in := range current {
			out, err := proc.Process(ctx, in)
			switch {
			case err != nil:
				p.metrics.processingErrors.Add(1)
				p.metrics.eventsDropped.Add(1)
				p.log.Debugf("processor %q error: event=%s, error=%v", proc.Name(), in.ID, err)
			case len(out) == 0:
				p.metrics.eventsDropped.Add(1)
			default:
				next = append(next, out...)
			}
		}
		current = next
		if len(current) == 0 {
			break
		}
	}

	return current
}

// Stop gracefully drains and stops the pipeline: sources first, then the
// driver, batcher and sink stages drain in order, then every component is
// closed in reverse open order. One stop_grace period bounds the drain of
// all stages together; on timeout the run is force-released and the
// pipeline fails. Closing the components after the drain is not bounded by
// stop_grace.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.State() {
	case StateCreated, StateStopped:
		return nil
	case StateFailed:
		// Close with prejudice whatever the failed run left open.
		if !p.closed && p.runCancel != nil {
			p.runCancel()
			p.closeAll(ctx)
			p.closed = true
		}
		return nil
	}
	if !p.transition(StateStopping) {
		return nil
	}

	p.log.Info("stopping pipeline")
	p.srcCancel()

	grace := p.cfg.StopGrace.Std()
	select {
	case <-p.done:
	case <-time.After(grace):
		p.runCancel()
		p.fail(fmt.Sprintf("stop grace period (%s) exceeded", grace))
		// Give the hard cancel a moment to unwind the tasks.
		select {
		case <-p.done:
		case <-time.After(time.Second):
		}
		p.closeAll(ctx)
		p.closed = true
		return fmt.Errorf("pipeline %q: %s", p.cfg.Name, p.Reason())
	case <-ctx.Done():
		p.runCancel()
		p.fail("stop cancelled: " + ctx.Err().Error())
		p.closeAll(ctx)
		p.closed = true
		return ctx.Err()
	}

	err := p.closeAll(ctx)
	p.closed = true
	p.runCancel()

	if p.transition(StateStopped) {
		p.metrics.markStopped(time.Now())
		p.log.Info("pipeline stopped")
	}
	return err
}

// closeAll closes sources, processors and sinks (reverse of open order),
// aggregating errors. Sinks are flushed before closing.
func (p *Pipeline) closeAll(ctx context.Context) error {
	var errs *multierror.Error

	for _, ms := range p.sources {
		if err := ms.src.Close(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing source %q: %w", ms.src.Name(), err))
		}
	}
	for _, proc := range p.processors {
		if err := proc.Close(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing processor %q: %w", proc.Name(), err))
		}
	}
	for _, ms := range p.sinks {
		if err := ms.sink.Flush(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("flushing sink %q: %w", ms.sink.Name(), err))
		}
		if err := ms.sink.Close(ctx); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("closing sink %q: %w", ms.sink.Name(), err))
		}
	}

	if errs != nil {
		for _, err := range errs.Errors {
			p.log.Warningf("shutdown: %v", err)
		}
	}
	return errs.ErrorOrNil()
}

// Metrics returns a point-in-time snapshot.
func (p *Pipeline) Metrics() Metrics {
	now := time.Now()
	state := p.State()

	m := Metrics{
		Name:             p.cfg.Name,
		State:            state.String(),
		Running:          state == StateRunning,
		Reason:           p.Reason(),
		EventsProcessed:  p.metrics.eventsProcessed.Load(),
		EventsDropped:    p.metrics.eventsDropped.Load(),
		ProcessingErrors: p.metrics.processingErrors.Load(),
		UptimeSeconds:    p.metrics.uptime(now).Seconds(),
		Processors:       len(p.processors),
	}
	for _, ms := range p.sources {
		m.Sources = append(m.Sources, SourceMetrics{
			Name:          ms.src.Name(),
			Type:          ms.typeTag,
			EventsEmitted: ms.emitted.Load(),
			Errors:        ms.errors.Load(),
		})
	}
	for _, ms := range p.sinks {
		m.Sinks = append(m.Sinks, SinkMetrics{
			Name:        ms.sink.Name(),
			Type:        ms.typeTag,
			WriteErrors: ms.writeErrors.Load(),
		})
	}
	return m
}
