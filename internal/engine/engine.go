// Package engine owns the named collection of pipelines and mediates their
// lifecycle: load, start, stop, restart, remove, metrics, shutdown.
package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/GabrielNunesIT/go-libs/logger"
	"golang.org/x/sync/errgroup"

	"github.com/logflow-dev/logflow/internal/config"
	"github.com/logflow-dev/logflow/internal/pipeline"
)

// Engine holds named pipelines. It is an explicit value constructed in main
// and injected into the control plane; tests construct isolated engines.
// Registry operations are mutually exclusive; pipelines themselves are
// independent failure domains.
type Engine struct {
	log logger.ILogger

	mu        sync.Mutex
	pipelines map[string]*pipeline.Pipeline
}

// New creates an empty engine.
func New(log logger.ILogger) *Engine {
	return &Engine{
		log:       log.SubLogger("Engine"),
		pipelines: make(map[string]*pipeline.Pipeline),
	}
}

// LoadPipeline validates a pipeline config, constructs the pipeline and
// inserts it into the registry. A name collision fails unless replace is
// set, in which case the existing pipeline is stopped and evicted first.
// On failure no registry entry is created.
func (e *Engine) LoadPipeline(ctx context.Context, cfg *config.Pipeline, replace bool) (string, error) {
	p, err := pipeline.New(cfg, e.log)
	if err != nil {
		return "", err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if existing, ok := e.pipelines[cfg.Name]; ok {
		if !replace {
			return "", fmt.Errorf("pipeline %q already exists", cfg.Name)
		}
		if err := existing.Stop(ctx); err != nil {
			e.log.Warningf("stopping replaced pipeline %q: %v", cfg.Name, err)
		}
	}

	e.pipelines[cfg.Name] = p
	e.log.Infof("pipeline loaded: %s", cfg.Name)
	return cfg.Name, nil
}

// StartPipeline starts a pipeline by name. Starting an already-running
// pipeline is a no-op.
func (e *Engine) StartPipeline(ctx context.Context, name string) error {
	p, err := e.get(name)
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return err
	}
	e.log.Infof("pipeline started: %s", name)
	return nil
}

// StopPipeline stops a pipeline by name. Stopping a pipeline that is not
// running is a no-op.
func (e *Engine) StopPipeline(ctx context.Context, name string) error {
	p, err := e.get(name)
	if err != nil {
		return err
	}
	if err := p.Stop(ctx); err != nil {
		return err
	}
	e.log.Infof("pipeline stopped: %s", name)
	return nil
}

// RestartPipeline stops then starts a pipeline, resetting its counters.
func (e *Engine) RestartPipeline(ctx context.Context, name string) error {
	p, err := e.get(name)
	if err != nil {
		return err
	}
	if err := p.Stop(ctx); err != nil {
		return err
	}
	return p.Start(ctx)
}

// RemovePipeline stops a pipeline if needed and evicts it.
func (e *Engine) RemovePipeline(ctx context.Context, name string) error {
	e.mu.Lock()
	p, ok := e.pipelines[name]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("pipeline not found: %s", name)
	}
	delete(e.pipelines, name)
	e.mu.Unlock()

	if err := p.Stop(ctx); err != nil {
		e.log.Warningf("stopping removed pipeline %q: %v", name, err)
	}
	e.log.Infof("pipeline removed: %s", name)
	return nil
}

// ListPipelines returns the registered pipeline names, sorted.
func (e *Engine) ListPipelines() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	names := make([]string, 0, len(e.pipelines))
	for name := range e.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PipelineMetrics returns one pipeline's snapshot.
func (e *Engine) PipelineMetrics(name string) (pipeline.Metrics, error) {
	p, err := e.get(name)
	if err != nil {
		return pipeline.Metrics{}, err
	}
	return p.Metrics(), nil
}

// GetMetrics returns a snapshot of every pipeline, keyed by name.
func (e *Engine) GetMetrics() map[string]pipeline.Metrics {
	e.mu.Lock()
	snapshot := make([]*pipeline.Pipeline, 0, len(e.pipelines))
	for _, p := range e.pipelines {
		snapshot = append(snapshot, p)
	}
	e.mu.Unlock()

	out := make(map[string]pipeline.Metrics, len(snapshot))
	for _, p := range snapshot {
		out[p.Name()] = p.Metrics()
	}
	return out
}

// Shutdown stops every pipeline in parallel, bounded by the context
// deadline. Pipelines that fail to stop cleanly are reported but do not
// prevent the others from stopping.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	snapshot := make([]*pipeline.Pipeline, 0, len(e.pipelines))
	for _, p := range e.pipelines {
		snapshot = append(snapshot, p)
	}
	e.mu.Unlock()

	e.log.Infof("shutting down %d pipelines", len(snapshot))

	// A plain group: one pipeline failing to stop must not cut short the
	// shutdown of the others.
	var g errgroup.Group
	for _, p := range snapshot {
		p := p
		g.Go(func() error {
			if err := p.Stop(ctx); err != nil {
				return fmt.Errorf("pipeline %q: %w", p.Name(), err)
			}
			return nil
		})
	}

	err := g.Wait()
	e.log.Info("engine stopped")
	return err
}

func (e *Engine) get(name string) (*pipeline.Pipeline, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pipelines[name]
	if !ok {
		return nil, fmt.Errorf("pipeline not found: %s", name)
	}
	return p, nil
}
