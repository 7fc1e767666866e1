package config

import (
	"context"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/fsnotify/fsnotify"
)

// PipelineChange carries a reloaded pipeline document.
type PipelineChange struct {
	Path     string
	Pipeline *Pipeline
}

// PipelineWatcher watches pipeline document files for changes and reloads
// them, debouncing rapid editor write bursts.
type PipelineWatcher struct {
	paths    []string
	onChange chan PipelineChange
	onError  chan error
	debounce time.Duration
	logger   logger.ILogger

	mu      sync.Mutex
	pending map[string]struct{}
}

// NewPipelineWatcher creates a watcher over the given pipeline files.
func NewPipelineWatcher(paths []string, log logger.ILogger) *PipelineWatcher {
	return &PipelineWatcher{
		paths:    paths,
		onChange: make(chan PipelineChange, 1),
		onError:  make(chan error, 1),
		debounce: 100 * time.Millisecond,
		logger:   log.SubLogger("PipelineWatcher"),
		pending:  make(map[string]struct{}),
	}
}

// Changes returns the channel receiving reloaded pipeline documents.
func (w *PipelineWatcher) Changes() <-chan PipelineChange {
	return w.onChange
}

// Errors returns the channel receiving reload errors.
func (w *PipelineWatcher) Errors() <-chan error {
	return w.onError
}

// Start begins watching the pipeline files.
func (w *PipelineWatcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	for _, path := range w.paths {
		if err := watcher.Add(path); err != nil {
			watcher.Close()
			return err
		}
	}

	w.logger.Debugf("watching %d pipeline files", len(w.paths))
	go w.watchLoop(ctx, watcher)
	return nil
}

// watchLoop handles file system events.
func (w *PipelineWatcher) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	var debounceTimer *time.Timer
	var debounceChan <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			w.logger.Debug("pipeline watcher stopped")
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			w.logger.Debugf("pipeline file change detected: path=%s, op=%s", event.Name, event.Op)

			w.mu.Lock()
			w.pending[event.Name] = struct{}{}
			w.mu.Unlock()

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounce)
			debounceChan = debounceTimer.C

		case <-debounceChan:
			debounceChan = nil
			w.reloadPending()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("fsnotify error: %v", err)
			select {
			case w.onError <- err:
			default:
			}
		}
	}
}

// reloadPending loads every changed file and publishes the results.
func (w *PipelineWatcher) reloadPending() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	for _, path := range paths {
		p, err := LoadPipelineFile(path)
		if err != nil {
			w.logger.Errorf("failed to reload pipeline %s: %v", path, err)
			select {
			case w.onError <- err:
			default:
			}
			continue
		}

		w.logger.Infof("pipeline reloaded: path=%s, name=%s", path, p.Name)

		select {
		case w.onChange <- PipelineChange{Path: path, Pipeline: p}:
		default:
			w.logger.Warning("pipeline change channel full, dropping update")
		}
	}
}
