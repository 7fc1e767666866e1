// Package source implements the built-in sources: file, stdin, syslog,
// kafka and s3. Each registers a factory in the plugin registry under its
// type-tag.
package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/gjson"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterSource("file", NewFile)
}

// FileConfig configures the file tailing source.
type FileConfig struct {
	// Path and Paths are merged; entries are glob patterns.
	Path  string   `mapstructure:"path"`
	Paths []string `mapstructure:"paths"`

	// Exclude patterns are matched against base names.
	Exclude []string `mapstructure:"exclude"`

	// ReadFromStart reads existing content instead of tailing from EOF.
	ReadFromStart bool `mapstructure:"read_from_start"`

	// Format "json" lifts hints from JSON lines without a full parse: an
	// RFC 3339 "timestamp" becomes the event timestamp and "message" goes
	// into metadata.
	Format string `mapstructure:"format"`
}

// File tails files matching the configured glob patterns, following writes,
// rotation and truncation via fsnotify.
type File struct {
	name string
	cfg  FileConfig
	log  logger.ILogger

	mu        sync.Mutex
	positions map[string]int64
}

// NewFile creates a file source from its opaque config mapping.
func NewFile(name string, cfg map[string]any, log logger.ILogger) (plugin.Source, error) {
	c := FileConfig{Format: "raw"}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("file source %q: %w", name, err)
	}
	if c.Path != "" {
		c.Paths = append(c.Paths, c.Path)
	}
	if len(c.Paths) == 0 {
		return nil, plugin.Configf("file source %q: at least one path is required", name)
	}
	if c.Format != "raw" && c.Format != "json" {
		return nil, plugin.Configf("file source %q: invalid format %q", name, c.Format)
	}

	return &File{
		name:      name,
		cfg:       c,
		log:       log.SubLogger("FileSource"),
		positions: make(map[string]int64),
	}, nil
}

// Name returns the instance name.
func (f *File) Name() string { return f.name }

// Open verifies the glob patterns are well-formed. Matching no files is not
// an error; files may appear later.
func (f *File) Open(ctx context.Context) error {
	for _, pattern := range f.cfg.Paths {
		if _, err := filepath.Glob(pattern); err != nil {
			return fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
	}
	return nil
}

// Close releases nothing; the watcher lives inside Run.
func (f *File) Close(ctx context.Context) error { return nil }

// Run watches and tails the matched files until the context is cancelled.
func (f *File) Run(ctx context.Context, emit plugin.EmitFunc) error {
	files := f.expand()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating file watcher: %w", err)
	}
	defer watcher.Close()

	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}

		start := info.Size()
		if f.cfg.ReadFromStart {
			start = 0
		}
		f.setPos(file, start)

		if err := watcher.Add(file); err != nil {
			f.log.Warningf("watching file %q: %v", file, err)
		}
	}

	// Watch parent directories so newly created files get picked up.
	dirs := make(map[string]struct{})
	for _, pattern := range f.cfg.Paths {
		dirs[filepath.Dir(pattern)] = struct{}{}
	}
	for dir := range dirs {
		_ = watcher.Add(dir)
	}

	// Initial read of pre-existing content when starting from zero.
	if f.cfg.ReadFromStart {
		for _, file := range files {
			if err := f.readNewLines(ctx, file, emit); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				f.log.Debugf("initial read of %q: %v", file, err)
			}
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Op&fsnotify.Write != 0 {
				if err := f.readNewLines(ctx, event.Name, emit); err != nil && ctx.Err() != nil {
					return ctx.Err()
				}
			}

			if event.Op&fsnotify.Create != 0 {
				if f.matches(event.Name) && !f.excluded(event.Name) {
					f.setPos(event.Name, 0)
					_ = watcher.Add(event.Name)
					if err := f.readNewLines(ctx, event.Name, emit); err != nil && ctx.Err() != nil {
						return ctx.Err()
					}
				}
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			f.log.Warningf("fsnotify error: %v", err)
		}
	}
}

// readNewLines reads content appended since the last recorded position,
// handling truncation as rotation.
func (f *File) readNewLines(ctx context.Context, path string, emit plugin.EmitFunc) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	pos := f.getPos(path)

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() < pos {
		pos = 0 // truncated, start over
	}

	if _, err := file.Seek(pos, io.SeekStart); err != nil {
		return err
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		ev := model.NewLogEvent(f.name, line)
		ev.Metadata["file"] = path
		f.applyHints(ev, line)

		if err := emit(ctx, ev); err != nil {
			return err
		}
	}

	newPos, _ := file.Seek(0, io.SeekCurrent)
	f.setPos(path, newPos)
	return scanner.Err()
}

// applyHints lifts timestamp and message hints from JSON-formatted lines.
func (f *File) applyHints(ev *model.LogEvent, line string) {
	if f.cfg.Format != "json" || !gjson.Valid(line) {
		return
	}
	if ts := gjson.Get(line, "timestamp"); ts.Exists() {
		if t, err := time.Parse(time.RFC3339, ts.String()); err == nil {
			ev.Timestamp = t.UTC()
		}
	}
	if msg := gjson.Get(line, "message"); msg.Exists() {
		ev.Metadata["message"] = msg.String()
	}
}

func (f *File) expand() []string {
	var files []string
	for _, pattern := range f.cfg.Paths {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if !f.excluded(m) {
				files = append(files, m)
			}
		}
	}
	return files
}

func (f *File) matches(path string) bool {
	for _, pattern := range f.cfg.Paths {
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
		if ok, _ := filepath.Match(filepath.Base(pattern), filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

func (f *File) excluded(path string) bool {
	for _, pattern := range f.cfg.Exclude {
		if ok, _ := filepath.Match(pattern, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

func (f *File) getPos(path string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions[path]
}

func (f *File) setPos(path string, pos int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions[path] = pos
}
