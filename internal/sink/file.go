package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/natefinch/lumberjack"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterSink("file", NewFile)
}

// FileConfig configures the file sink.
type FileConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"` // "json" or "text"

	// Template renders the text format; {placeholders} refer to event
	// attributes and fields.
	Template     string `mapstructure:"template"`
	MessageField string `mapstructure:"message_field"`

	// Rotation knobs.
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

// WriterFactory creates the underlying writer; injectable for tests.
type WriterFactory func(cfg FileConfig) (io.WriteCloser, error)

// File writes batches to a rotating file as JSON lines or templated text.
type File struct {
	name    string
	cfg     FileConfig
	factory WriterFactory
	writer  io.WriteCloser
	mu      sync.Mutex
	log     logger.ILogger
}

// FileOption configures the File sink.
type FileOption func(*File)

// WithWriterFactory sets a custom factory for creating the writer.
func WithWriterFactory(f WriterFactory) FileOption {
	return func(s *File) { s.factory = f }
}

// NewFile creates a file sink from its opaque config mapping.
func NewFile(name string, cfg map[string]any, log logger.ILogger) (plugin.Sink, error) {
	c := FileConfig{
		Format:       "json",
		Template:     "{timestamp} {message}",
		MessageField: "message",
		MaxSizeMB:    100,
		MaxBackups:   3,
		MaxAgeDays:   7,
	}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("file sink %q: %w", name, err)
	}
	if c.Path == "" {
		return nil, plugin.Configf("file sink %q: path is required", name)
	}
	if c.Format != "json" && c.Format != "text" {
		return nil, plugin.Configf("file sink %q: invalid format %q", name, c.Format)
	}
	return NewFileWithOptions(name, c, log), nil
}

// NewFileWithOptions creates a file sink with explicit options.
func NewFileWithOptions(name string, cfg FileConfig, log logger.ILogger, opts ...FileOption) *File {
	s := &File{
		name: name,
		cfg:  cfg,
		log:  log.SubLogger("FileSink"),
	}

	s.factory = func(cfg FileConfig) (io.WriteCloser, error) {
		return &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}, nil
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the instance name.
func (s *File) Name() string { return s.name }

// Open creates the rotating writer.
func (s *File) Open(ctx context.Context) error {
	w, err := s.factory(s.cfg)
	if err != nil {
		return err
	}
	s.writer = w
	return nil
}

// Flush is a no-op; lumberjack writes through.
func (s *File) Flush(ctx context.Context) error { return nil }

// Close closes the writer.
func (s *File) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writer == nil {
		return nil
	}
	err := s.writer.Close()
	s.writer = nil
	return err
}

// Write appends every event of the batch as one line.
func (s *File) Write(ctx context.Context, batch model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.writer == nil {
		return plugin.Fatal(fmt.Errorf("file sink %q is not open", s.name))
	}

	for _, ev := range batch {
		var line []byte

		if s.cfg.Format == "json" {
			data, err := json.Marshal(ev.ToMap())
			if err != nil {
				return plugin.Fatal(err)
			}
			line = data
		} else {
			line = []byte(s.renderTemplate(ev))
		}

		if _, err := s.writer.Write(append(line, '\n')); err != nil {
			return plugin.Retryable(err)
		}
	}
	return nil
}

// renderTemplate substitutes {placeholder} references against the event's
// attributes and fields. Unresolved placeholders are left in place.
func (s *File) renderTemplate(ev *model.LogEvent) string {
	message := ev.RawData
	if v, ok := ev.GetField(s.cfg.MessageField); ok {
		message = fmt.Sprintf("%v", v)
	}

	pairs := []string{
		"{id}", ev.ID,
		"{timestamp}", ev.Timestamp.Format(time.RFC3339Nano),
		"{source}", ev.Source,
		"{raw_data}", ev.RawData,
		"{message}", message,
	}
	for k, v := range ev.Fields {
		pairs = append(pairs, "{"+k+"}", fmt.Sprintf("%v", v))
	}
	return strings.NewReplacer(pairs...).Replace(s.cfg.Template)
}
