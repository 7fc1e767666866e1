// Package sink implements the built-in sinks: stdout, file, elasticsearch,
// opensearch, redis and s3. Each registers a factory in the plugin registry
// under its type-tag.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterSink("stdout", NewStdout)
}

// StdoutConfig configures the stdout sink.
type StdoutConfig struct {
	Format string `mapstructure:"format"` // "json" or "text"
}

// Stdout writes batches to standard output. The writer is injectable for
// tests.
type Stdout struct {
	name   string
	cfg    StdoutConfig
	writer io.Writer
	mu     sync.Mutex
	log    logger.ILogger
}

// NewStdout creates a stdout sink from its opaque config mapping.
func NewStdout(name string, cfg map[string]any, log logger.ILogger) (plugin.Sink, error) {
	c := StdoutConfig{Format: "json"}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("stdout sink %q: %w", name, err)
	}
	if c.Format != "json" && c.Format != "text" {
		return nil, plugin.Configf("stdout sink %q: invalid format %q", name, c.Format)
	}
	return &Stdout{
		name:   name,
		cfg:    c,
		writer: os.Stdout,
		log:    log.SubLogger("StdoutSink"),
	}, nil
}

// NewStdoutWithWriter creates a stdout sink with a custom writer (for
// testing).
func NewStdoutWithWriter(name string, cfg StdoutConfig, w io.Writer, log logger.ILogger) *Stdout {
	return &Stdout{
		name:   name,
		cfg:    cfg,
		writer: w,
		log:    log.SubLogger("StdoutSink"),
	}
}

// Name returns the instance name.
func (s *Stdout) Name() string { return s.name }

// Open is a no-op.
func (s *Stdout) Open(ctx context.Context) error { return nil }

// Flush is a no-op; writes are unbuffered.
func (s *Stdout) Flush(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *Stdout) Close(ctx context.Context) error { return nil }

// Write serializes every event of the batch, one line each.
func (s *Stdout) Write(ctx context.Context, batch model.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, ev := range batch {
		var line []byte
		var err error

		switch s.cfg.Format {
		case "text":
			line = []byte(fmt.Sprintf("[%s] [%s] %s", ev.Timestamp.Format(time.RFC3339), ev.Source, ev.RawData))
		default:
			line, err = json.Marshal(ev.ToMap())
			if err != nil {
				return plugin.Fatal(err)
			}
		}

		if _, err := s.writer.Write(append(line, '\n')); err != nil {
			return plugin.Retryable(err)
		}
	}
	return nil
}
