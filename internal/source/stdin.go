package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterSource("stdin", NewStdin)
}

// StdinConfig configures the stdin source.
type StdinConfig struct{}

// Stdin reads newline-delimited events from standard input. The reader is
// injectable for tests.
type Stdin struct {
	name   string
	reader io.Reader
	log    logger.ILogger
}

// NewStdin creates a stdin source.
func NewStdin(name string, cfg map[string]any, log logger.ILogger) (plugin.Source, error) {
	c := StdinConfig{}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("stdin source %q: %w", name, err)
	}
	return &Stdin{
		name:   name,
		reader: os.Stdin,
		log:    log.SubLogger("StdinSource"),
	}, nil
}

// NewStdinWithReader creates a stdin source over a custom reader (for
// testing).
func NewStdinWithReader(name string, reader io.Reader, log logger.ILogger) *Stdin {
	return &Stdin{
		name:   name,
		reader: reader,
		log:    log.SubLogger("StdinSource"),
	}
}

// Name returns the instance name.
func (s *Stdin) Name() string { return s.name }

// Open is a no-op.
func (s *Stdin) Open(ctx context.Context) error { return nil }

// Close is a no-op.
func (s *Stdin) Close(ctx context.Context) error { return nil }

// Run scans lines until EOF or cancellation. A clean EOF exhausts the
// source without error.
func (s *Stdin) Run(ctx context.Context, emit plugin.EmitFunc) error {
	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineCount := 0
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			s.log.Debugf("stdin source stopped: lines_read=%d", lineCount)
			return ctx.Err()
		default:
		}

		line := scanner.Text()
		if line == "" {
			continue
		}

		if err := emit(ctx, model.NewLogEvent(s.name, line)); err != nil {
			return err
		}
		lineCount++
	}

	if err := scanner.Err(); err != nil {
		s.log.Errorf("stdin read error: %v", err)
		return err
	}

	s.log.Infof("EOF reached: lines_read=%d", lineCount)
	return nil
}
