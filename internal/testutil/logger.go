// Package testutil provides shared helpers for tests: a silent logger and
// in-memory source/sink plugins for exercising the pipeline runtime.
package testutil

import (
	"io"

	"github.com/GabrielNunesIT/go-libs/logger"
)

// NewTestLogger creates a logger that discards output, suitable for tests.
func NewTestLogger() logger.ILogger {
	return logger.NewConsoleLogger(io.Discard)
}
