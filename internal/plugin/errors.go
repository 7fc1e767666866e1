package plugin

import (
	"errors"
	"fmt"
)

// ConfigError marks a failure to validate or decode declarative
// configuration. Pipelines carrying one never get constructed.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string { return e.Err.Error() }
func (e *ConfigError) Unwrap() error { return e.Err }

// Configf builds a ConfigError from a format string.
func Configf(format string, args ...any) error {
	return &ConfigError{Err: fmt.Errorf(format, args...)}
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// SinkError classifies a sink write failure. Retryable failures are retried
// with bounded backoff before the batch is dropped; fatal failures stop the
// pipeline.
type SinkError struct {
	Err       error
	Retryable bool
}

func (e *SinkError) Error() string { return e.Err.Error() }
func (e *SinkError) Unwrap() error { return e.Err }

// Retryable wraps err as a transient sink failure (timeout, 5xx, reset).
func Retryable(err error) error {
	return &SinkError{Err: err, Retryable: true}
}

// Fatal wraps err as a permanent sink failure (auth, permanent refusal).
func Fatal(err error) error {
	return &SinkError{Err: err, Retryable: false}
}

// IsFatal reports whether err carries a non-retryable sink classification.
// Unclassified errors are treated as retryable.
func IsFatal(err error) bool {
	var se *SinkError
	if errors.As(err, &se) {
		return !se.Retryable
	}
	return false
}
