package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

// MemorySource emits a fixed set of raw lines and then exhausts cleanly.
type MemorySource struct {
	SourceName string
	Lines      []string

	// Gap, when set, paces the emissions.
	Gap time.Duration

	opened bool
	closed bool
}

// Name returns the configured source name.
func (s *MemorySource) Name() string { return s.SourceName }

// Open records the call.
func (s *MemorySource) Open(ctx context.Context) error {
	s.opened = true
	return nil
}

// Close records the call.
func (s *MemorySource) Close(ctx context.Context) error {
	s.closed = true
	return nil
}

// Opened reports whether Open ran.
func (s *MemorySource) Opened() bool { return s.opened }

// Closed reports whether Close ran.
func (s *MemorySource) Closed() bool { return s.closed }

// Run emits every line then returns nil.
func (s *MemorySource) Run(ctx context.Context, emit plugin.EmitFunc) error {
	for _, line := range s.Lines {
		if s.Gap > 0 {
			select {
			case <-time.After(s.Gap):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err := emit(ctx, model.NewLogEvent(s.SourceName, line)); err != nil {
			return err
		}
	}
	return nil
}

// MemorySink collects every batch it is given. WriteErr, when non-nil, is
// returned for the first FailWrites writes; WriteDelay stalls each write.
type MemorySink struct {
	SinkName   string
	WriteDelay time.Duration
	WriteErr   error
	FailWrites int

	mu       sync.Mutex
	batches  []model.Batch
	writes   int
	failures int
	opened   bool
	closed   bool
	flushed  bool
}

// Name returns the configured sink name.
func (s *MemorySink) Name() string { return s.SinkName }

// Open records the call.
func (s *MemorySink) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = true
	return nil
}

// Flush records the call.
func (s *MemorySink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = true
	return nil
}

// Close records the call.
func (s *MemorySink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Write collects the batch, honouring the configured delay and failure
// injection.
func (s *MemorySink) Write(ctx context.Context, batch model.Batch) error {
	if s.WriteDelay > 0 {
		select {
		case <-time.After(s.WriteDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes++

	if s.WriteErr != nil && s.failures < s.FailWrites {
		s.failures++
		return s.WriteErr
	}

	s.batches = append(s.batches, batch)
	return nil
}

// Batches returns a copy of the collected batches.
func (s *MemorySink) Batches() []model.Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Batch, len(s.batches))
	copy(out, s.batches)
	return out
}

// Events returns every collected event in delivery order.
func (s *MemorySink) Events() []*model.LogEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.LogEvent
	for _, b := range s.batches {
		out = append(out, b...)
	}
	return out
}

// Writes returns the number of Write calls, including failed ones.
func (s *MemorySink) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// Opened reports whether Open ran.
func (s *MemorySink) Opened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Closed reports whether Close ran.
func (s *MemorySink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Flushed reports whether Flush ran.
func (s *MemorySink) Flushed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushed
}
