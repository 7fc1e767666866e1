package pipeline

import (
	"sync"
	"sync/atomic"
	"time"
)

// metrics holds the per-pipeline counters. Counters are monotonically
// non-decreasing while the pipeline runs and reset to zero on restart.
type metrics struct {
	eventsProcessed  atomic.Uint64
	eventsDropped    atomic.Uint64
	processingErrors atomic.Uint64

	mu        sync.Mutex
	startTime time.Time
	stopTime  time.Time
}

func (m *metrics) reset(now time.Time) {
	m.eventsProcessed.Store(0)
	m.eventsDropped.Store(0)
	m.processingErrors.Store(0)
	m.mu.Lock()
	m.startTime = now
	m.stopTime = time.Time{}
	m.mu.Unlock()
}

func (m *metrics) markStopped(now time.Time) {
	m.mu.Lock()
	m.stopTime = now
	m.mu.Unlock()
}

func (m *metrics) uptime(now time.Time) time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startTime.IsZero() {
		return 0
	}
	if !m.stopTime.IsZero() {
		return m.stopTime.Sub(m.startTime)
	}
	return now.Sub(m.startTime)
}

// SourceMetrics is a point-in-time view of one source.
type SourceMetrics struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	EventsEmitted uint64 `json:"events_emitted"`
	Errors        uint64 `json:"errors"`
}

// SinkMetrics is a point-in-time view of one sink.
type SinkMetrics struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	WriteErrors uint64 `json:"write_errors"`
}

// Metrics is the point-in-time snapshot of a pipeline exposed to the Engine
// and the management surface.
type Metrics struct {
	Name             string  `json:"name"`
	State            string  `json:"state"`
	Running          bool    `json:"running"`
	Reason           string  `json:"reason,omitempty"`
	EventsProcessed  uint64  `json:"events_processed"`
	EventsDropped    uint64  `json:"events_dropped"`
	ProcessingErrors uint64  `json:"processing_errors"`
	UptimeSeconds    float64 `json:"uptime_seconds"`

	Sources    []SourceMetrics `json:"sources"`
	Processors int             `json:"processors"`
	Sinks      []SinkMetrics   `json:"sinks"`
}
