// Package model defines the core data structures that traverse a pipeline.
package model

import (
	"strings"
	"time"

	"github.com/hashicorp/go-uuid"
)

// LogEvent is the canonical record flowing from sources through processors to
// sinks. ID, Timestamp and Source are assigned at ingestion and are non-empty
// once the event is admitted to the processor chain.
type LogEvent struct {
	// ID is an opaque unique identifier, used only for logging and tracing.
	ID string

	// Timestamp is the event time in UTC. Sources that cannot supply an
	// event time leave it at arrival time.
	Timestamp time.Time

	// Source names the source plugin that produced the event.
	Source string

	// RawData is the original payload as delivered by the source.
	// It is never mutated after admission; processors that derive from it
	// write new fields instead.
	RawData string

	// Fields holds structured data extracted or derived by processors.
	// Values are JSON-compatible: string, int, float, bool, nil, slices,
	// nested maps.
	Fields map[string]any

	// Metadata carries out-of-band string annotations set by sources and
	// enrichers (origin host, partition, offset, ...).
	Metadata map[string]string

	// Tags are classification markers. Order is not significant.
	Tags []string
}

// NewLogEvent creates a LogEvent with a fresh ID, UTC arrival timestamp and
// initialized maps.
func NewLogEvent(source, raw string) *LogEvent {
	id, _ := uuid.GenerateUUID()
	return &LogEvent{
		ID:        id,
		Timestamp: time.Now().UTC(),
		Source:    source,
		RawData:   raw,
		Fields:    make(map[string]any),
		Metadata:  make(map[string]string),
	}
}

// GetField looks up a field by exact key or dotted path (a.b.c). A path that
// traverses a non-mapping is a miss, never an error.
func (e *LogEvent) GetField(path string) (any, bool) {
	if v, ok := e.Fields[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}

	parts := strings.Split(path, ".")
	var current any = e.Fields
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// SetField writes a field at an exact key or dotted path, creating
// intermediate mappings as needed. Writing through a non-mapping replaces it.
func (e *LogEvent) SetField(path string, value any) {
	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		e.Fields[path] = value
		return
	}

	current := e.Fields
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			next = make(map[string]any)
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// DeleteField removes a field by exact key or dotted path. Missing paths are
// a no-op.
func (e *LogEvent) DeleteField(path string) {
	if _, ok := e.Fields[path]; ok {
		delete(e.Fields, path)
		return
	}

	parts := strings.Split(path, ".")
	if len(parts) == 1 {
		return
	}

	current := e.Fields
	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part].(map[string]any)
		if !ok {
			return
		}
		current = next
	}
	delete(current, parts[len(parts)-1])
}

// AddTag appends a tag if it is not already present.
func (e *LogEvent) AddTag(tag string) {
	for _, t := range e.Tags {
		if t == tag {
			return
		}
	}
	e.Tags = append(e.Tags, tag)
}

// HasTag reports whether the event carries the given tag.
func (e *LogEvent) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone creates a deep copy of the LogEvent.
// Sinks that need to mutate a shared batch clone the events first.
func (e *LogEvent) Clone() *LogEvent {
	clone := &LogEvent{
		ID:        e.ID,
		Timestamp: e.Timestamp,
		Source:    e.Source,
		RawData:   e.RawData,
		Fields:    deepCopyMap(e.Fields),
		Metadata:  make(map[string]string, len(e.Metadata)),
		Tags:      make([]string, len(e.Tags)),
	}
	for k, v := range e.Metadata {
		clone.Metadata[k] = v
	}
	copy(clone.Tags, e.Tags)
	return clone
}

// ToMap flattens the event into a JSON-serializable document used by sinks.
func (e *LogEvent) ToMap() map[string]any {
	return map[string]any{
		"id":        e.ID,
		"timestamp": e.Timestamp.Format(time.RFC3339Nano),
		"source":    e.Source,
		"raw_data":  e.RawData,
		"fields":    e.Fields,
		"metadata":  e.Metadata,
		"tags":      e.Tags,
	}
}

func deepCopyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyMap(t)
	case []any:
		cp := make([]any, len(t))
		for i, item := range t {
			cp[i] = deepCopyValue(item)
		}
		return cp
	default:
		return v
	}
}
