// Package processor implements the built-in event transformations: json,
// filter, regex, grok, mutate and enrich. Each registers a factory in the
// plugin registry under its type-tag.
package processor

import (
	"github.com/logflow-dev/logflow/internal/model"
)

// rawDataField is the pseudo field name addressing the event's raw payload.
const rawDataField = "raw_data"

// sourceValue resolves a processor's configured source field, treating
// "raw_data" as the raw payload. The second return reports presence; an
// empty raw payload counts as absent so processors pass such events through.
func sourceValue(ev *model.LogEvent, field string) (any, bool) {
	if field == rawDataField {
		if ev.RawData == "" {
			return nil, false
		}
		return ev.RawData, true
	}
	v, ok := ev.GetField(field)
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// sourceString is sourceValue narrowed to string-typed use sites.
func sourceString(ev *model.LogEvent, field string) (string, bool) {
	v, ok := sourceValue(ev, field)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// one wraps a single event into the slice shape Process returns.
func one(ev *model.LogEvent) []*model.LogEvent {
	return []*model.LogEvent{ev}
}
