package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterProcessor("json", NewJSON)
}

// JSONConfig configures the json processor.
type JSONConfig struct {
	// Field is the source path holding the JSON text.
	Field string `mapstructure:"field"`

	// TargetField is the destination path. Empty means merge a parsed
	// object into the event's top-level fields; on key collision the
	// parsed value wins.
	TargetField string `mapstructure:"target_field"`

	// PreserveOriginal keeps the source field after a successful parse.
	PreserveOriginal bool `mapstructure:"preserve_original"`

	// IgnoreErrors passes events through on parse failure, with the parse
	// error recorded in the json_error metadata entry, instead of surfacing
	// the error.
	IgnoreErrors bool `mapstructure:"ignore_errors"`
}

// JSON parses JSON text out of a source field into structured fields.
type JSON struct {
	name string
	cfg  JSONConfig
	log  logger.ILogger
}

// NewJSON creates a json processor from its opaque config mapping.
func NewJSON(name string, cfg map[string]any, log logger.ILogger) (plugin.Processor, error) {
	c := JSONConfig{
		Field:            rawDataField,
		PreserveOriginal: true,
	}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("json processor %q: %w", name, err)
	}
	if c.Field == "" {
		c.Field = rawDataField
	}
	return &JSON{name: name, cfg: c, log: log.SubLogger("JSONProcessor")}, nil
}

// Name returns the instance name.
func (j *JSON) Name() string { return j.name }

// Open is a no-op; the json processor has no compiled state.
func (j *JSON) Open(ctx context.Context) error { return nil }

// Close is a no-op.
func (j *JSON) Close() error { return nil }

// Process parses the configured field. Parse failures either pass through
// with a json_error metadata entry (ignore_errors) or surface as a
// processor error for this event.
func (j *JSON) Process(ctx context.Context, ev *model.LogEvent) ([]*model.LogEvent, error) {
	raw, ok := sourceString(ev, j.cfg.Field)
	if !ok {
		return one(ev), nil
	}

	var parsed any
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		if j.cfg.IgnoreErrors {
			ev.Metadata["json_error"] = err.Error()
			return one(ev), nil
		}
		return one(ev), fmt.Errorf("parsing JSON from field %q: %w", j.cfg.Field, err)
	}

	if j.cfg.TargetField != "" {
		ev.SetField(j.cfg.TargetField, parsed)
	} else if obj, isObj := parsed.(map[string]any); isObj {
		// Merge at top level; parsed values win over existing keys.
		for k, v := range obj {
			ev.Fields[k] = v
		}
	} else {
		ev.SetField("value", parsed)
	}

	if !j.cfg.PreserveOriginal && j.cfg.Field != rawDataField {
		ev.DeleteField(j.cfg.Field)
	}

	return one(ev), nil
}
