package processor

import (
	"context"
	"fmt"
	"regexp"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterProcessor("regex", NewRegex)
}

// RegexConfig configures the regex processor. Pattern and Patterns are
// merged; patterns use named capture groups and the first match wins.
type RegexConfig struct {
	Field    string   `mapstructure:"field"`
	Pattern  string   `mapstructure:"pattern"`
	Patterns []string `mapstructure:"patterns"`

	// TargetField, when set, namespaces the captures under one field
	// instead of writing them at top level.
	TargetField      string `mapstructure:"target_field"`
	PreserveOriginal bool   `mapstructure:"preserve_original"`
	IgnoreErrors     bool   `mapstructure:"ignore_errors"`
}

// Regex extracts fields with named-capture patterns.
type Regex struct {
	name     string
	cfg      RegexConfig
	patterns []*regexp.Regexp
	log      logger.ILogger
}

// NewRegex compiles the configured patterns; an invalid pattern rejects the
// configuration before the pipeline starts.
func NewRegex(name string, cfg map[string]any, log logger.ILogger) (plugin.Processor, error) {
	c := RegexConfig{
		Field:            rawDataField,
		PreserveOriginal: true,
	}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("regex processor %q: %w", name, err)
	}
	if c.Field == "" {
		c.Field = rawDataField
	}

	raw := c.Patterns
	if c.Pattern != "" {
		raw = append(raw, c.Pattern)
	}
	if len(raw) == 0 {
		return nil, plugin.Configf("regex processor %q: at least one pattern is required", name)
	}

	r := &Regex{name: name, cfg: c, log: log.SubLogger("RegexProcessor")}
	for _, p := range raw {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, plugin.Configf("regex processor %q: invalid pattern %q: %v", name, p, err)
		}
		r.patterns = append(r.patterns, re)
	}
	return r, nil
}

// Name returns the instance name.
func (r *Regex) Name() string { return r.name }

// Open is a no-op; patterns were compiled by the factory.
func (r *Regex) Open(ctx context.Context) error { return nil }

// Close is a no-op.
func (r *Regex) Close() error { return nil }

// Process tries each pattern against the source field and writes the named
// captures of the first match as fields.
func (r *Regex) Process(ctx context.Context, ev *model.LogEvent) ([]*model.LogEvent, error) {
	text, ok := sourceString(ev, r.cfg.Field)
	if !ok {
		return one(ev), nil
	}

	for _, re := range r.patterns {
		match := re.FindStringSubmatch(text)
		if match == nil {
			continue
		}

		captures := make(map[string]any)
		for i, groupName := range re.SubexpNames() {
			if i == 0 || groupName == "" || i >= len(match) {
				continue
			}
			captures[groupName] = match[i]
		}

		if r.cfg.TargetField != "" {
			ev.SetField(r.cfg.TargetField, captures)
		} else {
			for k, v := range captures {
				ev.Fields[k] = v
			}
		}

		if !r.cfg.PreserveOriginal && r.cfg.Field != rawDataField {
			ev.DeleteField(r.cfg.Field)
		}
		break
	}

	return one(ev), nil
}
