package processor

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterProcessor("mutate", NewMutate)
}

// MutateConfig configures the mutate processor. The operations apply in a
// fixed order that is part of the contract:
// rename, convert, uppercase, lowercase, strip, gsub, merge, split, add,
// remove. An empty config is the identity.
type MutateConfig struct {
	RenameFields    map[string]string `mapstructure:"rename_fields"`
	ConvertFields   map[string]string `mapstructure:"convert_fields"`
	UppercaseFields []string          `mapstructure:"uppercase_fields"`
	LowercaseFields []string          `mapstructure:"lowercase_fields"`
	StripFields     []string          `mapstructure:"strip_fields"`

	// GsubFields maps field -> [pattern, replacement].
	GsubFields map[string][]string `mapstructure:"gsub_fields"`

	// MergeFields maps target -> source fields joined with spaces.
	MergeFields map[string][]string `mapstructure:"merge_fields"`

	// SplitFields maps field -> [separator, limit].
	SplitFields map[string][]string `mapstructure:"split_fields"`

	AddFields    map[string]any `mapstructure:"add_fields"`
	RemoveFields []string       `mapstructure:"remove_fields"`
}

type gsubRule struct {
	re          *regexp.Regexp
	replacement string
}

type splitRule struct {
	separator string
	limit     int
}

// Mutate performs structural field edits.
type Mutate struct {
	name  string
	cfg   MutateConfig
	gsub  map[string]gsubRule
	split map[string]splitRule
	log   logger.ILogger
}

// NewMutate validates and compiles the edit rules.
func NewMutate(name string, cfg map[string]any, log logger.ILogger) (plugin.Processor, error) {
	c := MutateConfig{}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("mutate processor %q: %w", name, err)
	}

	m := &Mutate{
		name:  name,
		cfg:   c,
		gsub:  make(map[string]gsubRule, len(c.GsubFields)),
		split: make(map[string]splitRule, len(c.SplitFields)),
		log:   log.SubLogger("MutateProcessor"),
	}

	for field, typeName := range c.ConvertFields {
		switch typeName {
		case "int", "float", "string", "bool":
		default:
			return nil, plugin.Configf("mutate processor %q: convert_fields.%s: unsupported type %q", name, field, typeName)
		}
	}

	for field, rule := range c.GsubFields {
		if len(rule) != 2 {
			return nil, plugin.Configf("mutate processor %q: gsub_fields.%s must be [pattern, replacement]", name, field)
		}
		re, err := regexp.Compile(rule[0])
		if err != nil {
			return nil, plugin.Configf("mutate processor %q: gsub_fields.%s: invalid pattern: %v", name, field, err)
		}
		m.gsub[field] = gsubRule{re: re, replacement: rule[1]}
	}

	for field, rule := range c.SplitFields {
		if len(rule) != 2 {
			return nil, plugin.Configf("mutate processor %q: split_fields.%s must be [separator, limit]", name, field)
		}
		limit, err := strconv.Atoi(rule[1])
		if err != nil {
			return nil, plugin.Configf("mutate processor %q: split_fields.%s: limit must be an integer", name, field)
		}
		m.split[field] = splitRule{separator: rule[0], limit: limit}
	}

	return m, nil
}

// Name returns the instance name.
func (m *Mutate) Name() string { return m.name }

// Open is a no-op; rules were compiled by the factory.
func (m *Mutate) Open(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *Mutate) Close() error { return nil }

// Process applies the edits in contract order.
func (m *Mutate) Process(ctx context.Context, ev *model.LogEvent) ([]*model.LogEvent, error) {
	for oldName, newName := range m.cfg.RenameFields {
		if v, ok := ev.GetField(oldName); ok {
			ev.DeleteField(oldName)
			ev.SetField(newName, v)
		}
	}

	for field, typeName := range m.cfg.ConvertFields {
		v, ok := ev.GetField(field)
		if !ok {
			continue
		}
		converted, err := convertValue(v, typeName)
		if err != nil {
			// Conversion failures annotate the event and keep the
			// original value.
			ev.Metadata["convert_error_"+field] = err.Error()
			continue
		}
		ev.SetField(field, converted)
	}

	m.eachString(ev, m.cfg.UppercaseFields, strings.ToUpper)
	m.eachString(ev, m.cfg.LowercaseFields, strings.ToLower)
	m.eachString(ev, m.cfg.StripFields, strings.TrimSpace)

	for field, rule := range m.gsub {
		if s, ok := ev.GetField(field); ok {
			if str, isStr := s.(string); isStr {
				ev.SetField(field, rule.re.ReplaceAllString(str, rule.replacement))
			}
		}
	}

	for target, sources := range m.cfg.MergeFields {
		var parts []string
		for _, src := range sources {
			if v, ok := ev.GetField(src); ok {
				parts = append(parts, fmt.Sprintf("%v", v))
			}
		}
		if len(parts) > 0 {
			ev.SetField(target, strings.Join(parts, " "))
		}
	}

	for field, rule := range m.split {
		if s, ok := ev.GetField(field); ok {
			if str, isStr := s.(string); isStr {
				parts := splitWithLimit(str, rule.separator, rule.limit)
				out := make([]any, len(parts))
				for i, p := range parts {
					out[i] = p
				}
				ev.SetField(field, out)
			}
		}
	}

	for field, v := range m.cfg.AddFields {
		ev.SetField(field, v)
	}

	for _, field := range m.cfg.RemoveFields {
		ev.DeleteField(field)
	}

	return one(ev), nil
}

func (m *Mutate) eachString(ev *model.LogEvent, fields []string, fn func(string) string) {
	for _, field := range fields {
		if v, ok := ev.GetField(field); ok {
			if s, isStr := v.(string); isStr {
				ev.SetField(field, fn(s))
			}
		}
	}
}

// splitWithLimit splits s at most limit times, giving at most limit+1
// parts, and treats limit <= 0 as unbounded, matching how pipeline
// documents in the wild write it.
func splitWithLimit(s, sep string, limit int) []string {
	if limit <= 0 {
		return strings.Split(s, sep)
	}
	return strings.SplitN(s, sep, limit+1)
}

// convertValue coerces a field value to the requested type.
func convertValue(v any, typeName string) (any, error) {
	switch typeName {
	case "int":
		switch t := v.(type) {
		case int:
			return int64(t), nil
		case int64:
			return t, nil
		case float64:
			return int64(t), nil
		case bool:
			if t {
				return int64(1), nil
			}
			return int64(0), nil
		case string:
			n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to int", t)
			}
			return n, nil
		}
	case "float":
		switch t := v.(type) {
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		case float64:
			return t, nil
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to float", t)
			}
			return f, nil
		}
	case "string":
		return fmt.Sprintf("%v", v), nil
	case "bool":
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(t)) {
			case "true", "yes", "y", "1":
				return true, nil
			default:
				return false, nil
			}
		case int:
			return t != 0, nil
		case int64:
			return t != 0, nil
		case float64:
			return t != 0, nil
		}
	}
	return nil, fmt.Errorf("cannot convert %T to %s", v, typeName)
}
