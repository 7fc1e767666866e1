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
	plugin.RegisterProcessor("grok", NewGrok)
}

// GrokConfig configures the grok processor.
type GrokConfig struct {
	Field    string   `mapstructure:"field"`
	Patterns []string `mapstructure:"patterns"`

	// CustomPatterns extends (and may shadow) the bundled catalogue.
	CustomPatterns map[string]string `mapstructure:"custom_patterns"`

	TargetField      string `mapstructure:"target_field"`
	PreserveOriginal bool   `mapstructure:"preserve_original"`
	IgnoreErrors     bool   `mapstructure:"ignore_errors"`

	// BreakOnMatch stops after the first matching pattern.
	BreakOnMatch bool `mapstructure:"break_on_match"`
}

// grokPattern is one compiled pattern plus the capture type hints declared
// with the %{NAME:field:type} syntax.
type grokPattern struct {
	re    *regexp.Regexp
	types map[string]string
}

// Grok extracts fields using a catalogue of named sub-patterns expanded into
// plain regular expressions at open time.
type Grok struct {
	name     string
	cfg      GrokConfig
	compiled []grokPattern
	log      logger.ILogger
}

// grokRefRe matches %{PATTERN}, %{PATTERN:field} and %{PATTERN:field:type}.
var grokRefRe = regexp.MustCompile(`%\{(\w+)(?::([\w@.]+))?(?::(int|float|string))?\}`)

// NewGrok expands and compiles the configured patterns; unknown pattern
// references and invalid expansions reject the configuration.
func NewGrok(name string, cfg map[string]any, log logger.ILogger) (plugin.Processor, error) {
	c := GrokConfig{
		Field:            rawDataField,
		PreserveOriginal: true,
		BreakOnMatch:     true,
	}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("grok processor %q: %w", name, err)
	}
	if c.Field == "" {
		c.Field = rawDataField
	}
	if len(c.Patterns) == 0 {
		return nil, plugin.Configf("grok processor %q: at least one pattern is required", name)
	}

	catalogue := make(map[string]string, len(defaultGrokPatterns)+len(c.CustomPatterns))
	for k, v := range defaultGrokPatterns {
		catalogue[k] = v
	}
	for k, v := range c.CustomPatterns {
		catalogue[k] = v
	}

	g := &Grok{name: name, cfg: c, log: log.SubLogger("GrokProcessor")}
	for _, p := range c.Patterns {
		expanded, types, err := expandGrok(p, catalogue)
		if err != nil {
			return nil, plugin.Configf("grok processor %q: pattern %q: %v", name, p, err)
		}
		re, err := regexp.Compile(expanded)
		if err != nil {
			return nil, plugin.Configf("grok processor %q: pattern %q expands to invalid regexp: %v", name, p, err)
		}
		g.compiled = append(g.compiled, grokPattern{re: re, types: types})
	}
	return g, nil
}

// expandGrok rewrites %{PATTERN:field:type} references into named capture
// groups, resolving nested catalogue references up to a fixed depth.
func expandGrok(pattern string, catalogue map[string]string) (string, map[string]string, error) {
	types := make(map[string]string)
	expanded := pattern

	const maxDepth = 10
	for depth := 0; strings.Contains(expanded, "%{"); depth++ {
		if depth >= maxDepth {
			return "", nil, fmt.Errorf("pattern nesting exceeds depth %d (reference cycle?)", maxDepth)
		}

		var expandErr error
		expanded = grokRefRe.ReplaceAllStringFunc(expanded, func(ref string) string {
			m := grokRefRe.FindStringSubmatch(ref)
			patName, fieldName, typeName := m[1], m[2], m[3]

			def, ok := catalogue[patName]
			if !ok {
				expandErr = fmt.Errorf("unknown pattern %q", patName)
				return ref
			}

			if fieldName == "" {
				return "(?:" + def + ")"
			}
			if typeName != "" && typeName != "string" {
				types[fieldName] = typeName
			}
			// Regexp group names cannot carry dots or @.
			group := strings.NewReplacer(".", "_", "@", "_").Replace(fieldName)
			return "(?P<" + group + ">" + def + ")"
		})
		if expandErr != nil {
			return "", nil, expandErr
		}
	}
	return expanded, types, nil
}

// Name returns the instance name.
func (g *Grok) Name() string { return g.name }

// Open is a no-op; patterns were compiled by the factory.
func (g *Grok) Open(ctx context.Context) error { return nil }

// Close is a no-op.
func (g *Grok) Close() error { return nil }

// Process matches each compiled pattern against the source field, writing
// captures as fields with their declared types.
func (g *Grok) Process(ctx context.Context, ev *model.LogEvent) ([]*model.LogEvent, error) {
	text, ok := sourceString(ev, g.cfg.Field)
	if !ok {
		return one(ev), nil
	}

	matched := false
	for _, gp := range g.compiled {
		match := gp.re.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		matched = true

		captures := make(map[string]any)
		for i, groupName := range gp.re.SubexpNames() {
			if i == 0 || groupName == "" || i >= len(match) || match[i] == "" {
				continue
			}
			captures[groupName] = convertCapture(match[i], gp.types[groupName])
		}

		if g.cfg.TargetField != "" {
			ev.SetField(g.cfg.TargetField, captures)
		} else {
			for k, v := range captures {
				ev.Fields[k] = v
			}
		}

		if g.cfg.BreakOnMatch {
			break
		}
	}

	if matched && !g.cfg.PreserveOriginal && g.cfg.Field != rawDataField {
		ev.DeleteField(g.cfg.Field)
	}

	return one(ev), nil
}

// convertCapture applies a %{NAME:field:type} type hint to a raw capture.
// Unparseable values keep their string form.
func convertCapture(raw, typeName string) any {
	switch typeName {
	case "int":
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	case "float":
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}
