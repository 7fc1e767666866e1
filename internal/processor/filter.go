package processor

import (
	"context"
	"fmt"
	"strings"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
	"github.com/logflow-dev/logflow/internal/processor/filterexpr"
)

func init() {
	plugin.RegisterProcessor("filter", NewFilter)
}

// FilterConfig configures the filter processor. Condition and Conditions
// are merged; every line of every condition string is a clause. Mode picks
// the operator joining the clauses.
type FilterConfig struct {
	Condition  string   `mapstructure:"condition"`
	Conditions []string `mapstructure:"conditions"`

	// Mode is "all" (clauses joined by and) or "any" (joined by or).
	Mode string `mapstructure:"mode"`

	// Negate wraps the whole composed expression in not.
	Negate bool `mapstructure:"negate"`
}

// Filter evaluates a boolean condition over event fields; events evaluating
// false are dropped.
type Filter struct {
	name    string
	mode    string
	negate  bool
	clauses []filterexpr.Expr
	log     logger.ILogger
}

// NewFilter compiles the filter's condition clauses. A clause that fails to
// parse rejects the configuration before the pipeline starts.
func NewFilter(name string, cfg map[string]any, log logger.ILogger) (plugin.Processor, error) {
	c := FilterConfig{Mode: "all"}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("filter processor %q: %w", name, err)
	}

	if c.Mode != "all" && c.Mode != "any" {
		return nil, plugin.Configf("filter processor %q: invalid mode %q", name, c.Mode)
	}

	raw := c.Conditions
	if c.Condition != "" {
		raw = append(raw, c.Condition)
	}

	var clauses []filterexpr.Expr
	for _, cond := range raw {
		for _, line := range strings.Split(cond, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			expr, err := filterexpr.Parse(line)
			if err != nil {
				return nil, plugin.Configf("filter processor %q: %v", name, err)
			}
			clauses = append(clauses, expr)
		}
	}
	if len(clauses) == 0 {
		return nil, plugin.Configf("filter processor %q: at least one condition is required", name)
	}

	return &Filter{
		name:    name,
		mode:    c.Mode,
		negate:  c.Negate,
		clauses: clauses,
		log:     log.SubLogger("FilterProcessor"),
	}, nil
}

// Name returns the instance name.
func (f *Filter) Name() string { return f.name }

// Open is a no-op; conditions were compiled by the factory.
func (f *Filter) Open(ctx context.Context) error { return nil }

// Close is a no-op.
func (f *Filter) Close() error { return nil }

// Process passes the event when the composed condition evaluates true and
// drops it otherwise.
func (f *Filter) Process(ctx context.Context, ev *model.LogEvent) ([]*model.LogEvent, error) {
	var result bool
	if f.mode == "all" {
		result = true
		for _, clause := range f.clauses {
			if !filterexpr.Eval(clause, ev) {
				result = false
				break
			}
		}
	} else {
		for _, clause := range f.clauses {
			if filterexpr.Eval(clause, ev) {
				result = true
				break
			}
		}
	}

	if f.negate {
		result = !result
	}
	if !result {
		return nil, nil
	}
	return one(ev), nil
}
