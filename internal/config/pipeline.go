package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Overflow policies applied by the batcher when a sink queue is full.
const (
	OverflowBlock      = "block"
	OverflowDropOldest = "drop_oldest"
	OverflowDropNew    = "drop_new"
)

// Runtime defaults for pipeline tuning knobs.
const (
	DefaultBatchSize    = 100
	DefaultBatchTimeout = 5 * time.Second
	DefaultStopGrace    = 30 * time.Second
	DefaultWriteTimeout = 10 * time.Second
	DefaultSinkQueue    = 2
)

// PluginRef is one plugin record in a pipeline document. Type is the
// registry key; Config is the opaque mapping handed to the factory.
type PluginRef struct {
	Name   string         `yaml:"name" json:"name"`
	Type   string         `yaml:"type" json:"type"`
	Config map[string]any `yaml:"config" json:"config"`
}

// Pipeline is the declarative description of one pipeline.
type Pipeline struct {
	Name       string      `yaml:"name" json:"name"`
	Sources    []PluginRef `yaml:"sources" json:"sources"`
	Processors []PluginRef `yaml:"processors" json:"processors"`
	Sinks      []PluginRef `yaml:"sinks" json:"sinks"`

	BatchSize      int      `yaml:"batch_size" json:"batch_size"`
	BatchTimeout   Duration `yaml:"batch_timeout" json:"batch_timeout"`
	OverflowPolicy string   `yaml:"overflow_policy" json:"overflow_policy"`

	// Workers fans the processor driver out; order across workers is not
	// guaranteed.
	Workers      int      `yaml:"workers" json:"workers"`
	StopGrace    Duration `yaml:"stop_grace" json:"stop_grace"`
	WriteTimeout Duration `yaml:"write_timeout" json:"write_timeout"`

	// Queue capacities. Zero means derive from batch_size
	// (ingest 10x, out 4x) or use the default sink queue depth.
	IngestQueue int `yaml:"ingest_queue" json:"ingest_queue"`
	OutQueue    int `yaml:"out_queue" json:"out_queue"`
	SinkQueue   int `yaml:"sink_queue" json:"sink_queue"`
}

// LoadPipelineFile reads and validates one pipeline document.
func LoadPipelineFile(path string) (*Pipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading pipeline config: %w", err)
	}
	return ParsePipeline(data)
}

// ParsePipeline parses a YAML pipeline document, applies defaults and
// validates it.
func ParsePipeline(data []byte) (*Pipeline, error) {
	var p Pipeline
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing pipeline config: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate applies defaults and checks structural requirements.
func (p *Pipeline) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}
	if len(p.Sources) == 0 {
		return fmt.Errorf("pipeline %q: at least one source is required", p.Name)
	}
	if len(p.Sinks) == 0 {
		return fmt.Errorf("pipeline %q: at least one sink is required", p.Name)
	}

	for i, ref := range p.Sources {
		if err := ref.validate("source", i); err != nil {
			return fmt.Errorf("pipeline %q: %w", p.Name, err)
		}
	}
	for i, ref := range p.Processors {
		if err := ref.validate("processor", i); err != nil {
			return fmt.Errorf("pipeline %q: %w", p.Name, err)
		}
	}
	for i, ref := range p.Sinks {
		if err := ref.validate("sink", i); err != nil {
			return fmt.Errorf("pipeline %q: %w", p.Name, err)
		}
	}

	if p.BatchSize < 0 {
		return fmt.Errorf("pipeline %q: batch_size must be > 0", p.Name)
	}
	if p.BatchSize == 0 {
		p.BatchSize = DefaultBatchSize
	}
	if p.BatchTimeout < 0 {
		return fmt.Errorf("pipeline %q: batch_timeout must be > 0", p.Name)
	}
	if p.BatchTimeout == 0 {
		p.BatchTimeout = Duration(DefaultBatchTimeout)
	}

	switch p.OverflowPolicy {
	case "":
		p.OverflowPolicy = OverflowBlock
	case OverflowBlock, OverflowDropOldest, OverflowDropNew:
	default:
		return fmt.Errorf("pipeline %q: invalid overflow_policy %q", p.Name, p.OverflowPolicy)
	}

	if p.Workers <= 0 {
		p.Workers = 1
	}
	if p.StopGrace <= 0 {
		p.StopGrace = Duration(DefaultStopGrace)
	}
	if p.WriteTimeout <= 0 {
		p.WriteTimeout = Duration(DefaultWriteTimeout)
	}
	if p.IngestQueue <= 0 {
		p.IngestQueue = 10 * p.BatchSize
	}
	if p.OutQueue <= 0 {
		p.OutQueue = 4 * p.BatchSize
	}
	if p.SinkQueue <= 0 {
		p.SinkQueue = DefaultSinkQueue
	}

	return nil
}

func (r *PluginRef) validate(kind string, idx int) error {
	if r.Name == "" {
		return fmt.Errorf("%s at index %d is missing a name", kind, idx)
	}
	if r.Type == "" {
		return fmt.Errorf("%s %q is missing a type", kind, r.Name)
	}
	if r.Config == nil {
		r.Config = map[string]any{}
	}
	return nil
}

// Duration unmarshals from either a Go duration string ("5s", "500ms") or a
// bare number of seconds (5, 0.5), matching how pipeline documents in the
// wild write timeouts.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		if dur, err := time.ParseDuration(s); err == nil {
			*d = Duration(dur)
			return nil
		}
		if secs, err := strconv.ParseFloat(s, 64); err == nil {
			*d = Duration(time.Duration(secs * float64(time.Second)))
			return nil
		}
		return fmt.Errorf("invalid duration %q", s)
	}

	var secs float64
	if err := value.Decode(&secs); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalJSON accepts the same shapes as YAML: a duration string or a
// number of seconds.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if dur, err := time.ParseDuration(s); err == nil {
			*d = Duration(dur)
			return nil
		}
		return fmt.Errorf("invalid duration %q", s)
	}

	var secs float64
	if err := json.Unmarshal(data, &secs); err != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(time.Duration(secs * float64(time.Second)))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the standard library representation.
func (d Duration) Std() time.Duration { return time.Duration(d) }
