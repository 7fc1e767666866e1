package plugin

import (
	"sort"
	"sync"

	"github.com/GabrielNunesIT/go-libs/logger"
)

// The registries map plugin type-tags to factories. They are populated from
// init functions in the source, processor and sink packages and are treated
// as immutable once the process is serving traffic; the mutex only guards
// the registration window.
var (
	mu                 sync.RWMutex
	sourceFactories    = make(map[string]SourceFactory)
	processorFactories = make(map[string]ProcessorFactory)
	sinkFactories      = make(map[string]SinkFactory)
)

// RegisterSource installs a source factory under a type-tag.
// Registering a duplicate tag panics; tags are a process-wide namespace.
func RegisterSource(typeTag string, f SourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := sourceFactories[typeTag]; dup {
		panic("plugin: duplicate source type " + typeTag)
	}
	sourceFactories[typeTag] = f
}

// RegisterProcessor installs a processor factory under a type-tag.
func RegisterProcessor(typeTag string, f ProcessorFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := processorFactories[typeTag]; dup {
		panic("plugin: duplicate processor type " + typeTag)
	}
	processorFactories[typeTag] = f
}

// RegisterSink installs a sink factory under a type-tag.
func RegisterSink(typeTag string, f SinkFactory) {
	mu.Lock()
	defer mu.Unlock()
	if _, dup := sinkFactories[typeTag]; dup {
		panic("plugin: duplicate sink type " + typeTag)
	}
	sinkFactories[typeTag] = f
}

// NewSource constructs a source of the given type. Unknown types and factory
// failures are configuration errors.
func NewSource(typeTag, name string, cfg map[string]any, log logger.ILogger) (Source, error) {
	mu.RLock()
	f, ok := sourceFactories[typeTag]
	mu.RUnlock()
	if !ok {
		return nil, Configf("unknown source type: %q", typeTag)
	}
	return f(name, cfg, log)
}

// NewProcessor constructs a processor of the given type.
func NewProcessor(typeTag, name string, cfg map[string]any, log logger.ILogger) (Processor, error) {
	mu.RLock()
	f, ok := processorFactories[typeTag]
	mu.RUnlock()
	if !ok {
		return nil, Configf("unknown processor type: %q", typeTag)
	}
	return f(name, cfg, log)
}

// NewSink constructs a sink of the given type.
func NewSink(typeTag, name string, cfg map[string]any, log logger.ILogger) (Sink, error) {
	mu.RLock()
	f, ok := sinkFactories[typeTag]
	mu.RUnlock()
	if !ok {
		return nil, Configf("unknown sink type: %q", typeTag)
	}
	return f(name, cfg, log)
}

// SourceTypes returns the registered source type-tags, sorted.
func SourceTypes() []string { return keys(sourceFactories) }

// ProcessorTypes returns the registered processor type-tags, sorted.
func ProcessorTypes() []string { return keys(processorFactories) }

// SinkTypes returns the registered sink type-tags, sorted.
func SinkTypes() []string { return keys(sinkFactories) }

func keys[V any](m map[string]V) []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
