package testutil

import (
	"fmt"
	"sync"

	"github.com/GabrielNunesIT/go-libs/logger"

	"github.com/logflow-dev/logflow/internal/plugin"
)

// The memory plugin types let runtime tests route pipeline configs to
// concrete in-memory instances registered by name.
const (
	MemorySourceType = "mem_source"
	MemorySinkType   = "mem_sink"
)

var (
	registerOnce sync.Once

	instMu  sync.Mutex
	sources = make(map[string]*MemorySource)
	sinks   = make(map[string]*MemorySink)
)

// RegisterMemoryPlugins installs the mem_source and mem_sink factories.
// Safe to call from multiple tests; registration happens once per process.
func RegisterMemoryPlugins() {
	registerOnce.Do(func() {
		plugin.RegisterSource(MemorySourceType, func(name string, cfg map[string]any, log logger.ILogger) (plugin.Source, error) {
			instMu.Lock()
			defer instMu.Unlock()
			s, ok := sources[name]
			if !ok {
				return nil, plugin.Configf("no memory source registered under %q", name)
			}
			return s, nil
		})
		plugin.RegisterSink(MemorySinkType, func(name string, cfg map[string]any, log logger.ILogger) (plugin.Sink, error) {
			instMu.Lock()
			defer instMu.Unlock()
			s, ok := sinks[name]
			if !ok {
				return nil, plugin.Configf("no memory sink registered under %q", name)
			}
			return s, nil
		})
	})
}

// AddSource stashes a memory source instance under a unique name and
// returns that name for use in a pipeline config.
func AddSource(prefix string, s *MemorySource) string {
	instMu.Lock()
	defer instMu.Unlock()
	name := fmt.Sprintf("%s-%d", prefix, len(sources))
	s.SourceName = name
	sources[name] = s
	return name
}

// AddSink stashes a memory sink instance under a unique name.
func AddSink(prefix string, s *MemorySink) string {
	instMu.Lock()
	defer instMu.Unlock()
	name := fmt.Sprintf("%s-%d", prefix, len(sinks))
	s.SinkName = name
	sinks[name] = s
	return name
}
