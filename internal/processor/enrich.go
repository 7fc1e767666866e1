package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mssola/useragent"
	"github.com/oschwald/geoip2-golang"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterProcessor("enrich", NewEnrich)
}

// Enrichment sub-modes.
const (
	EnrichLookup    = "lookup"
	EnrichGeoIP     = "geoip"
	EnrichUserAgent = "useragent"
	EnrichDNS       = "dns"
)

// Defaults for the dns sub-mode.
const (
	defaultResolveTimeout = 500 * time.Millisecond
	defaultDNSCacheSize   = 10000
)

// EnrichConfig configures the enrich processor.
type EnrichConfig struct {
	Type        string `mapstructure:"enrich_type"`
	SourceField string `mapstructure:"source_field"`
	TargetField string `mapstructure:"target_field"`

	// Lookup mode.
	LookupTable  map[string]any `mapstructure:"lookup_table"`
	LookupFile   string         `mapstructure:"lookup_file"`
	DefaultValue any            `mapstructure:"default_value"`

	// PreserveExisting leaves an already-populated target field alone.
	PreserveExisting bool `mapstructure:"preserve_existing"`

	// GeoIP mode.
	GeoDBPath string `mapstructure:"geo_db_path"`

	// DNS mode. ResolveTimeout bounds one resolve; CacheSize caps the LRU.
	ResolveTimeout time.Duration `mapstructure:"resolve_timeout"`
	CacheSize      int           `mapstructure:"cache_size"`
}

// Enrich adds derived fields from lookup tables, GeoIP databases, user-agent
// strings or DNS. The dns sub-mode is the only built-in processor that
// blocks on I/O; each resolve is bounded by resolve_timeout and memoised in
// an LRU cache.
type Enrich struct {
	name string
	cfg  EnrichConfig
	log  logger.ILogger

	lookup   map[string]any
	geoDB    *geoip2.Reader
	dnsCache *lru.Cache[string, string]
	resolver *net.Resolver
}

// NewEnrich validates the sub-mode configuration.
func NewEnrich(name string, cfg map[string]any, log logger.ILogger) (plugin.Processor, error) {
	c := EnrichConfig{
		PreserveExisting: true,
		ResolveTimeout:   defaultResolveTimeout,
		CacheSize:        defaultDNSCacheSize,
	}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("enrich processor %q: %w", name, err)
	}

	switch c.Type {
	case EnrichLookup, EnrichGeoIP, EnrichUserAgent, EnrichDNS:
	default:
		return nil, plugin.Configf("enrich processor %q: invalid type %q", name, c.Type)
	}
	if c.SourceField == "" {
		return nil, plugin.Configf("enrich processor %q: source_field is required", name)
	}
	if c.TargetField == "" {
		return nil, plugin.Configf("enrich processor %q: target_field is required", name)
	}
	if c.Type == EnrichGeoIP && c.GeoDBPath == "" {
		return nil, plugin.Configf("enrich processor %q: geo_db_path is required for geoip", name)
	}

	e := &Enrich{name: name, cfg: c, log: log.SubLogger("EnrichProcessor")}

	if c.Type == EnrichLookup {
		e.lookup = make(map[string]any, len(c.LookupTable))
		for k, v := range c.LookupTable {
			e.lookup[k] = v
		}
		if c.LookupFile != "" {
			data, err := os.ReadFile(c.LookupFile)
			if err != nil {
				return nil, plugin.Configf("enrich processor %q: reading lookup file: %v", name, err)
			}
			var fromFile map[string]any
			if err := json.Unmarshal(data, &fromFile); err != nil {
				return nil, plugin.Configf("enrich processor %q: lookup file must be a JSON object: %v", name, err)
			}
			for k, v := range fromFile {
				e.lookup[k] = v
			}
		}
		if len(e.lookup) == 0 && c.DefaultValue == nil {
			return nil, plugin.Configf("enrich processor %q: lookup requires lookup_table, lookup_file or default_value", name)
		}
	}

	return e, nil
}

// Name returns the instance name.
func (e *Enrich) Name() string { return e.name }

// Open acquires the sub-mode's resources: the GeoIP database handle and the
// DNS resolver cache.
func (e *Enrich) Open(ctx context.Context) error {
	switch e.cfg.Type {
	case EnrichGeoIP:
		db, err := geoip2.Open(e.cfg.GeoDBPath)
		if err != nil {
			return fmt.Errorf("opening GeoIP database %q: %w", e.cfg.GeoDBPath, err)
		}
		e.geoDB = db
	case EnrichDNS:
		cache, err := lru.New[string, string](e.cfg.CacheSize)
		if err != nil {
			return fmt.Errorf("creating DNS cache: %w", err)
		}
		e.dnsCache = cache
		e.resolver = net.DefaultResolver
	}
	return nil
}

// Close releases the GeoIP handle.
func (e *Enrich) Close() error {
	if e.geoDB != nil {
		return e.geoDB.Close()
	}
	return nil
}

// Process enriches the event according to the configured sub-mode. Misses
// pass the event through; the lookup and dns sub-modes write default_value
// when it is set, and a failed GeoIP lookup records enrich_error metadata.
func (e *Enrich) Process(ctx context.Context, ev *model.LogEvent) ([]*model.LogEvent, error) {
	src, ok := sourceValue(ev, e.cfg.SourceField)
	if !ok {
		return one(ev), nil
	}

	if _, exists := ev.GetField(e.cfg.TargetField); exists && e.cfg.PreserveExisting {
		return one(ev), nil
	}

	srcText := fmt.Sprintf("%v", src)

	switch e.cfg.Type {
	case EnrichLookup:
		if v, hit := e.lookup[srcText]; hit {
			ev.SetField(e.cfg.TargetField, v)
		} else if e.cfg.DefaultValue != nil {
			ev.SetField(e.cfg.TargetField, e.cfg.DefaultValue)
		}

	case EnrichGeoIP:
		e.enrichGeoIP(ev, srcText)

	case EnrichUserAgent:
		ua := useragent.New(srcText)
		browser, _ := ua.Browser()
		ev.SetField(e.cfg.TargetField, map[string]any{
			"browser": browser,
			"os":      ua.OSInfo().Name,
			"device":  ua.Platform(),
			"mobile":  ua.Mobile(),
			"bot":     ua.Bot(),
		})

	case EnrichDNS:
		e.enrichDNS(ctx, ev, srcText)
	}

	return one(ev), nil
}

func (e *Enrich) enrichGeoIP(ev *model.LogEvent, srcText string) {
	addr, err := netip.ParseAddr(srcText)
	if err != nil || addr.IsPrivate() || addr.IsLoopback() {
		return
	}

	record, err := e.geoDB.City(net.ParseIP(srcText))
	if err != nil {
		ev.Metadata["enrich_error"] = err.Error()
		return
	}

	ev.SetField(e.cfg.TargetField, map[string]any{
		"country": record.Country.IsoCode,
		"city":    record.City.Names["en"],
		"lat":     record.Location.Latitude,
		"lon":     record.Location.Longitude,
	})
}

func (e *Enrich) enrichDNS(ctx context.Context, ev *model.LogEvent, srcText string) {
	if cached, hit := e.dnsCache.Get(srcText); hit {
		if cached != "" {
			ev.SetField(e.cfg.TargetField, cached)
		} else if e.cfg.DefaultValue != nil {
			ev.SetField(e.cfg.TargetField, e.cfg.DefaultValue)
		}
		return
	}

	resolveCtx, cancel := context.WithTimeout(ctx, e.cfg.ResolveTimeout)
	defer cancel()

	var resolved string
	if _, err := netip.ParseAddr(srcText); err == nil {
		names, err := e.resolver.LookupAddr(resolveCtx, srcText)
		if err == nil && len(names) > 0 {
			resolved = strings.TrimSuffix(names[0], ".")
		}
	} else {
		addrs, err := e.resolver.LookupHost(resolveCtx, srcText)
		if err == nil && len(addrs) > 0 {
			resolved = addrs[0]
		}
	}

	// Negative results are cached too, so a flood of unresolvable
	// addresses does not hammer the resolver.
	e.dnsCache.Add(srcText, resolved)

	if resolved != "" {
		ev.SetField(e.cfg.TargetField, resolved)
	} else if e.cfg.DefaultValue != nil {
		ev.SetField(e.cfg.TargetField, e.cfg.DefaultValue)
	}
}
