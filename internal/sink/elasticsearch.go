package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esutil"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterSink("elasticsearch", NewElasticsearch)
}

// ElasticsearchConfig configures the elasticsearch sink.
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`

	// Index supports the date placeholders {yyyy}, {MM}, {dd} and {HH},
	// resolved per event timestamp.
	Index string `mapstructure:"index"`

	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	APIKey   string `mapstructure:"api_key"`

	FlushBytes    int           `mapstructure:"flush_bytes"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	NumWorkers    int           `mapstructure:"num_workers"`
}

// IndexerFactory creates the BulkIndexer; injectable for tests.
type IndexerFactory func(cfg ElasticsearchConfig) (esutil.BulkIndexer, error)

// Elasticsearch writes batches through a bulk indexer.
type Elasticsearch struct {
	name    string
	cfg     ElasticsearchConfig
	factory IndexerFactory
	indexer esutil.BulkIndexer
	log     logger.ILogger

	itemErrors atomic.Uint64
}

// ElasticsearchOption configures the Elasticsearch sink.
type ElasticsearchOption func(*Elasticsearch)

// WithIndexerFactory sets a custom factory for creating the BulkIndexer.
// This is primarily used for testing to inject a mock indexer.
func WithIndexerFactory(f IndexerFactory) ElasticsearchOption {
	return func(s *Elasticsearch) { s.factory = f }
}

// NewElasticsearch creates an elasticsearch sink from its opaque config
// mapping.
func NewElasticsearch(name string, cfg map[string]any, log logger.ILogger) (plugin.Sink, error) {
	c := ElasticsearchConfig{
		Index:         "logs-{yyyy.MM.dd}",
		FlushBytes:    5e6,
		FlushInterval: 5 * time.Second,
		NumWorkers:    2,
	}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("elasticsearch sink %q: %w", name, err)
	}
	if len(c.Addresses) == 0 {
		return nil, plugin.Configf("elasticsearch sink %q: addresses are required", name)
	}
	return NewElasticsearchWithOptions(name, c, log), nil
}

// NewElasticsearchWithOptions creates an elasticsearch sink with explicit
// options.
func NewElasticsearchWithOptions(name string, cfg ElasticsearchConfig, log logger.ILogger, opts ...ElasticsearchOption) *Elasticsearch {
	s := &Elasticsearch{
		name: name,
		cfg:  cfg,
		log:  log.SubLogger("ElasticsearchSink"),
	}

	s.factory = func(cfg ElasticsearchConfig) (esutil.BulkIndexer, error) {
		esCfg := elasticsearch.Config{
			Addresses: cfg.Addresses,
		}
		if cfg.Username != "" {
			esCfg.Username = cfg.Username
			esCfg.Password = cfg.Password
		}
		if cfg.APIKey != "" {
			esCfg.APIKey = cfg.APIKey
		}

		client, err := elasticsearch.NewClient(esCfg)
		if err != nil {
			return nil, fmt.Errorf("creating elasticsearch client: %w", err)
		}

		return esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
			Client:        client,
			NumWorkers:    cfg.NumWorkers,
			FlushBytes:    cfg.FlushBytes,
			FlushInterval: cfg.FlushInterval,
		})
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the instance name.
func (s *Elasticsearch) Name() string { return s.name }

// Open creates the client and bulk indexer.
func (s *Elasticsearch) Open(ctx context.Context) error {
	indexer, err := s.factory(s.cfg)
	if err != nil {
		return err
	}
	s.indexer = indexer
	return nil
}

// Flush drains the bulk indexer by closing it and rebuilding; esutil only
// flushes fully on Close.
func (s *Elasticsearch) Flush(ctx context.Context) error {
	if s.indexer == nil {
		return nil
	}
	if err := s.indexer.Close(ctx); err != nil {
		return plugin.Retryable(err)
	}
	indexer, err := s.factory(s.cfg)
	if err != nil {
		return plugin.Fatal(err)
	}
	s.indexer = indexer
	return nil
}

// Close flushes and shuts the indexer down.
func (s *Elasticsearch) Close(ctx context.Context) error {
	if s.indexer == nil {
		return nil
	}
	err := s.indexer.Close(ctx)
	s.indexer = nil
	return err
}

// Write adds every event of the batch to the bulk indexer. Per-item
// failures are counted by the indexer callbacks; a rejected add is
// retryable.
func (s *Elasticsearch) Write(ctx context.Context, batch model.Batch) error {
	if s.indexer == nil {
		return plugin.Fatal(fmt.Errorf("elasticsearch sink %q is not open", s.name))
	}

	for _, ev := range batch {
		doc := ev.ToMap()
		doc["@timestamp"] = ev.Timestamp.Format(time.RFC3339Nano)

		data, err := json.Marshal(doc)
		if err != nil {
			return plugin.Fatal(err)
		}

		item := esutil.BulkIndexerItem{
			Action:     "index",
			Index:      s.indexName(ev.Timestamp),
			DocumentID: ev.ID,
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
				s.itemErrors.Add(1)
				if err != nil {
					s.log.Debugf("bulk index failure: %v", err)
				} else {
					s.log.Debugf("bulk index failure: %s: %s", res.Error.Type, res.Error.Reason)
				}
			},
		}

		if err := s.indexer.Add(ctx, item); err != nil {
			return plugin.Retryable(err)
		}
	}
	return nil
}

// indexName resolves the configured index pattern against a timestamp.
func (s *Elasticsearch) indexName(ts time.Time) string {
	r := strings.NewReplacer(
		"{yyyy}", ts.Format("2006"),
		"{MM}", ts.Format("01"),
		"{dd}", ts.Format("02"),
		"{HH}", ts.Format("15"),
		"{yyyy.MM.dd}", ts.Format("2006.01.02"),
	)
	return r.Replace(s.cfg.Index)
}
