package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/GabrielNunesIT/go-libs/logger"
	"github.com/opensearch-project/opensearch-go/v2"
	"github.com/opensearch-project/opensearch-go/v2/opensearchutil"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/plugin"
)

func init() {
	plugin.RegisterSink("opensearch", NewOpenSearch)
}

// OpenSearchConfig configures the opensearch sink. It mirrors the
// elasticsearch sink for clusters speaking the OpenSearch protocol.
type OpenSearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`

	FlushBytes    int           `mapstructure:"flush_bytes"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	NumWorkers    int           `mapstructure:"num_workers"`
}

// OpenSearchIndexerFactory creates the BulkIndexer; injectable for tests.
type OpenSearchIndexerFactory func(cfg OpenSearchConfig) (opensearchutil.BulkIndexer, error)

// OpenSearch writes batches through an OpenSearch bulk indexer.
type OpenSearch struct {
	name    string
	cfg     OpenSearchConfig
	factory OpenSearchIndexerFactory
	indexer opensearchutil.BulkIndexer
	log     logger.ILogger
}

// OpenSearchOption configures the OpenSearch sink.
type OpenSearchOption func(*OpenSearch)

// WithOpenSearchIndexerFactory sets a custom BulkIndexer factory.
func WithOpenSearchIndexerFactory(f OpenSearchIndexerFactory) OpenSearchOption {
	return func(s *OpenSearch) { s.factory = f }
}

// NewOpenSearch creates an opensearch sink from its opaque config mapping.
func NewOpenSearch(name string, cfg map[string]any, log logger.ILogger) (plugin.Sink, error) {
	c := OpenSearchConfig{
		Index:         "logs-{yyyy.MM.dd}",
		FlushBytes:    5e6,
		FlushInterval: 5 * time.Second,
		NumWorkers:    2,
	}
	if err := plugin.DecodeConfig(cfg, &c); err != nil {
		return nil, fmt.Errorf("opensearch sink %q: %w", name, err)
	}
	if len(c.Addresses) == 0 {
		return nil, plugin.Configf("opensearch sink %q: addresses are required", name)
	}
	return NewOpenSearchWithOptions(name, c, log), nil
}

// NewOpenSearchWithOptions creates an opensearch sink with explicit options.
func NewOpenSearchWithOptions(name string, cfg OpenSearchConfig, log logger.ILogger, opts ...OpenSearchOption) *OpenSearch {
	s := &OpenSearch{
		name: name,
		cfg:  cfg,
		log:  log.SubLogger("OpenSearchSink"),
	}

	s.factory = func(cfg OpenSearchConfig) (opensearchutil.BulkIndexer, error) {
		client, err := opensearch.NewClient(opensearch.Config{
			Addresses: cfg.Addresses,
			Username:  cfg.Username,
			Password:  cfg.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("creating opensearch client: %w", err)
		}

		return opensearchutil.NewBulkIndexer(opensearchutil.BulkIndexerConfig{
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
func (s *OpenSearch) Name() string { return s.name }

// Open creates the client and bulk indexer.
func (s *OpenSearch) Open(ctx context.Context) error {
	indexer, err := s.factory(s.cfg)
	if err != nil {
		return err
	}
	s.indexer = indexer
	return nil
}

// Flush drains the indexer by closing and rebuilding it.
func (s *OpenSearch) Flush(ctx context.Context) error {
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
func (s *OpenSearch) Close(ctx context.Context) error {
	if s.indexer == nil {
		return nil
	}
	err := s.indexer.Close(ctx)
	s.indexer = nil
	return err
}

// Write adds every event of the batch to the bulk indexer.
func (s *OpenSearch) Write(ctx context.Context, batch model.Batch) error {
	if s.indexer == nil {
		return plugin.Fatal(fmt.Errorf("opensearch sink %q is not open", s.name))
	}

	for _, ev := range batch {
		doc := ev.ToMap()
		doc["@timestamp"] = ev.Timestamp.Format(time.RFC3339Nano)

		data, err := json.Marshal(doc)
		if err != nil {
			return plugin.Fatal(err)
		}

		item := opensearchutil.BulkIndexerItem{
			Action:     "index",
			Index:      s.indexName(ev.Timestamp),
			DocumentID: ev.ID,
			Body:       bytes.NewReader(data),
			OnFailure: func(ctx context.Context, item opensearchutil.BulkIndexerItem, res opensearchutil.BulkIndexerResponseItem, err error) {
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

func (s *OpenSearch) indexName(ts time.Time) string {
	r := strings.NewReplacer(
		"{yyyy}", ts.Format("2006"),
		"{MM}", ts.Format("01"),
		"{dd}", ts.Format("02"),
		"{HH}", ts.Format("15"),
		"{yyyy.MM.dd}", ts.Format("2006.01.02"),
	)
	return r.Replace(s.cfg.Index)
}
