package sink

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/elastic/go-elasticsearch/v8/esutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow-dev/logflow/internal/model"
	"github.com/logflow-dev/logflow/internal/testutil"
)

// mockIndexer implements esutil.BulkIndexer, recording added items.
type mockIndexer struct {
	mu     sync.Mutex
	items  []esutil.BulkIndexerItem
	bodies []map[string]any
	closed bool
	addErr error
}

func (m *mockIndexer) Add(ctx context.Context, item esutil.BulkIndexerItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.addErr != nil {
		return m.addErr
	}

	m.items = append(m.items, item)
	if item.Body != nil {
		data, _ := io.ReadAll(item.Body)
		var doc map[string]any
		_ = json.Unmarshal(data, &doc)
		m.bodies = append(m.bodies, doc)
	}
	return nil
}

func (m *mockIndexer) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockIndexer) Stats() esutil.BulkIndexerStats {
	return esutil.BulkIndexerStats{}
}

func newTestESSink(t *testing.T, cfg ElasticsearchConfig) (*Elasticsearch, *mockIndexer) {
	t.Helper()

	idx := &mockIndexer{}
	s := NewElasticsearchWithOptions("es", cfg, testutil.NewTestLogger(),
		WithIndexerFactory(func(ElasticsearchConfig) (esutil.BulkIndexer, error) {
			return idx, nil
		}))

	require.NoError(t, s.Open(context.Background()))
	return s, idx
}

func TestElasticsearch_Open_FactoryError(t *testing.T) {
	s := NewElasticsearchWithOptions("es",
		ElasticsearchConfig{Addresses: []string{"http://localhost:9200"}},
		testutil.NewTestLogger(),
		WithIndexerFactory(func(ElasticsearchConfig) (esutil.BulkIndexer, error) {
			return nil, errors.New("factory failure")
		}))

	err := s.Open(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "factory failure")
}

func TestElasticsearch_Write(t *testing.T) {
	s, idx := newTestESSink(t, ElasticsearchConfig{
		Addresses: []string{"http://localhost:9200"},
		Index:     "logs-{yyyy.MM.dd}",
	})

	ev := model.NewLogEvent("test", "indexed line")
	ev.Fields["level"] = "WARN"

	err := s.Write(context.Background(), model.Batch{ev})
	require.NoError(t, err)
	require.Len(t, idx.items, 1)

	item := idx.items[0]
	assert.Equal(t, "index", item.Action)
	assert.Equal(t, ev.ID, item.DocumentID)
	assert.Equal(t, "logs-"+ev.Timestamp.Format("2006.01.02"), item.Index)

	doc := idx.bodies[0]
	assert.Equal(t, "indexed line", doc["raw_data"])
	assert.NotNil(t, doc["@timestamp"])
}

func TestElasticsearch_Write_AddErrorIsRetryable(t *testing.T) {
	s, idx := newTestESSink(t, ElasticsearchConfig{Addresses: []string{"http://localhost:9200"}})
	idx.addErr = errors.New("indexer saturated")

	err := s.Write(context.Background(), model.Batch{model.NewLogEvent("test", "x")})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "indexer saturated")
}

func TestElasticsearch_IndexPattern(t *testing.T) {
	s, _ := newTestESSink(t, ElasticsearchConfig{
		Addresses: []string{"http://localhost:9200"},
		Index:     "app-{yyyy}.{MM}",
	})

	ev := model.NewLogEvent("test", "x")
	want := "app-" + ev.Timestamp.Format("2006") + "." + ev.Timestamp.Format("01")
	assert.Equal(t, want, s.indexName(ev.Timestamp))
}

func TestElasticsearch_CloseClosesIndexer(t *testing.T) {
	s, idx := newTestESSink(t, ElasticsearchConfig{Addresses: []string{"http://localhost:9200"}})

	require.NoError(t, s.Close(context.Background()))
	assert.True(t, idx.closed, "expected indexer closed")
}

func TestElasticsearch_ConfigValidation(t *testing.T) {
	_, err := NewElasticsearch("es", map[string]any{}, testutil.NewTestLogger())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "addresses are required")
}
