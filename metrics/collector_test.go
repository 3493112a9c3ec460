package metrics

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agentuity/go-query/logger"
	"github.com/agentuity/go-query/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedStats query.Stats

func (f fixedStats) Stats() query.Stats { return query.Stats(f) }

func TestCollector(t *testing.T) {
	c := NewCollector(fixedStats{Fetches: 3, Deduplicated: 2, Entries: 5}, "", nil)
	assert.Equal(t, 10, testutil.CollectAndCount(c))

	expected := `
# HELP query_cache_entries Current number of cache entries.
# TYPE query_cache_entries gauge
query_cache_entries 5
# HELP query_fetches_total Query function runs started.
# TYPE query_fetches_total counter
query_fetches_total 3
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected), "query_cache_entries", "query_fetches_total"))
}

func TestCollectorReadsClient(t *testing.T) {
	client := query.New(context.Background(), query.WithLogger(logger.NewTestLogger()), query.WithGCInterval(query.Forever))
	defer client.Close()
	_, err := client.FetchQuery(context.Background(), query.Options{
		Key: "m",
		Fn:  func(context.Context) (any, error) { return 1, nil },
	})
	require.NoError(t, err)

	c := NewCollector(client, "shop", prometheus.Labels{"app": "test"})
	registry, err := NewRegistry(c, false)
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(registry))
	defer srv.Close()
	res, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `shop_fetches_total{app="test"} 1`)
	assert.Contains(t, string(body), `shop_cache_entries{app="test"} 1`)
}

func TestNewRegistryRejectsDuplicates(t *testing.T) {
	c := NewCollector(fixedStats{}, "", nil)
	registry, err := NewRegistry(c, true)
	require.NoError(t, err)
	assert.Error(t, registry.Register(c))
}
