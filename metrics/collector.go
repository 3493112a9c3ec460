// Package metrics exports query client statistics to Prometheus.
package metrics

import (
	"net/http"

	"github.com/agentuity/go-query/query"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "query"

// StatsSource is implemented by *query.Client.
type StatsSource interface {
	Stats() query.Stats
}

type counterDesc struct {
	desc  *prometheus.Desc
	value func(query.Stats) float64
}

// Collector is a prometheus.Collector reading the counters of a client at
// scrape time.
type Collector struct {
	source   StatsSource
	counters []counterDesc
	entries  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a collector for source. An empty namespace uses
// DefaultNamespace.
func NewCollector(source StatsSource, namespace string, constLabels prometheus.Labels) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	counter := func(name, help string, value func(query.Stats) float64) counterDesc {
		return counterDesc{
			desc:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, nil, constLabels),
			value: value,
		}
	}
	return &Collector{
		source: source,
		counters: []counterDesc{
			counter("fetches_total", "Query function runs started.", func(s query.Stats) float64 { return float64(s.Fetches) }),
			counter("deduplicated_total", "Fetch requests joined to one already in flight.", func(s query.Stats) float64 { return float64(s.Deduplicated) }),
			counter("cache_hits_total", "Reads served from fresh cached data.", func(s query.Stats) float64 { return float64(s.Hits) }),
			counter("fetch_failures_total", "Fetches that failed after all retries.", func(s query.Stats) float64 { return float64(s.Failures) }),
			counter("fetch_retries_total", "Retried fetch attempts.", func(s query.Stats) float64 { return float64(s.Retries) }),
			counter("evictions_total", "Unobserved entries removed by garbage collection.", func(s query.Stats) float64 { return float64(s.Evictions) }),
			counter("invalidations_total", "Invalidation calls.", func(s query.Stats) float64 { return float64(s.Invalidations) }),
			counter("mutations_total", "Mutation invocations.", func(s query.Stats) float64 { return float64(s.Mutations) }),
			counter("mutation_failures_total", "Failed mutation invocations.", func(s query.Stats) float64 { return float64(s.MutationFailures) }),
		},
		entries: prometheus.NewDesc(prometheus.BuildFQName(namespace, "", "cache_entries"), "Current number of cache entries.", nil, constLabels),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.counters {
		ch <- d.desc
	}
	ch <- c.entries
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	stats := c.source.Stats()
	for _, d := range c.counters {
		ch <- prometheus.MustNewConstMetric(d.desc, prometheus.CounterValue, d.value(stats))
	}
	ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(stats.Entries))
}

// NewRegistry returns a registry holding the collector, plus the Go runtime
// and process collectors when runtime is set.
func NewRegistry(c *Collector, runtime bool) (*prometheus.Registry, error) {
	registry := prometheus.NewRegistry()
	if runtime {
		if err := registry.Register(collectors.NewGoCollector()); err != nil {
			return nil, err
		}
		if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
			return nil, err
		}
	}
	if err := registry.Register(c); err != nil {
		return nil, err
	}
	return registry, nil
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}
