package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// cacheMetrics 单个缓存的 Prometheus 指标。
type cacheMetrics struct {
	registerer prometheus.Registerer
	collectors []prometheus.Collector

	hits        prometheus.Counter
	misses      prometheus.Counter
	sets        prometheus.Counter
	deletes     prometheus.Counter
	evictions   prometheus.Counter
	expirations prometheus.Counter

	size   prometheus.Gauge
	memory prometheus.Gauge
}

// newCacheMetrics 创建并注册指标，name 作为 cache 标签。
func newCacheMetrics(registerer prometheus.Registerer, name string) (*cacheMetrics, error) {
	labels := prometheus.Labels{"cache": name}
	counter := func(metric, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "cachecore",
			Subsystem:   "cache",
			Name:        metric,
			ConstLabels: labels,
			Help:        help,
		})
	}
	gauge := func(metric, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "cachecore",
			Subsystem:   "cache",
			Name:        metric,
			ConstLabels: labels,
			Help:        help,
		})
	}

	m := &cacheMetrics{
		registerer:  registerer,
		hits:        counter("hits_total", "Total number of cache hits"),
		misses:      counter("misses_total", "Total number of cache misses"),
		sets:        counter("sets_total", "Total number of cache set operations"),
		deletes:     counter("deletes_total", "Total number of explicit cache deletes"),
		evictions:   counter("evictions_total", "Total number of policy evictions"),
		expirations: counter("expirations_total", "Total number of TTL expirations"),
		size:        gauge("entries", "Current number of entries in cache"),
		memory:      gauge("memory_bytes", "Estimated bytes held by cache entries"),
	}
	m.collectors = []prometheus.Collector{
		m.hits, m.misses, m.sets, m.deletes, m.evictions, m.expirations, m.size, m.memory,
	}

	for i, c := range m.collectors {
		if err := registerer.Register(c); err != nil {
			for _, done := range m.collectors[:i] {
				registerer.Unregister(done)
			}
			return nil, err
		}
	}
	return m, nil
}

// unregister 从注册表移除全部指标。
func (m *cacheMetrics) unregister() {
	if m == nil {
		return
	}
	for _, c := range m.collectors {
		m.registerer.Unregister(c)
	}
}

// 以下方法允许 m 为 nil（未启用指标）。

func (m *cacheMetrics) recordHit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *cacheMetrics) recordMiss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *cacheMetrics) recordSet() {
	if m != nil {
		m.sets.Inc()
	}
}

func (m *cacheMetrics) recordDelete() {
	if m != nil {
		m.deletes.Inc()
	}
}

func (m *cacheMetrics) recordEvictions(n int) {
	if m != nil && n > 0 {
		m.evictions.Add(float64(n))
	}
}

func (m *cacheMetrics) recordExpirations(n int) {
	if m != nil && n > 0 {
		m.expirations.Add(float64(n))
	}
}

func (m *cacheMetrics) updateSize(entries int, bytes int64) {
	if m != nil {
		m.size.Set(float64(entries))
		m.memory.Set(float64(bytes))
	}
}
