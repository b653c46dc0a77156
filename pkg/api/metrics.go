package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/vjranagit/timeseries/pkg/storage"
)

const namespace = "tsserver"

// cacheStatter is implemented by storages fronted by a series cache
type cacheStatter interface {
	CacheStats() storage.CacheStats
	CacheHitRate() float64
}

// metrics holds the server's collectors on a registry it owns, so several
// servers in one process never collide.
type metrics struct {
	registry *prometheus.Registry
	requests prometheus.Counter
	failures prometheus.Counter
}

func newOpts(subsystem, name, help string) prometheus.Opts {
	return prometheus.Opts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}
}

func newMetrics(store storage.Storage) *metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &metrics{
		registry: registry,
		requests: factory.NewCounter(prometheus.CounterOpts(
			newOpts("http", "requests_total", "HTTP requests served."))),
		failures: factory.NewCounter(prometheus.CounterOpts(
			newOpts("http", "failures_total", "HTTP requests answered with a server error."))),
	}

	cs, ok := store.(cacheStatter)
	if !ok {
		return m
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts(newOpts("cache", "entries", "Series held in the cache.")),
		func() float64 { return float64(cs.CacheStats().Size) })
	factory.NewCounterFunc(prometheus.CounterOpts(newOpts("cache", "hits_total", "Series loads served from the cache.")),
		func() float64 { return float64(cs.CacheStats().Hits) })
	factory.NewCounterFunc(prometheus.CounterOpts(newOpts("cache", "misses_total", "Series loads that went to storage.")),
		func() float64 { return float64(cs.CacheStats().Misses) })
	factory.NewGaugeFunc(prometheus.GaugeOpts(newOpts("cache", "hit_ratio", "Fraction of series loads served from the cache.")),
		func() float64 { return cs.CacheHitRate() / 100 })

	return m
}
