package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbase_cache_hits_total",
		Help: "Total number of cache reads served from Redis.",
	})
	cacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbase_cache_misses_total",
		Help: "Total number of cache reads that fell through to the database.",
	})
	cacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbase_cache_invalidations_total",
		Help: "Total number of cache keys removed by write-through invalidation.",
	})
	cacheErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gridbase_cache_errors_total",
		Help: "Total number of failed cache operations (treated as misses).",
	})
)
