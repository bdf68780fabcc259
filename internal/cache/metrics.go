package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregate_cache_hits_total",
			Help: "Total number of aggregate cache hits",
		},
		[]string{"source"},
	)

	cacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aggregate_cache_misses_total",
			Help: "Total number of aggregate cache misses",
		},
		[]string{"source"},
	)

	invalidationsReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "aggregate_cache_invalidations_total",
			Help: "Total number of cache invalidation broadcasts received",
		},
	)
)
