package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	hotHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "todo_hot_cache_hits_total",
		Help: "Point lookups served from the hot cache.",
	})
	hotMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "todo_hot_cache_misses_total",
		Help: "Point lookups that fell through to the cold reader.",
	})
	hotEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "todo_hot_cache_evictions_total",
		Help: "Entries removed by TTL expiry.",
	})
	hotInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "todo_hot_cache_invalidations_total",
		Help: "Entries removed by explicit invalidation.",
	})
)
