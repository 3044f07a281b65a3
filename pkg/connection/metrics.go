package connection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheEntries tracks stored connection entries by backend
	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tractusx_connection_cache_entries",
			Help: "Current number of cached connection entries",
		},
		[]string{"backend"}, // "memory", "redis"
	)

	// CacheOperations tracks cache operations by backend, operation and result
	CacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tractusx_connection_cache_operations_total",
			Help: "Total number of connection cache operations",
		},
		[]string{"backend", "operation", "result"}, // result: "hit", "miss", "stored", "replaced", "deleted", "error"
	)
)
