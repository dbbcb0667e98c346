// Package metrics holds the prometheus instruments shared across the
// core, namespaced the way friggdb.go namespaces its blocklist-poll
// metrics ("friggdb_blocklist_poll_count_total" etc).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vecgraph",
		Name:      "cache_hits_total",
		Help:      "Total number of HNSW cache lookups served from memory.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vecgraph",
		Name:      "cache_misses_total",
		Help:      "Total number of HNSW cache lookups that required a buffer-manager read.",
	})
	CacheBloomRejections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "vecgraph",
		Name:      "cache_bloom_rejections_total",
		Help:      "Total number of lookups short-circuited by the per-version bloom filter.",
	})
	CacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vecgraph",
		Name:      "cache_entries",
		Help:      "Current number of resolved nodes held by the HNSW cache.",
	})
	SearchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vecgraph",
		Name:      "search_duration_seconds",
		Help:      "Time to complete a single ANN search.",
		Buckets:   prometheus.ExponentialBuckets(.0005, 2, 10),
	})
	InsertDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vecgraph",
		Name:      "insert_duration_seconds",
		Help:      "Time to complete a single vector insertion.",
		Buckets:   prometheus.ExponentialBuckets(.0005, 2, 10),
	})
	WorkerPoolQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "vecgraph",
		Name:      "worker_pool_queue_length",
		Help:      "Current length of the batched-query worker pool queue.",
	})
	VersionsAllocated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vecgraph",
		Name:      "versions_allocated_total",
		Help:      "Total number of versions allocated per branch.",
	}, []string{"branch"})
)
