package retriever

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	retrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "blobshard",
		Subsystem: "retriever",
		Name:      "retrievals_total",
		Help:      "Retrieval sessions by outcome",
	}, []string{"outcome"})

	nodeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blobshard",
		Subsystem: "retriever",
		Name:      "node_failures_total",
		Help:      "Per-node fetches that failed and were excluded",
	})

	discardedShardsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blobshard",
		Subsystem: "retriever",
		Name:      "discarded_shards_total",
		Help:      "Shards discarded for an out-of-range index or a wrong size",
	})

	retrievalDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "blobshard",
		Subsystem: "retriever",
		Name:      "duration_seconds",
		Help:      "Wall time of retrieval sessions",
		Buckets:   prometheus.DefBuckets,
	})
)
