package node

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blobshard",
		Subsystem: "node",
		Name:      "stored_shards_total",
		Help:      "Shards persisted by this storage node",
	})

	storageErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blobshard",
		Subsystem: "node",
		Name:      "storage_errors_total",
		Help:      "Shard writes that failed in the backend",
	})

	resubscribesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blobshard",
		Subsystem: "node",
		Name:      "resubscribes_total",
		Help:      "Times the delivery stream was re-established",
	})
)
