package sequencer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ingestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blobshard",
		Subsystem: "sequencer",
		Name:      "ingested_blobs_total",
		Help:      "Blobs encoded, committed and published",
	})

	ingestErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blobshard",
		Subsystem: "sequencer",
		Name:      "ingest_errors_total",
		Help:      "Blobs that failed to ingest",
	})

	cancelledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blobshard",
		Subsystem: "sequencer",
		Name:      "cancelled_blobs_total",
		Help:      "Queued or in-flight blobs dropped by a reorg or revert",
	})
)
