package distributor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	publishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blobshard",
		Subsystem: "distributor",
		Name:      "published_total",
		Help:      "Deliveries enqueued to a subscriber",
	})

	droppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "blobshard",
		Subsystem: "distributor",
		Name:      "dropped_total",
		Help:      "Deliveries dropped because a subscriber queue was full",
	})

	subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "blobshard",
		Subsystem: "distributor",
		Name:      "subscribers",
		Help:      "Currently registered subscriptions",
	})
)
