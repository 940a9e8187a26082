package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itemsale_settlements_total",
		Help: "Settlement attempts by flow and outcome",
	}, []string{"flow", "status"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "itemsale_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	HTTPResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itemsale_http_responses_total",
		Help: "HTTP responses by route and status class",
	}, []string{"endpoint", "class"})

	Rejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itemsale_rejects_total",
		Help: "Rejected orders by reason",
	}, []string{"reason"})

	ItemsMinted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itemsale_items_minted_total",
		Help: "Items issued by flow",
	}, []string{"flow"})

	// DistributionUnits is float-valued; utility amounts beyond 2^53 lose precision here.
	DistributionUnits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itemsale_distribution_units",
		Help: "Utility units routed to each distribution leg",
	}, []string{"leg"})
)
