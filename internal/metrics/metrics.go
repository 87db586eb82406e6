package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpawatch_upstream_requests_total",
			Help: "Total upstream API requests by outcome",
		},
		[]string{"api", "status"},
	)

	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mpawatch_upstream_latency_seconds",
			Help:    "Upstream API call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"api"},
	)

	RecordsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpawatch_records_fetched_total",
			Help: "Total raw records returned by upstream APIs",
		},
		[]string{"api"},
	)

	FetchIncomplete = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpawatch_fetch_incomplete_total",
			Help: "Paginated fetches that ended before the upstream ran out of records",
		},
		[]string{"api"},
	)

	RateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mpawatch_ratelimit_wait_seconds",
			Help:    "Time spent waiting on the per-API rate limiter",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 1.5, 2, 5, 10},
		},
		[]string{"api"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mpawatch_cache_lookups_total",
			Help: "Summary cache lookups by result (hit, miss, expired, corrupt)",
		},
		[]string{"kind", "result"},
	)

	HealthScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mpawatch_health_score",
			Help: "Latest composite ecosystem health score per region",
		},
		[]string{"region"},
	)
)
