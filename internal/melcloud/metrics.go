package melcloud

import "github.com/prometheus/client_golang/prometheus"

var (
	apiRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "melcloud_api_requests_total",
			Help: "MELCloud API requests by endpoint and outcome",
		},
		[]string{"endpoint", "status"},
	)
	apiDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "melcloud_api_request_duration_seconds",
			Help:    "MELCloud API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)
	retryAfterGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "melcloud_rate_limit_retry_after_seconds",
			Help: "Retry-After seconds from the last 429 response",
		},
	)
)

// MetricsCollectors exposes the client's collectors for registration.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		apiRequests,
		apiDuration,
		retryAfterGauge,
	}
}
