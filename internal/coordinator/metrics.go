package coordinator

import "github.com/prometheus/client_golang/prometheus"

var (
	fetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "melcloud_coordinator_fetches_total",
			Help: "Device fetches started by the coordinator, by result",
		},
		[]string{"result"},
	)
	updatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "melcloud_coordinator_updates_total",
			Help: "Device updates sent by the coordinator, by result",
		},
		[]string{"result"},
	)
	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "melcloud_coordinator_cache_hits_total",
			Help: "Operations served from a live snapshot",
		},
	)
	queuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "melcloud_coordinator_queued_total",
			Help: "Operations that had to wait for an in-flight fetch",
		},
	)
	queueDepthGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "melcloud_coordinator_queue_depth",
			Help: "Operations currently waiting in the global queue",
		},
	)
	inFlightGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "melcloud_coordinator_fetch_in_flight",
			Help: "Whether a device fetch is outstanding (1) or not (0)",
		},
	)
)

// MetricsCollectors exposes the coordinator's collectors for registration.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		fetchesTotal,
		updatesTotal,
		cacheHitsTotal,
		queuedTotal,
		queueDepthGauge,
		inFlightGauge,
	}
}
