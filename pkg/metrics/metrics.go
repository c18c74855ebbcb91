// Package metrics defines the Prometheus metrics exported by the forwarder.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Probing and selection metrics
var (
	ProbeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optipath_probe_attempts_total",
			Help: "Total number of probe connect attempts",
		},
		[]string{"target", "result"},
	)

	ProbeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "optipath_probe_latency_seconds",
			Help:    "Connect latency of successful probe attempts",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"target"},
	)

	TargetScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "optipath_target_score_milliseconds",
			Help: "Penalty-adjusted average latency from the last completed probe cycle",
		},
		[]string{"target"},
	)

	TargetFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "optipath_target_probe_failures",
			Help: "Failed probe attempts out of the last cycle for each target",
		},
		[]string{"target"},
	)

	ProbeCyclesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "optipath_probe_cycles_total",
			Help: "Total number of completed probe cycles",
		},
	)

	ProbeCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optipath_probe_cycle_duration_seconds",
			Help:    "Wall time of one full probe cycle across all targets",
			Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 15.0, 30.0},
		},
	)

	RouteSwitchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "optipath_route_switches_total",
			Help: "Total number of times the selected target changed",
		},
	)

	StalePublishesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "optipath_stale_publishes_skipped_total",
			Help: "Overrunning probe cycles whose result was discarded in favor of a newer cycle",
		},
	)
)

// Data plane metrics
var (
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "optipath_connections_total",
			Help: "Total number of client connections accepted",
		},
	)

	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "optipath_connections_current",
			Help: "Current number of active relayed connections",
		},
	)

	ConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "optipath_connection_duration_seconds",
			Help:    "Duration of relayed connections",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboundConnects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optipath_outbound_connects_total",
			Help: "Outbound backend dial results on the data plane",
		},
		[]string{"target", "result"},
	)

	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optipath_connections_rejected_total",
			Help: "Client connections closed before relaying started",
		},
		[]string{"reason"},
	)

	BytesThroughput = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "optipath_relay_bytes_total",
			Help: "Bytes relayed between clients and backends",
		},
		[]string{"direction"}, // "in" = client to backend, "out" = backend to client
	)
)
