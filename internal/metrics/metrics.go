// Package metrics exposes prometheus gauges and counters for the
// resource probe, supervisor, and tunnel/URL manager, surfaced at the
// metrics endpoint named in the external interfaces. Grounded on the
// teacher's metrics registration style (package-level vars registered
// once via promauto).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AppsTotal is the current count of tracked apps by status.
	AppsTotal = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "skiffd",
		Name:      "apps_total",
		Help:      "Number of tracked apps by status.",
	}, []string{"status"})

	// ProcessCPUPercent mirrors the last resource sample per app.
	ProcessCPUPercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "skiffd",
		Name:      "process_cpu_percent",
		Help:      "Last sampled CPU percent for an app's process group.",
	}, []string{"app_id"})

	ProcessMemoryBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "skiffd",
		Name:      "process_memory_bytes",
		Help:      "Last sampled resident memory for an app's process group.",
	}, []string{"app_id"})

	// RestartsTotal counts Supervisor-initiated restarts.
	RestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "skiffd",
		Name:      "restarts_total",
		Help:      "Number of restart attempts performed by the supervisor.",
	}, []string{"app_id"})

	// TunnelsActive is the current count of active tunnels by provider.
	TunnelsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "skiffd",
		Name:      "tunnels_active",
		Help:      "Number of currently active tunnels by provider.",
	}, []string{"provider"})

	// TunnelResponseMs observes tunnel health-check latency.
	TunnelResponseMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skiffd",
		Name:      "tunnel_response_ms",
		Help:      "Tunnel health-check response time in milliseconds.",
		Buckets:   []float64{50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"provider"})

	// InstallDurationSeconds observes end-to-end install time per step.
	InstallDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "skiffd",
		Name:      "install_duration_seconds",
		Help:      "Install step duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"step"})

	// WebSocketConnectionsActive is the current count of connected
	// dashboard clients subscribed to the event stream.
	WebSocketConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "skiffd",
		Name:      "websocket_connections_active",
		Help:      "Number of currently connected websocket clients.",
	})

	// WebSocketMessagesSentTotal counts events fanned out to clients.
	WebSocketMessagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "skiffd",
		Name:      "websocket_messages_sent_total",
		Help:      "Total events delivered to websocket clients.",
	})
)
