// Package metrics defines the prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicerelay_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "voicerelay_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	CompletionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "voicerelay_completion_latency_seconds",
			Help: "Upstream completion call latency in seconds",
		},
	)

	Rejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voicerelay_rejections_total",
			Help: "Requests rejected before reaching the completion service",
		},
		[]string{"reason"}, // rate, cooldown, invalid, too_long
	)

	HistoryEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "voicerelay_history_entries",
			Help: "Current number of conversation log entries",
		},
	)
)
