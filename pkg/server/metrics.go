package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricConnections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediarelay",
			Subsystem: "server",
			Name:      "connections_total",
			Help:      "Connections handled, by terminal state.",
		}, []string{"state"})

	metricActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mediarelay",
			Subsystem: "server",
			Name:      "active_connections",
			Help:      "Connections currently being served.",
		})

	metricErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mediarelay",
			Subsystem: "server",
			Name:      "errors_total",
			Help:      "Failed requests, by error kind and code.",
		}, []string{"kind", "code"})

	metricBytesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mediarelay",
			Subsystem: "server",
			Name:      "received_bytes_total",
			Help:      "Bytes read from clients, including framing and encryption overhead.",
		})

	metricBytesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mediarelay",
			Subsystem: "server",
			Name:      "sent_bytes_total",
			Help:      "Bytes written to clients, including framing and encryption overhead.",
		})

	metricProcessingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mediarelay",
			Subsystem: "server",
			Name:      "processing_duration_seconds",
			Help:      "Time spent transforming uploads, by action.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"action"})
)

func init() {
	prometheus.MustRegister(
		metricConnections,
		metricActiveConnections,
		metricErrors,
		metricBytesReceived,
		metricBytesSent,
		metricProcessingDuration,
	)
}
