// Package metrics exposes the Prometheus instrumentation shared by the
// broker, dispatcher and transport, plus a sampler for process-level
// resource usage.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rejection reasons for ConnectionsRejected.
const (
	RejectReasonRateLimited = "rate_limited"
	RejectReasonCapacity    = "capacity"
	RejectReasonShutdown    = "shutdown"
)

var (
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topichub_connections_total",
		Help: "Total number of WebSocket connections accepted",
	})

	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "topichub_connections_active",
		Help: "Current number of open WebSocket connections",
	})

	ConnectionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topichub_connections_rejected_total",
		Help: "Connections rejected before upgrade, by reason",
	}, []string{"reason"})

	MessagesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topichub_messages_received_total",
		Help: "Total frames received from clients",
	})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topichub_messages_sent_total",
		Help: "Total frames written to clients",
	})

	BytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topichub_bytes_received_total",
		Help: "Total bytes received from clients",
	})

	BytesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topichub_bytes_sent_total",
		Help: "Total bytes written to clients",
	})

	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topichub_events_published_total",
		Help: "Total events accepted by publish",
	})

	HistoryReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topichub_history_replayed_total",
		Help: "Total history frames replayed to fresh subscribers",
	})

	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topichub_frames_dropped_total",
		Help: "Outbound frames dropped by full dispatcher queues (drop-oldest)",
	})

	TopicsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "topichub_topics_active",
		Help: "Current number of topics",
	})

	SubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "topichub_subscriptions_active",
		Help: "Current subscriptions summed across topics (a client counts once per topic)",
	})

	ClientsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "topichub_clients_active",
		Help: "Current number of distinct client sessions",
	})

	memoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "topichub_memory_bytes",
		Help: "Resident memory of the broker process",
	})

	cpuPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "topichub_cpu_percent",
		Help: "CPU usage of the broker process",
	})

	goroutines = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "topichub_goroutines",
		Help: "Current goroutine count",
	})
)

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
