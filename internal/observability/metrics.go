package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce       sync.Once
	chatRequestsTotal  *prometheus.CounterVec
	chatLatencySeconds *prometheus.HistogramVec
	chatErrorsTotal    *prometheus.CounterVec
	chatConnections    prometheus.Gauge
	chatMessagesSent   *prometheus.CounterVec
	presenceOnline     prometheus.Gauge
	uploadLatency      prometheus.Histogram
	uploadRejected     *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the chat
// service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		chatRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_http_requests_total",
			Help: "Total number of chat API requests served.",
		}, []string{"method", "route", "status"})

		chatLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chat_http_latency_seconds",
			Help:    "Latency distribution for chat API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		chatErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_http_errors_total",
			Help: "Total number of error responses returned by chat endpoints.",
		}, []string{"method", "route", "status"})

		chatConnections = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_websocket_connections",
			Help: "Number of currently open chat websocket connections.",
		})

		chatMessagesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Total number of chat messages routed, labelled by scope.",
		}, []string{"scope"})

		presenceOnline = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_presence_online_users",
			Help: "Number of users currently tracked as online by this node.",
		})

		uploadLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chat_attachment_upload_seconds",
			Help:    "Latency distribution for attachment uploads.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		})

		uploadRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_attachment_rejected_total",
			Help: "Total number of rejected attachment uploads, labelled by reason.",
		}, []string{"reason"})

		prometheus.MustRegister(
			chatRequestsTotal,
			chatLatencySeconds,
			chatErrorsTotal,
			chatConnections,
			chatMessagesSent,
			presenceOnline,
			uploadLatency,
			uploadRejected,
		)
	})
}

// ChatRequests exposes the counter for chat API requests.
func ChatRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return chatRequestsTotal
}

// ChatLatency exposes the latency histogram for chat API requests.
func ChatLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return chatLatencySeconds
}

// ChatErrors exposes the counter for chat API error responses.
func ChatErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return chatErrorsTotal
}

// ChatConnectionsTotal exposes the open-connection gauge.
func ChatConnectionsTotal() prometheus.Gauge {
	RegisterMetrics()
	return chatConnections
}

// ChatMessagesSent exposes the per-scope message counter.
func ChatMessagesSent() *prometheus.CounterVec {
	RegisterMetrics()
	return chatMessagesSent
}

// PresenceOnline exposes the online-user gauge.
func PresenceOnline() prometheus.Gauge {
	RegisterMetrics()
	return presenceOnline
}

// UploadLatency exposes the attachment upload histogram.
func UploadLatency() prometheus.Histogram {
	RegisterMetrics()
	return uploadLatency
}

// UploadRejected exposes the rejected-upload counter.
func UploadRejected() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadRejected
}
