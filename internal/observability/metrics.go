package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	HandshakeAccepted = "accepted"
	HandshakeRejected = "rejected"
	HandshakeIgnored  = "ignored"

	DiscardUntrusted = "untrusted"
	DiscardUnmatched = "unmatched"
)

var (
	registerOnce sync.Once

	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blocksdk",
			Subsystem: "session",
			Name:      "handshakes_total",
			Help:      "Inbound handshakes by validation result.",
		},
		[]string{"side", "result"},
	)
	callsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blocksdk",
			Subsystem: "session",
			Name:      "calls_sent_total",
			Help:      "Calls transmitted to the trusted parent.",
		},
		[]string{"method"},
	)
	callRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blocksdk",
			Subsystem: "session",
			Name:      "call_retries_total",
			Help:      "Send attempts deferred because the handshake was not established.",
		},
	)
	callsAbandoned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blocksdk",
			Subsystem: "session",
			Name:      "calls_abandoned_total",
			Help:      "Calls dropped after the retry budget ran out.",
		},
	)
	callsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blocksdk",
			Subsystem: "session",
			Name:      "calls_expired_total",
			Help:      "Pending calls removed by the optional call timeout.",
		},
	)
	responses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blocksdk",
			Subsystem: "session",
			Name:      "responses_total",
			Help:      "Responses matched to a pending call.",
		},
	)
	callsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "blocksdk",
			Subsystem: "session",
			Name:      "calls_failed_total",
			Help:      "Calls the channel refused to post.",
		},
	)
	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blocksdk",
			Subsystem: "session",
			Name:      "notifications_total",
			Help:      "Uncorrelated editor messages handed to the notification hook.",
		},
		[]string{"method"},
	)
	inboundDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blocksdk",
			Subsystem: "session",
			Name:      "inbound_discarded_total",
			Help:      "Inbound messages dropped by the dispatcher.",
		},
		[]string{"reason"},
	)
	editorCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blocksdk",
			Subsystem: "editor",
			Name:      "calls_total",
			Help:      "Block calls answered by the editor.",
		},
		[]string{"method", "known"},
	)
	editorConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "blocksdk",
			Subsystem: "editor",
			Name:      "connections",
			Help:      "Open block connections.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "blocksdk",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "blocksdk",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			handshakes,
			callsSent,
			callRetries,
			callsAbandoned,
			callsExpired,
			responses,
			callsFailed,
			notifications,
			inboundDiscarded,
			editorCalls,
			editorConnections,
			httpRequests,
			httpDuration,
		)
	})
}

// RecordHandshake counts one inbound handshake; side is "block" or "editor".
func RecordHandshake(side, result string) {
	RegisterMetrics()
	handshakes.WithLabelValues(side, result).Inc()
}

func RecordCallSent(method string) {
	RegisterMetrics()
	callsSent.WithLabelValues(method).Inc()
}

func RecordCallRetry() {
	RegisterMetrics()
	callRetries.Inc()
}

func RecordCallAbandoned() {
	RegisterMetrics()
	callsAbandoned.Inc()
}

func RecordCallExpired() {
	RegisterMetrics()
	callsExpired.Inc()
}

func RecordResponse() {
	RegisterMetrics()
	responses.Inc()
}

func RecordCallFailed() {
	RegisterMetrics()
	callsFailed.Inc()
}

func RecordNotification(method string) {
	RegisterMetrics()
	notifications.WithLabelValues(method).Inc()
}

func RecordInboundDiscarded(reason string) {
	RegisterMetrics()
	inboundDiscarded.WithLabelValues(reason).Inc()
}

func RecordEditorCall(method string, known bool) {
	RegisterMetrics()
	editorCalls.WithLabelValues(method, strconv.FormatBool(known)).Inc()
}

func EditorConnectionOpened() {
	RegisterMetrics()
	editorConnections.Inc()
}

func EditorConnectionClosed() {
	RegisterMetrics()
	editorConnections.Dec()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
