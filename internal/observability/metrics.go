package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Client connection metrics
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stt_relay_active_connections",
		Help: "Number of connected relay clients",
	})

	totalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stt_relay_connections_total",
		Help: "Total number of relay client connections",
	})

	connectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stt_relay_connection_duration_seconds",
		Help:    "Duration of relay client connections in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 1800, 3600},
	})

	// Upstream session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stt_relay_active_sessions",
		Help: "Number of open upstream transcription sessions",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_relay_sessions_total",
		Help: "Upstream sessions by terminal outcome",
	}, []string{"outcome"}) // closed, failed, rejected

	connectLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stt_relay_upstream_connect_seconds",
		Help:    "Time from open request to upstream handshake ack",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
	})

	keepAlives = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stt_relay_keepalives_total",
		Help: "KeepAlive frames written upstream",
	})

	// Transcript metrics
	fragmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_relay_fragments_total",
		Help: "Normalized transcript fragments by finality",
	}, []string{"final"})

	utterancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_relay_utterances_total",
		Help: "Committed utterances by commit trigger",
	}, []string{"trigger"}) // final, utterance_end, flush

	malformedPayloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stt_relay_malformed_payloads_total",
		Help: "Upstream payloads dropped because they could not be parsed",
	})

	// Audio metrics
	audioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_relay_audio_bytes_total",
		Help: "Total audio bytes relayed",
	}, []string{"direction"}) // in: from client, out: to upstream

	audioChunksDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_relay_audio_chunks_dropped_total",
		Help: "Audio chunks dropped before reaching the upstream",
	}, []string{"reason"}) // not_streaming, overflow

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_relay_events_published_total",
		Help: "Utterance events by publish result",
	}, []string{"result"}) // ok, error, log_only

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stt_relay_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// Metrics tracks metrics for a single client connection
type Metrics struct {
	connectionID string
	startTime    time.Time
	endOnce      sync.Once
}

// NewConnectionMetrics creates a new metrics tracker for a client connection
func NewConnectionMetrics(connectionID string) *Metrics {
	return &Metrics{
		connectionID: connectionID,
		startTime:    time.Now(),
	}
}

// RecordConnectionStart records the start of a client connection
func (m *Metrics) RecordConnectionStart() {
	activeConnections.Inc()
	totalConnections.Inc()
}

// RecordConnectionEnd records the end of a client connection. Safe to call more than once.
func (m *Metrics) RecordConnectionEnd() {
	m.endOnce.Do(func() {
		activeConnections.Dec()
		connectionDuration.Observe(time.Since(m.startTime).Seconds())
	})
}

// RecordFragment records a normalized fragment
func (m *Metrics) RecordFragment(final bool) {
	label := "false"
	if final {
		label = "true"
	}
	fragmentsTotal.WithLabelValues(label).Inc()
}

// RecordUtterance records a committed utterance and what triggered it
func (m *Metrics) RecordUtterance(trigger string) {
	utterancesTotal.WithLabelValues(trigger).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioBytes records audio bytes relayed
func (m *Metrics) RecordAudioBytes(direction string, bytes int64) {
	audioBytes.WithLabelValues(direction).Add(float64(bytes))
}

// SessionOpened records a session reaching READY.
func SessionOpened(connect time.Duration) {
	activeSessions.Inc()
	connectLatency.Observe(connect.Seconds())
}

// SessionEnded records a session that had reached READY leaving for a terminal state.
func SessionEnded(outcome string) {
	activeSessions.Dec()
	sessionsTotal.WithLabelValues(outcome).Inc()
}

// SessionRejected records an open request that never reached READY.
func SessionRejected() {
	sessionsTotal.WithLabelValues("rejected").Inc()
}

// AudioChunkDropped records a chunk that never reached the upstream.
func AudioChunkDropped(reason string) {
	audioChunksDropped.WithLabelValues(reason).Inc()
}

// AudioBytesOut records bytes written to the upstream.
func AudioBytesOut(n int) {
	audioBytes.WithLabelValues("out").Add(float64(n))
}

// KeepAliveSent records a KeepAlive frame.
func KeepAliveSent() {
	keepAlives.Inc()
}

// MalformedPayload records a dropped upstream payload.
func MalformedPayload() {
	malformedPayloads.Inc()
}

// EventPublished records an utterance event publish result.
func EventPublished(result string) {
	eventsPublished.WithLabelValues(result).Inc()
}
