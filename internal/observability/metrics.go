package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Call metrics
	activeCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_bridge_active_calls",
		Help: "Number of active phone calls",
	})

	totalCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_bridge_calls_total",
		Help: "Total number of calls processed",
	})

	callDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_bridge_call_duration_seconds",
		Help:    "Duration of phone calls in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	})

	// LLM metrics
	llmConnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_bridge_llm_connect_attempts_total",
		Help: "Total number of Live channel connect attempts",
	}, []string{"status"})

	llmTurns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_bridge_llm_turns_total",
		Help: "Total number of completed LLM response turns",
	})

	// Audio metrics
	audioBytesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_bridge_audio_bytes_total",
		Help: "Total audio bytes processed",
	}, []string{"direction"}) // direction: "in" or "out"

	outboundChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_bridge_outbound_chunks_total",
		Help: "Total outbound media chunks flushed to the telephony peer",
	})

	// Post-call pipeline metrics
	postCallStageErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_bridge_postcall_stage_errors_total",
		Help: "Total post-call pipeline stage errors",
	}, []string{"stage"})

	// Notification metrics
	notificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_bridge_notifications_total",
		Help: "Total WhatsApp notifications dispatched",
	}, []string{"recipient_type", "status"})

	// Token metrics
	tokensUsed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_bridge_ai_tokens_total",
		Help: "Total AI tokens consumed",
	}, []string{"operation"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_bridge_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})
)

// Metrics tracks metrics for a single call
type Metrics struct {
	sessionID string
	startTime time.Time
	mu        sync.Mutex
}

// NewCallMetrics creates a new metrics tracker for a call
func NewCallMetrics(sessionID string) *Metrics {
	return &Metrics{
		sessionID: sessionID,
		startTime: time.Now(),
	}
}

// RecordCallStart records the start of a call
func (m *Metrics) RecordCallStart() {
	activeCalls.Inc()
	totalCalls.Inc()
}

// RecordCallEnd records the end of a call
func (m *Metrics) RecordCallEnd() {
	activeCalls.Dec()
	callDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordAudioBytes records audio bytes for a direction ("in" or "out")
func (m *Metrics) RecordAudioBytes(direction string, n int64) {
	audioBytesProcessed.WithLabelValues(direction).Add(float64(n))
}

// RecordOutboundChunk records one flushed media chunk
func (m *Metrics) RecordOutboundChunk() {
	outboundChunks.Inc()
}

// RecordLLMConnect records the outcome of a Live channel connect attempt
func (m *Metrics) RecordLLMConnect(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	llmConnectAttempts.WithLabelValues(status).Inc()
}

// RecordLLMTurn records one completed response turn
func (m *Metrics) RecordLLMTurn() {
	llmTurns.Inc()
}

// RecordPostCallStageError records a failure inside a post-call stage
func (m *Metrics) RecordPostCallStageError(stage string) {
	postCallStageErrors.WithLabelValues(stage).Inc()
}

// RecordNotification records a dispatched notification outcome
func (m *Metrics) RecordNotification(recipientType, status string) {
	notificationsSent.WithLabelValues(recipientType, status).Inc()
}

// RecordTokens records AI tokens consumed by an operation
func (m *Metrics) RecordTokens(operation string, n int64) {
	if n > 0 {
		tokensUsed.WithLabelValues(operation).Add(float64(n))
	}
}

// RecordError records an error by type and component
func (m *Metrics) RecordError(errType, component string) {
	errorsTotal.WithLabelValues(errType, component).Inc()
}
