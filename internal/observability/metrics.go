package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Call metrics
	activeCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meeting_recorder_active_calls",
		Help: "Number of adapter connections currently open",
	})

	totalCalls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meeting_recorder_calls_total",
		Help: "Total number of calls handled",
	})

	// Meeting lifecycle metrics
	meetingsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_recorder_meetings_total",
		Help: "Meeting lifecycle events",
	}, []string{"event"}) // event: "created" or "ended"

	// Recorder metrics
	activeRecorders = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meeting_recorder_active_recorders",
		Help: "Number of per-speaker recorders currently running",
	})

	utterancesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_recorder_utterances_total",
		Help: "Processed utterance buffers by outcome",
	}, []string{"outcome"}) // outcome: "transcribed", "silent", "empty", "error"

	// Transcription metrics
	transcriptionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "meeting_recorder_transcription_duration_seconds",
		Help:    "Wall time spent transcribing one utterance",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Summary and notification metrics
	summariesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_recorder_summaries_total",
		Help: "Summary generation attempts by result",
	}, []string{"result"})

	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_recorder_notifications_total",
		Help: "Summary delivery attempts by result",
	}, []string{"result"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meeting_recorder_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meeting_recorder_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioBytesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meeting_recorder_audio_bytes_total",
		Help: "Total raw audio bytes received from the adapter",
	})
)

// IncrementActiveCalls records a new adapter connection.
func IncrementActiveCalls() {
	activeCalls.Inc()
	totalCalls.Inc()
}

// DecrementActiveCalls records an adapter connection closing.
func DecrementActiveCalls() {
	activeCalls.Dec()
}

// IncrementMeetings records a meeting lifecycle event.
func IncrementMeetings(event string) {
	meetingsTotal.WithLabelValues(event).Inc()
}

// UpdateActiveRecorders sets the running recorder count.
func UpdateActiveRecorders(count int) {
	activeRecorders.Set(float64(count))
}

// IncrementUtterances records one processed utterance buffer.
func IncrementUtterances(outcome string) {
	utterancesTotal.WithLabelValues(outcome).Inc()
}

// ObserveTranscriptionDuration records one transcription round trip.
func ObserveTranscriptionDuration(seconds float64) {
	transcriptionDuration.Observe(seconds)
}

// IncrementSummaries records a summary generation attempt.
func IncrementSummaries(result string) {
	summariesTotal.WithLabelValues(result).Inc()
}

// IncrementNotifications records a summary delivery attempt.
func IncrementNotifications(result string) {
	notificationsTotal.WithLabelValues(result).Inc()
}

// RecordAudioBytes counts raw audio received from the adapter.
func RecordAudioBytes(n int) {
	audioBytesReceived.Add(float64(n))
}

// UpdateCircuitBreakerState updates the circuit breaker state metric.
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments the failure counter.
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
