// Package prometheus exports voice runtime metrics to Prometheus.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sighttech"

var (
	// turnTransitionsTotal counts turn state changes.
	turnTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_transitions_total",
			Help:      "Total number of turn state transitions",
		},
		[]string{"from", "to"},
	)

	// turnTransitionsRejectedTotal counts transitions refused by the state table.
	turnTransitionsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_transitions_rejected_total",
			Help:      "Total number of rejected turn state transitions",
		},
		[]string{"from", "to"},
	)

	// clipsTotal counts capture windows by outcome.
	clipsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "capture_clips_total",
			Help:      "Total number of capture windows evaluated",
		},
		[]string{"status"}, // status: accepted, rejected
	)

	// clipBytes is a histogram of accepted clip sizes.
	clipBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_clip_bytes",
			Help:      "Size of accepted capture clips in bytes",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 8),
		},
	)

	// interpretDuration is a histogram of interpretation request duration.
	interpretDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "interpret_duration_seconds",
			Help:      "Duration of interpretation requests in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"}, // status: success, error
	)

	// intentsTotal counts interpreted intents.
	intentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "interpret_intents_total",
			Help:      "Total number of interpreted intents by kind",
		},
		[]string{"intent"},
	)

	// commandsTotal counts routed commands.
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of commands routed to the page",
		},
		[]string{"kind"}, // kind: utterance, navigate, action
	)

	// speechDuration is a histogram of speech output duration.
	speechDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "speech_duration_seconds",
			Help:      "Duration of speech output in seconds",
			Buckets:   []float64{.5, 1, 2, 3, 5, 10, 20},
		},
		[]string{"status"},
	)

	// streamConnected is 1 while a streaming session is connected.
	streamConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_connected",
			Help:      "Whether the streaming session is connected",
		},
	)

	// streamStateChangesTotal counts streaming state changes.
	streamStateChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_state_changes_total",
			Help:      "Total number of streaming connection state changes",
		},
		[]string{"to"},
	)

	// streamFramesTotal counts push ticks by outcome.
	streamFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_frames_total",
			Help:      "Total number of push ticks by outcome",
		},
		[]string{"status"}, // status: sent, in_flight, rate_limited, no_frame, send_failed
	)

	// streamResultLatency is a histogram of frame-to-result latency.
	streamResultLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_result_latency_seconds",
			Help:      "Time from frame send to result in seconds",
			Buckets:   []float64{.05, .1, .2, .5, 1, 2, 5, 10},
		},
		[]string{"type"},
	)

	// streamReconnectsTotal counts scheduled reconnects.
	streamReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_reconnects_total",
			Help:      "Total number of scheduled reconnect attempts",
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		turnTransitionsTotal,
		turnTransitionsRejectedTotal,
		clipsTotal,
		clipBytes,
		interpretDuration,
		intentsTotal,
		commandsTotal,
		speechDuration,
		streamConnected,
		streamStateChangesTotal,
		streamFramesTotal,
		streamResultLatency,
		streamReconnectsTotal,
	}
)

// RecordTransition records a turn state change.
func RecordTransition(from, to string) {
	turnTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordRejectedTransition records a refused turn state change.
func RecordRejectedTransition(from, to string) {
	turnTransitionsRejectedTotal.WithLabelValues(from, to).Inc()
}

// RecordClip records a capture window outcome.
func RecordClip(accepted bool, bytes int) {
	if !accepted {
		clipsTotal.WithLabelValues("rejected").Inc()
		return
	}
	clipsTotal.WithLabelValues("accepted").Inc()
	clipBytes.Observe(float64(bytes))
}

// RecordInterpretation records an interpretation request.
func RecordInterpretation(status, intent string, durationSeconds float64) {
	interpretDuration.WithLabelValues(status).Observe(durationSeconds)
	if intent != "" {
		intentsTotal.WithLabelValues(intent).Inc()
	}
}

// RecordCommand records a routed command.
func RecordCommand(kind string) {
	commandsTotal.WithLabelValues(kind).Inc()
}

// RecordSpeech records a finished utterance.
func RecordSpeech(status string, durationSeconds float64) {
	speechDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordStreamState records a streaming state change.
func RecordStreamState(to string) {
	streamStateChangesTotal.WithLabelValues(to).Inc()
	if to == "connected" {
		streamConnected.Set(1)
	} else {
		streamConnected.Set(0)
	}
}

// RecordStreamFrame records a push tick outcome.
func RecordStreamFrame(status string) {
	streamFramesTotal.WithLabelValues(status).Inc()
}

// RecordStreamResult records a result and its latency.
func RecordStreamResult(messageType string, latencySeconds float64) {
	streamResultLatency.WithLabelValues(messageType).Observe(latencySeconds)
}

// RecordStreamReconnect records a scheduled reconnect.
func RecordStreamReconnect() {
	streamReconnectsTotal.Inc()
}
