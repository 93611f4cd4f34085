package metrics

import (
	"github.com/ethereum/go-ethereum/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/testmux/testmux/types"
)

const (
	MetricsNamespace = "testmux"
)

var (
	Debug bool = false

	eventsBuffered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "events_buffered_total",
		Help:      "Count of lifecycle events buffered, by kind",
	}, []string{
		"kind",
	})

	messagesCaptured = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "messages_captured_total",
		Help:      "Count of raw output messages captured, by stream",
	}, []string{
		"stream",
	})

	capturesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "captures_dropped_total",
		Help:      "Count of captured messages dropped before replay",
	}, []string{
		"reason",
	})

	eventsReplayed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "events_replayed_total",
		Help:      "Count of merged items replayed into the aggregate sink",
	})

	workersCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "workers_completed_total",
		Help:      "Count of workers that have fully merged and replayed",
	}, []string{
		"run_id",
	})

	failures = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "failures",
		Help:      "Current count of test failures not yet cancelled by a retry",
	}, []string{
		"run_id",
	})

	invalidWireEvents = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "invalid_wire_events_total",
		Help:      "Count of wire events rejected by schema validation or decoding",
	})
)

func RecordEventBuffered(kind types.EventKind) {
	if Debug {
		log.Debug("metric inc", "m", "events_buffered_total", "kind", kind)
	}
	eventsBuffered.WithLabelValues(string(kind)).Inc()
}

func RecordMessageCaptured(stream types.StreamName) {
	messagesCaptured.WithLabelValues(string(stream)).Inc()
}

// RecordCaptureDropped tracks messages discarded before replay. Reasons are
// "retry" (attempt abandoned), "merged" (arrived after the worker's replay),
// "overflow" (per-worker byte cap exceeded) and "bad_stream" (no replay
// target for the named stream).
func RecordCaptureDropped(reason string) {
	if Debug {
		log.Debug("metric inc", "m", "captures_dropped_total", "reason", reason)
	}
	capturesDropped.WithLabelValues(reason).Inc()
}

func RecordEventsReplayed(n int) {
	eventsReplayed.Add(float64(n))
}

func RecordWorkerCompleted(runID string) {
	workersCompleted.WithLabelValues(runID).Inc()
}

func SetFailures(runID string, n int) {
	failures.WithLabelValues(runID).Set(float64(n))
}

func RecordInvalidWireEvent() {
	invalidWireEvents.Inc()
}
