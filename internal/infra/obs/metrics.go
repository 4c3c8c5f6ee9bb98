package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce sync.Once

	snapshotLoads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zarp",
			Name:      "snapshot_loads_total",
			Help:      "Count of availability snapshot loads by status.",
		},
		[]string{"status"},
	)

	liveEventsApplied = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zarp",
			Name:      "live_events_applied_total",
			Help:      "Count of live reservation events merged into a session set.",
		},
	)

	liveEventsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zarp",
			Name:      "live_events_dropped_total",
			Help:      "Count of live events dropped by reason.",
		},
		[]string{"reason"},
	)

	liveReconnects = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zarp",
			Name:      "live_reconnects_total",
			Help:      "Count of live channel reconnect attempts.",
		},
	)

	liveConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "zarp",
			Name:      "live_connected",
			Help:      "Number of sessions with a healthy live subscription.",
		},
	)

	selectionsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zarp",
			Name:      "selections_rejected_total",
			Help:      "Count of rejected date selections by reason.",
		},
		[]string{"reason"},
	)

	submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zarp",
			Name:      "submissions_total",
			Help:      "Count of booking submissions by outcome.",
		},
		[]string{"outcome"},
	)

	openSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "zarp",
			Name:      "open_sessions",
			Help:      "Number of property viewing sessions currently open.",
		},
	)
)

// RegisterMetrics registers engine metrics (idempotent).
func RegisterMetrics() {
	metricsOnce.Do(func() {
		prometheus.MustRegister(
			snapshotLoads,
			liveEventsApplied,
			liveEventsDropped,
			liveReconnects,
			liveConnected,
			selectionsRejected,
			submissions,
			openSessions,
		)
	})
}

func IncSnapshotLoad(status string)     { snapshotLoads.WithLabelValues(status).Inc() }
func IncLiveEventApplied()              { liveEventsApplied.Inc() }
func IncLiveEventDropped(reason string) { liveEventsDropped.WithLabelValues(reason).Inc() }
func IncLiveReconnect()                 { liveReconnects.Inc() }
func IncSelectionRejected(reason string) {
	selectionsRejected.WithLabelValues(reason).Inc()
}
func IncSubmission(outcome string) { submissions.WithLabelValues(outcome).Inc() }

func SetLiveConnected(connected bool) {
	if connected {
		liveConnected.Inc()
	} else {
		liveConnected.Dec()
	}
}

func SessionOpened() { openSessions.Inc() }
func SessionClosed() { openSessions.Dec() }
