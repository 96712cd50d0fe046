package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Receiver metrics
	EventsReceivedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_events_received_total",
			Help: "Total number of events pulled off the inbound queue by type",
		},
		[]string{"type"},
	)

	EventsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_events_rejected_total",
			Help: "Total number of events dropped for malformed input, by reason",
		},
		[]string{"reason"},
	)

	// Processor metrics
	ChecksTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flapjack_checks_total",
			Help: "Total number of checks by current condition",
		},
		[]string{"condition"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_notifications_total",
			Help: "Total number of notifications emitted by type",
		},
		[]string{"type"},
	)

	EventProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flapjack_event_processing_duration_seconds",
			Help:    "Time taken to apply one event to a check",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Maintenance metrics
	MaintenanceWindowsOpenTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flapjack_maintenance_windows_open_total",
			Help: "Total number of currently open maintenance windows by kind",
		},
		[]string{"kind"}, // scheduled | unscheduled
	)

	AcknowledgementsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flapjack_acknowledgements_total",
			Help: "Total number of successful acknowledgements",
		},
	)

	// Resolver metrics
	RouteResolutionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flapjack_route_resolution_duration_seconds",
			Help:    "Time taken to resolve a notification into alerts",
			Buckets: prometheus.DefBuckets,
		},
	)

	RoutesRecomputedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flapjack_routes_recomputed_total",
			Help: "Total number of times a check's route set was recomputed",
		},
	)

	AlertsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_alerts_enqueued_total",
			Help: "Total number of alerts enqueued by medium type",
		},
		[]string{"medium"},
	)

	RollupsActiveTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flapjack_rollups_active_total",
			Help: "Number of media currently in rollup (digest) mode",
		},
		[]string{"medium"},
	)

	// Dispatcher metrics
	AlertsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_alerts_delivered_total",
			Help: "Total number of alerts successfully delivered by medium",
		},
		[]string{"medium"},
	)

	AlertsRetriedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_alerts_retried_total",
			Help: "Total number of transient delivery failures requeued by medium",
		},
		[]string{"medium"},
	)

	AlertsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_alerts_dropped_total",
			Help: "Total number of alerts permanently dropped by medium",
		},
		[]string{"medium"},
	)

	AlertDeliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flapjack_alert_delivery_duration_seconds",
			Help:    "Time taken for a medium handler to return",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"medium"},
	)

	// Self-heal / retention metrics
	SelfHealCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flapjack_self_heal_cycles_total",
			Help: "Total number of self-heal sweep cycles completed",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flapjack_reconciliation_duration_seconds",
			Help:    "Time taken for one self-heal sweep cycle across all checks",
			Buckets: prometheus.DefBuckets,
		},
	)

	InvariantViolationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flapjack_invariant_violations_total",
			Help: "Total number of logic invariant violations self-healed, by kind",
		},
		[]string{"kind"},
	)

	StatesTrimmedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "flapjack_states_trimmed_total",
			Help: "Total number of state records trimmed past the retention bound",
		},
	)
)

func init() {
	prometheus.MustRegister(
		EventsReceivedTotal,
		EventsRejectedTotal,
		ChecksTotal,
		NotificationsTotal,
		EventProcessingDuration,
		MaintenanceWindowsOpenTotal,
		AcknowledgementsTotal,
		RouteResolutionDuration,
		RoutesRecomputedTotal,
		AlertsEnqueuedTotal,
		RollupsActiveTotal,
		AlertsDeliveredTotal,
		AlertsRetriedTotal,
		AlertsDroppedTotal,
		AlertDeliveryDuration,
		SelfHealCyclesTotal,
		ReconciliationDuration,
		InvariantViolationsTotal,
		StatesTrimmedTotal,
	)
}

// Handler returns the Prometheus scrape handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations and observing their duration.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the elapsed duration to a labeled histogram.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
