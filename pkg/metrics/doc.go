/*
Package metrics provides Prometheus metrics collection and exposition for
Flapjack.

Every pipeline stage (receiver, processor, maintenance manager, resolver,
dispatcher) increments or observes a small set of counters, gauges, and
histograms defined here. Components never
register ad-hoc metrics of their own; this package is the single place a
metric name is declared, so a reader can find every exported measurement in
one file.

	┌─────────────── METRICS SYSTEM ───────────────┐
	│  Receiver:    events_received / rejected       │
	│  Processor:   checks_total, notifications_total│
	│  Maintenance: windows_open, acknowledgements   │
	│  Resolver:    route_resolution, alerts_enqueued│
	│  Dispatcher:  delivered / retried / dropped    │
	│  Self-heal:   cycles, invariant_violations     │
	└──────────────────┬──────────────────────────┬─┘
	                   │  promhttp.Handler()
	                   ▼
	            /metrics endpoint

Health and readiness probes live alongside the metrics in health.go, exposed
as /health, /ready, and /live for a process supervisor.

# Example queries

Notification volume:

	rate(flapjack_notifications_total[5m])

Dispatch health by medium:

	rate(flapjack_alerts_dropped_total[5m]) / rate(flapjack_alerts_enqueued_total[5m])

Reject rate (malformed inbound events):

	rate(flapjack_events_rejected_total[5m])
*/
package metrics
