/*
Package resolver materializes Routes from a check's tag set against the
rule corpus, and turns a Notification into the Alert set that must be
queued for delivery.

RecomputeRoutes rebuilds a check's Routes; it is invoked explicitly
rather than via implicit after-add/after-remove hooks. The Processor
calls it when it auto-creates a check; no other code path in this
module changes a check's tags or the rule corpus.

Resolve enumerates matching, currently-active Routes for a Notification,
expands each to its Contact's Media, and applies the de-duplication
rule: a (contact, medium) pair already alerting is re-alerted only on
severity escalation, and is cleared entirely on recovery. When more
checks are simultaneously alerting a medium than its rollup threshold,
individual Alerts for that medium collapse into one digest Alert.

Resolve persists Route.IsAlerting changes itself — Route is its entity
to own — but does not persist the Check; the caller (the Processor)
folds Resolve's Check.AlertingMedia mutations into its own single
UpdateCheck call for the event.
*/
package resolver
