/*
Package processor implements the Check Processor: it applies one
inbound event to its Check, decides whether the resulting transition
warrants a Notification, and (through the Maintenance Manager and the
Resolver) turns that Notification into queued Alerts.

Process resolves or auto-creates the named Check, appends a State,
evaluates the transition table against the check's prior condition,
applies hold-down ("initial_failure_delay") and repeat-rate
("repeat_failure_delay") timing, consults maintenance suppression, and
folds every mutation — Check, State, Route.is_alerting — into one
store.Lock call so a single event is atomic end to end.

Duplicate redelivery of the identical event (same condition, summary,
and timestamp as the check's last recorded state) is a no-op: no new
State, no Notification.
*/
package processor
