/*
Package maintenance owns scheduled and unscheduled suppression windows
and answers whether a check is currently suppressed.

A scheduled window is pre-declared (ScheduleMaintenance); an unscheduled
one opens from an operator acknowledgement (Acknowledge) and at most one
may be open per check at a time — opening a new one truncates whatever
was open. Both kinds of window suppress problem alerts but never
recovery alerts, and ending one early clears is_alerting on the check's
routes so the next unhealthy sample re-notifies.

Scheduled and unscheduled windows are independent suppressors: a check
is suppressed at t iff either window covers t, and ending one early
while the other still covers t does not re-notify.
*/
package maintenance
