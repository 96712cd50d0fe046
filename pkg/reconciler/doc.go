/*
Package reconciler runs Flapjack's self-heal sweep.

One error kind the pipeline fixes rather than escalates: a logic
invariant violation is logged at error severity and self-healed by
removing the bad reference, then processing continues. The reconciler
is where that self-heal runs — periodically, not on the hot path of
any single event.

Each cycle it:
  - drops alerting_media entries that are malformed or reference a
    medium that no longer exists (invariant: alerting_media only ever
    names live media),
  - deletes unscheduled maintenance windows whose end has passed, clearing is_alerting on their check's routes so the next
    unhealthy sample re-notifies,
  - trims each check's State history past the configured retention bound.

It never mutates a Check's condition, streak, or route set — those are
the Processor and Resolver's exclusive write paths under the store's
per-check lock.
*/
package reconciler
