/*
Package types defines Flapjack's domain model: the entities every other
package reads and mutates.

Checks, Routes, and Rules form a cyclic object graph (a Check has Routes,
a Route names a Rule, a Rule's tags select Checks). None of that is
represented as embedded pointers here — every relation is a slice of
IDs, and traversal goes through the store's lookup operations. That
keeps the graph safe to store as flat records and safe to mutate under
the store's per-check lock without chasing stale pointers.

# Core types

  - Check: the monitored entity, its current Condition, failure streak
    state, and the set of media currently alerting for it.
  - State: one immutable sample in a check's history.
  - ScheduledMaintenance / UnscheduledMaintenance: suppression windows.
  - Contact, Medium: a recipient and the channels they can be reached on.
  - Rule, Route: a contact's routing policy and its materialized join
    with a matching check.
  - Notification, Alert: the two work-item types the pipeline produces,
    the first internal, the second dispatchable.

# Severity

Conditions are ordered unknown < warning < critical for escalation
comparisons; Worse reports whether one unhealthy condition outranks
another. ConditionOK is the only healthy condition in this vocabulary.
*/
package types
