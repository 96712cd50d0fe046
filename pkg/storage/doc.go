/*
Package storage implements the Store interface that the core pipeline
(receiver, processor, maintenance manager, resolver, dispatcher) uses
for all persistence. No component talks to a database directly; they
all go through Store.

Two implementations are provided:

  - BoltStore: an embedded, single-process bbolt database. One bucket
    per entity class, keyed by ID, with secondary lookups (by name, by
    check) done as bucket scans — fine at the cardinalities this system
    operates at (thousands of checks, not millions).
  - RedisStore: a Redis-backed implementation, closer to the reference
    deployment model — entities as JSON strings under "<class>:<id>",
    states as a per-check sorted set scored by their timestamp, and index
    lookups as Redis sets (name lookups as hashes).

Both satisfy the same Store interface, so the core pipeline is written
against Store and never against a concrete backend.

# Locking

Store.Lock is the one primitive every multi-entity mutation in this
codebase routes through: a check transition that also has to update its
routes' is_alerting flags acquires Lock([]EntityClass{ClassCheck,
ClassRoute}, ...) rather than locking each bucket ad hoc. lock.go
implements this as an in-process keyed mutex, always acquired in sorted
class order, so two goroutines locking the same classes in any order
never deadlock. RedisStore uses the same in-process lock; it issues no
Redis transactions (WATCH/MULTI), so the lock serializes callers within
one process only.

# Buckets / keys

	checks                      Check.ID -> Check
	states                      "<checkID>/<createdAt ns>/<id>" -> State, ordered
	scheduled_maintenances       ScheduledMaintenance.ID -> window
	unscheduled_maintenances     UnscheduledMaintenance.ID -> window
	tags, contacts, media, rules Entity.ID -> entity
	routes                       Route.ID -> route
	alerts                       Alert.ID -> alert (RedisStore also keeps a per-medium queue set)
*/
package storage
