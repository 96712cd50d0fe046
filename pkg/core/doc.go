/*
Package core wires the Event Receiver, Check Processor, Maintenance
Manager, Route Resolver, and Alert Dispatcher into one running system
and exposes the administrative control surface: Ingest, CurrentState,
Acknowledge, ScheduleMaintenance, EndMaintenance, and TestNotification.

Every administrative operation that mutates a Check, its Routes, or its
Maintenances runs inside one storage.Store.Lock call — core is the only
package that locks on behalf of a direct administrative call; Ingest
delegates to processor.Processor.Process, which already owns its own
lock per event.

Run starts the receiver pump, dispatcher workers, and reconciler sweep
loop, and blocks until ctx is cancelled; Shutdown then has
shutdown_grace seconds to let in-flight work finish before the process
exits.
*/
package core
