/*
Package events provides an in-memory broker for Flapjack's internal
lifecycle events.

The core pipeline (receiver, processor, maintenance manager, resolver,
dispatcher) publishes one Event per notable occurrence — a check
transitioning condition, a notification emitted, an alert delivered or
dropped, a maintenance window opening or closing. Subscribers (an audit
sink, a test harness asserting on pipeline behavior) receive a broadcast copy without the publisher blocking or
knowing who, if anyone, is listening.

This is purely an observability/testing seam: no core invariant depends
on a subscriber seeing an event, and publish never blocks the pipeline.

	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)
	broker.Publish(&events.Event{Type: events.EventNotificationEmitted, CheckID: id})
*/
package events
