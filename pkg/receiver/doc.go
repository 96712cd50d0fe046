/*
Package receiver pulls serialized events off the inbound queue,
validates them against the wire schema, and hands well-formed events
to the caller one at a time.

Malformed JSON and schema violations are dropped with a reject-counter
increment rather than surfaced as an error — the receiver never blocks
the queue on a single bad message, and idempotence of well-formed
events is the Check Processor's responsibility, not this package's.
*/
package receiver
