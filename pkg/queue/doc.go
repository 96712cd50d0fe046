/*
Package queue defines the durable FIFO abstraction that sits on both
ends of the pipeline: the inbound event queue the Receiver drains, and
the per-medium outbound alert queues the Dispatcher's workers drain.

MemoryQueue is the in-process implementation used by tests and
single-node deployments; a production deployment backs Queue with
whatever broker operations already manage (SQS, Redis lists, NATS) by
implementing the same methods. The Receiver depends only on Queue; the
Dispatcher creates and uses MemoryQueues for its per-medium queues.
*/
package queue
