package receiver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/flapjack-io/flapjack/pkg/log"
	"github.com/flapjack-io/flapjack/pkg/metrics"
	"github.com/flapjack-io/flapjack/pkg/queue"
	"github.com/flapjack-io/flapjack/pkg/types"
	"github.com/rs/zerolog"
)

// ValidationError reports a malformed or schema-violating inbound
// event. It is never wrapped further up the call stack — the receiver
// is the boundary where wire input either becomes a trusted
// types.RawEvent or is dropped.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid event: %s", e.Reason)
}

// Receiver pulls JSON-encoded events off a durable queue, validates
// them, and surfaces one well-formed types.RawEvent per Receive call.
// It owns no durable state of its own.
type Receiver struct {
	queue  queue.Queue
	logger zerolog.Logger
}

// New creates a Receiver consuming q.
func New(q queue.Queue) *Receiver {
	return &Receiver{queue: q, logger: log.WithComponent("receiver")}
}

// Submit encodes event as JSON and pushes it onto the inbound queue.
// Gateways use this to enqueue events; the CLI's ingest command and the
// administrative Ingest operation bypasses the queue entirely and
// calls the processor directly.
func (r *Receiver) Submit(ctx context.Context, event *types.RawEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.queue.Push(ctx, payload)
}

// Receive blocks until a well-formed event is available or ctx is
// cancelled. Malformed or schema-violating payloads are dropped
// silently (after a reject-counter increment and a warn log) and
// Receive keeps pulling rather than returning an error for them.
func (r *Receiver) Receive(ctx context.Context) (*types.RawEvent, error) {
	for {
		payload, err := r.queue.Pop(ctx)
		if err != nil {
			return nil, err
		}

		var event types.RawEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			metrics.EventsRejectedTotal.WithLabelValues("malformed_json").Inc()
			r.logger.Warn().Err(err).Msg("dropping malformed event")
			continue
		}
		if verr := validate(&event); verr != nil {
			metrics.EventsRejectedTotal.WithLabelValues("schema_violation").Inc()
			r.logger.Warn().Err(verr).Msg("dropping event that failed schema validation")
			continue
		}
		return &event, nil
	}
}

// Ack marks event consumed. MemoryQueue already removes a payload on
// Pop, so this is a no-op against it; a durable broker-backed Queue
// would use it to commit the offset/delete the message.
func (r *Receiver) Ack(event *types.RawEvent) {}

func validate(event *types.RawEvent) error {
	if event.CheckName() == "" {
		return &ValidationError{Reason: "entity is required"}
	}
	switch event.Type {
	case types.EventTypeService, types.EventTypeAction, types.EventTypeMetric:
	default:
		return &ValidationError{Reason: fmt.Sprintf("unknown type %q", event.Type)}
	}
	if event.State == "" {
		return &ValidationError{Reason: "state is required"}
	}
	if event.Type == types.EventTypeAction && event.AcknowledgementID == "" {
		return &ValidationError{Reason: "action events require acknowledgement_id"}
	}
	return nil
}
