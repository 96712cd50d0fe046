package dispatch

import (
	"context"

	"github.com/flapjack-io/flapjack/pkg/types"
)

// Disposition is a handler's verdict on one delivery attempt.
type Disposition int

const (
	// Ok means the alert was delivered; remove it from the queue.
	Ok Disposition = iota
	// Transient means delivery failed in a way worth retrying
	// (network error, 5xx, timeout).
	Transient
	// Permanent means delivery failed in a way retrying cannot fix
	// (invalid address, rejected payload).
	Permanent
)

// Handler delivers one Alert over its medium. Implementations are
// opaque, side-effectful externals from the dispatcher's point of
// view: it only ever inspects the returned Disposition.
type Handler interface {
	Deliver(ctx context.Context, alert *types.Alert) (Disposition, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(ctx context.Context, alert *types.Alert) (Disposition, error)

func (f HandlerFunc) Deliver(ctx context.Context, alert *types.Alert) (Disposition, error) {
	return f(ctx, alert)
}

// Registry maps a medium type to the handler responsible for it. This
// is the dispatcher's answer to ad-hoc polymorphism over media types:
// one common Deliver operation, one map from tag to implementation,
// no type switch anywhere in the dispatch loop.
type Registry struct {
	handlers map[types.MediumType]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[types.MediumType]Handler)}
}

func (r *Registry) Register(medium types.MediumType, h Handler) {
	r.handlers[medium] = h
}

func (r *Registry) Get(medium types.MediumType) (Handler, bool) {
	h, ok := r.handlers[medium]
	return h, ok
}
