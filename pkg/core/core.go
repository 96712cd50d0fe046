package core

import (
	"context"
	"fmt"
	"time"

	"github.com/flapjack-io/flapjack/pkg/dispatch"
	"github.com/flapjack-io/flapjack/pkg/events"
	"github.com/flapjack-io/flapjack/pkg/log"
	"github.com/flapjack-io/flapjack/pkg/maintenance"
	"github.com/flapjack-io/flapjack/pkg/processor"
	"github.com/flapjack-io/flapjack/pkg/receiver"
	"github.com/flapjack-io/flapjack/pkg/reconciler"
	"github.com/flapjack-io/flapjack/pkg/resolver"
	"github.com/flapjack-io/flapjack/pkg/storage"
	"github.com/flapjack-io/flapjack/pkg/types"
	"github.com/rs/zerolog"
)

var adminLockClasses = []storage.EntityClass{
	storage.ClassCheck,
	storage.ClassState,
	storage.ClassRoute,
	storage.ClassRule,
	storage.ClassContact,
	storage.ClassMedium,
	storage.ClassAlert,
	storage.ClassScheduledMaintenance,
	storage.ClassUnscheduledMaintenance,
}

// Core is the assembled Flapjack pipeline: one Store shared by a
// Processor, Maintenance Manager, Resolver, and Dispatcher, plus the
// Receiver and Reconciler that drive it.
type Core struct {
	store       storage.Store
	receiver    *receiver.Receiver
	processor   *processor.Processor
	maintenance *maintenance.Manager
	resolver    *resolver.Resolver
	dispatcher  *dispatch.Dispatcher
	reconciler  *reconciler.Reconciler
	broker      *events.Broker
	logger      zerolog.Logger

	doneCh chan struct{}
}

// New assembles a Core from its already-constructed components.
func New(store storage.Store, rcv *receiver.Receiver, proc *processor.Processor, maint *maintenance.Manager, res *resolver.Resolver, disp *dispatch.Dispatcher, rec *reconciler.Reconciler, broker *events.Broker) *Core {
	return &Core{
		store:       store,
		receiver:    rcv,
		processor:   proc,
		maintenance: maint,
		resolver:    res,
		dispatcher:  disp,
		reconciler:  rec,
		broker:      broker,
		logger:      log.WithComponent("core"),
		doneCh:      make(chan struct{}),
	}
}

// Run starts the Dispatcher's worker pools and the Reconciler's sweep
// loop, then pumps events off the Receiver into the Processor until ctx
// is cancelled. It blocks until the pump loop exits; callers typically
// run it in its own goroutine and cancel ctx to stop the pump, then
// call Shutdown to drain the Dispatcher.
func (c *Core) Run(ctx context.Context, media []types.MediumType) {
	if c.broker != nil {
		c.broker.Start()
	}
	c.dispatcher.Start(media)
	c.reconciler.Start()
	defer close(c.doneCh)

	for {
		event, err := c.receiver.Receive(ctx)
		if err != nil {
			return
		}
		if _, err := c.processor.Process(event); err != nil {
			c.logger.Error().Err(err).Str("check", event.CheckName()).Msg("failed to process event")
			continue
		}
		c.receiver.Ack(event)
	}
}

// Shutdown stops the Reconciler and Dispatcher (which waits up to its
// own configured ShutdownGrace for in-flight deliveries), then waits up
// to grace for Run's pump loop to exit. Callers should
// cancel Run's ctx before or shortly after calling Shutdown so the
// pump loop also exits.
func (c *Core) Shutdown(grace time.Duration) {
	c.reconciler.Stop()
	c.dispatcher.Stop()
	if c.broker != nil {
		c.broker.Stop()
	}
	select {
	case <-c.doneCh:
	case <-time.After(grace):
	}
}

// Ingest hands event directly to the Processor, bypassing the inbound
// queue. The CLI's ingest command and synchronous gateways use this;
// the queue-backed Receive path is for asynchronous producers.
func (c *Core) Ingest(event *types.RawEvent) (*types.Notification, error) {
	return c.processor.Process(event)
}

// CurrentState returns the Check and its most recent recorded State.
func (c *Core) CurrentState(checkID string) (*types.Check, *types.State, error) {
	check, err := c.store.GetCheck(checkID)
	if err != nil {
		return nil, nil, fmt.Errorf("get check: %w", err)
	}
	states, err := c.store.ListStatesByCheck(checkID, 1)
	if err != nil {
		return nil, nil, fmt.Errorf("list states: %w", err)
	}
	var last *types.State
	if len(states) > 0 {
		last = states[0]
	}
	return check, last, nil
}

// Acknowledge opens an unscheduled maintenance window for checkID
// covering [now, now+duration), under one store.Lock spanning the
// Check, Route, and UnscheduledMaintenance classes.
func (c *Core) Acknowledge(checkID string, duration time.Duration, summary string) (bool, error) {
	var acked bool
	err := c.store.Lock(adminLockClasses, func() error {
		check, err := c.store.GetCheck(checkID)
		if err != nil {
			return fmt.Errorf("get check: %w", err)
		}
		acked, err = c.maintenance.Acknowledge(check, time.Now(), duration, summary)
		if err != nil {
			return err
		}
		if !acked {
			return nil
		}
		return c.store.UpdateCheck(check)
	})
	return acked, err
}

// ScheduleMaintenance declares a new suppression window for checkID.
func (c *Core) ScheduleMaintenance(checkID string, start, end time.Time, summary string) (*types.ScheduledMaintenance, error) {
	var window *types.ScheduledMaintenance
	err := c.store.Lock(adminLockClasses, func() error {
		var err error
		window, err = c.maintenance.ScheduleMaintenance(checkID, start, end, summary)
		return err
	})
	return window, err
}

// EndMaintenance ends a scheduled maintenance window early.
func (c *Core) EndMaintenance(checkID, windowID string, at time.Time) (bool, error) {
	var ended bool
	err := c.store.Lock(adminLockClasses, func() error {
		var err error
		ended, err = c.maintenance.EndScheduled(checkID, windowID, at)
		return err
	})
	return ended, err
}

// TestNotification sends a synthetic test Alert to every medium owned
// by contactID, exercising a contact's delivery configuration without
// touching the named check's condition, routes, or alerting_media.
func (c *Core) TestNotification(checkID, contactID string) ([]*types.Alert, error) {
	var alerts []*types.Alert
	err := c.store.Lock(adminLockClasses, func() error {
		check, err := c.store.GetCheck(checkID)
		if err != nil {
			return fmt.Errorf("get check: %w", err)
		}
		contact, err := c.store.GetContact(contactID)
		if err != nil {
			return fmt.Errorf("get contact: %w", err)
		}
		alerts, err = c.resolver.ResolveTest(check, contact, fmt.Sprintf("test notification for %s", check.Name))
		return err
	})
	return alerts, err
}
