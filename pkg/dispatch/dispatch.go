package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/flapjack-io/flapjack/pkg/events"
	"github.com/flapjack-io/flapjack/pkg/log"
	"github.com/flapjack-io/flapjack/pkg/metrics"
	"github.com/flapjack-io/flapjack/pkg/queue"
	"github.com/flapjack-io/flapjack/pkg/storage"
	"github.com/flapjack-io/flapjack/pkg/types"
	"github.com/rs/zerolog"
)

// Config holds dispatcher-wide settings; defaults match the external
// interface's documented notifier.* options.
type Config struct {
	WorkersPerMedium int           // default 4
	MaxAttempts      int           // default 3
	MaxBackoff       time.Duration // default 60s
	HandlerTimeout   time.Duration // default 30s
	ShutdownGrace    time.Duration // default 10s
}

func (c Config) withDefaults() Config {
	if c.WorkersPerMedium <= 0 {
		c.WorkersPerMedium = 4
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = 30 * time.Second
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 10 * time.Second
	}
	return c
}

// Dispatcher runs one worker pool per medium type, each pool pulling
// queued alerts and invoking the medium's registered Handler.
type Dispatcher struct {
	cfg      Config
	store    storage.Store
	registry *Registry
	broker   *events.Broker
	queues   map[types.MediumType]*queue.MemoryQueue
	queuesMu sync.RWMutex

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a Dispatcher. The broker is optional and may be nil.
func New(cfg Config, store storage.Store, registry *Registry, broker *events.Broker) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg.withDefaults(),
		store:    store,
		registry: registry,
		broker:   broker,
		queues:   make(map[types.MediumType]*queue.MemoryQueue),
		stopCh:   make(chan struct{}),
	}
}

// QueueFor returns (creating if necessary) the per-medium queue the
// Resolver enqueues Alerts onto.
func (d *Dispatcher) QueueFor(medium types.MediumType) *queue.MemoryQueue {
	d.queuesMu.Lock()
	defer d.queuesMu.Unlock()
	q, ok := d.queues[medium]
	if !ok {
		q = queue.NewMemoryQueue(256)
		d.queues[medium] = q
	}
	return q
}

// Enqueue pushes an already-persisted alert ID onto its medium's
// queue. It satisfies resolver.Enqueuer.
func (d *Dispatcher) Enqueue(medium types.MediumType, alertID string) error {
	return d.QueueFor(medium).Push(context.Background(), []byte(alertID))
}

// Start launches WorkersPerMedium goroutines for every medium in media.
func (d *Dispatcher) Start(media []types.MediumType) {
	for _, medium := range media {
		q := d.QueueFor(medium)
		for i := 0; i < d.cfg.WorkersPerMedium; i++ {
			d.wg.Add(1)
			go d.runWorker(medium, q)
		}
	}
}

// Stop signals every worker to finish its in-flight alert and exit,
// waiting up to ShutdownGrace before returning regardless.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d.cfg.ShutdownGrace):
	}
}

func (d *Dispatcher) runWorker(medium types.MediumType, q *queue.MemoryQueue) {
	defer d.wg.Done()
	workerLog := log.WithMedium(string(medium))

	for {
		select {
		case <-d.stopCh:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.HandlerTimeout)
		payload, err := q.Pop(ctx)
		cancel()
		if err != nil {
			select {
			case <-d.stopCh:
				return
			default:
				continue
			}
		}

		alertID := string(payload)
		d.deliverOne(medium, alertID, workerLog)
	}
}

func (d *Dispatcher) deliverOne(medium types.MediumType, alertID string, workerLog zerolog.Logger) {
	alert, err := d.store.GetAlert(alertID)
	if err != nil {
		log.Errorf("dispatcher: alert vanished before delivery: %v", err)
		return
	}

	handler, ok := d.registry.Get(medium)
	if !ok {
		workerLog.Error().Str("alert_id", alertID).Msg("no handler registered for medium")
		return
	}

	timer := metrics.NewTimer()
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.HandlerTimeout)
	disposition, deliverErr := handler.Deliver(ctx, alert)
	cancel()
	timer.ObserveDurationVec(metrics.AlertDeliveryDuration, string(medium))

	switch disposition {
	case Ok:
		alert.Status = types.AlertStatusDelivered
		_ = d.store.UpdateAlert(alert)
		metrics.AlertsDeliveredTotal.WithLabelValues(string(medium)).Inc()
		d.publish(events.EventAlertDelivered, alert)

	case Transient:
		alert.Attempts++
		if alert.Attempts >= d.cfg.MaxAttempts {
			alert.Status = types.AlertStatusFailed
			_ = d.store.UpdateAlert(alert)
			metrics.AlertsDroppedTotal.WithLabelValues(string(medium)).Inc()
			d.publish(events.EventAlertDropped, alert)
			workerLog.Error().Str("alert_id", alertID).Err(deliverErr).Msg("alert exhausted retries, dropping")
			return
		}
		_ = d.store.UpdateAlert(alert)
		metrics.AlertsRetriedTotal.WithLabelValues(string(medium)).Inc()
		d.publish(events.EventAlertRetried, alert)

		delay := nextRetryDelay(alert.Attempts, d.cfg.MaxBackoff)
		go func(id string, delay time.Duration) {
			select {
			case <-time.After(delay):
			case <-d.stopCh:
				return
			}
			q := d.QueueFor(medium)
			_ = q.Push(context.Background(), []byte(id))
		}(alertID, delay)

	case Permanent:
		alert.Status = types.AlertStatusFailed
		_ = d.store.UpdateAlert(alert)
		metrics.AlertsDroppedTotal.WithLabelValues(string(medium)).Inc()
		d.publish(events.EventAlertDropped, alert)
		workerLog.Error().Str("alert_id", alertID).Err(deliverErr).Msg("alert permanently failed")
	}
}

func (d *Dispatcher) publish(t events.EventType, alert *types.Alert) {
	if d.broker == nil {
		return
	}
	d.broker.Publish(&events.Event{Type: t, CheckID: alert.CheckID, Message: alert.Summary})
}
