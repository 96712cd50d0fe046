package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/flapjack-io/flapjack/pkg/events"
	"github.com/flapjack-io/flapjack/pkg/log"
	"github.com/flapjack-io/flapjack/pkg/maintenance"
	"github.com/flapjack-io/flapjack/pkg/metrics"
	"github.com/flapjack-io/flapjack/pkg/resolver"
	"github.com/flapjack-io/flapjack/pkg/storage"
	"github.com/flapjack-io/flapjack/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config holds fallback timing and new-check behavior; per-check values
// (set at auto-creation time, or overridden by a later event) take
// precedence once a Check exists.
type Config struct {
	InitialFailureDelay                  time.Duration // default 0
	RepeatFailureDelay                   time.Duration // default 300s
	NewCheckScheduledMaintenanceDuration time.Duration // default 0
	DisableAutoCreate                    bool          // default false: unknown checks are created
}

func (c Config) withDefaults() Config {
	if c.RepeatFailureDelay <= 0 {
		c.RepeatFailureDelay = 300 * time.Second
	}
	return c
}

var lockClasses = []storage.EntityClass{
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

// Processor applies inbound events to Checks and emits Notifications.
type Processor struct {
	store       storage.Store
	maintenance *maintenance.Manager
	resolver    *resolver.Resolver
	broker      *events.Broker
	cfg         Config
	logger      zerolog.Logger
}

// New creates a Processor. broker may be nil, in which case lifecycle
// events are not published (tests construct Processor this way).
func New(store storage.Store, maint *maintenance.Manager, res *resolver.Resolver, broker *events.Broker, cfg Config) *Processor {
	return &Processor{
		store:       store,
		maintenance: maint,
		resolver:    res,
		broker:      broker,
		cfg:         cfg.withDefaults(),
		logger:      log.WithComponent("processor"),
	}
}

func (p *Processor) publish(t events.EventType, checkID, message string) {
	if p.broker == nil {
		return
	}
	p.broker.Publish(&events.Event{Type: t, CheckID: checkID, Message: message})
}

// Process applies one event end to end: check resolution/creation,
// state recording, transition classification, suppression, and route
// resolution, all under one store.Lock. Returns the Notification
// emitted, or nil if the event produced none (healthy repeat, held
// down, suppressed, duplicate, or dropped for an unknown check).
func (p *Processor) Process(event *types.RawEvent) (*types.Notification, error) {
	name := event.CheckName()
	if name == "" {
		metrics.EventsRejectedTotal.WithLabelValues("missing_entity").Inc()
		return nil, nil
	}
	switch event.Type {
	case types.EventTypeService, types.EventTypeAction, types.EventTypeMetric:
	default:
		metrics.EventsRejectedTotal.WithLabelValues("unknown_type").Inc()
		return nil, nil
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.EventProcessingDuration)

	var notif *types.Notification
	err := p.store.Lock(lockClasses, func() error {
		check, err := p.resolveOrCreateCheck(name, event)
		if err != nil {
			return err
		}
		if check == nil {
			return nil
		}
		notif, err = p.applyEvent(check, event)
		return err
	})
	if err != nil {
		return nil, err
	}
	return notif, nil
}

func (p *Processor) resolveOrCreateCheck(name string, event *types.RawEvent) (*types.Check, error) {
	check, err := p.store.GetCheckByName(name)
	if err == nil {
		return check, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("lookup check %q: %w", name, err)
	}
	if p.cfg.DisableAutoCreate {
		metrics.EventsRejectedTotal.WithLabelValues("unknown_check").Inc()
		p.logger.Warn().Str("check", name).Msg("dropping event for unknown check, auto-creation disabled")
		return nil, nil
	}

	now := time.Unix(event.Time, 0)
	id := uuid.New().String()
	check = &types.Check{
		ID:                  id,
		Name:                name,
		Enabled:             true,
		Condition:           types.ConditionOK,
		AckHash:             types.NewAckHash(id),
		AlertingMedia:       map[string]bool{},
		InitialFailureDelay: p.cfg.InitialFailureDelay,
		RepeatFailureDelay:  p.cfg.RepeatFailureDelay,
		TagIDs:              append([]string(nil), event.Tags...),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := p.store.CreateCheck(check); err != nil {
		return nil, fmt.Errorf("create check: %w", err)
	}

	if p.cfg.NewCheckScheduledMaintenanceDuration > 0 {
		end := now.Add(p.cfg.NewCheckScheduledMaintenanceDuration)
		if _, err := p.maintenance.ScheduleMaintenance(check.ID, now, end, "new check grace period"); err != nil {
			p.logger.Warn().Err(err).Str("check_id", check.ID).Msg("failed to schedule new-check maintenance")
		}
	}
	if err := p.resolver.RecomputeRoutes(check.ID); err != nil {
		return nil, fmt.Errorf("recompute routes: %w", err)
	}
	p.logger.Info().Str("check_id", check.ID).Str("name", name).Msg("auto-created check")
	return check, nil
}

func (p *Processor) applyEvent(check *types.Check, event *types.RawEvent) (*types.Notification, error) {
	if event.InitialFailureDelay != nil {
		check.InitialFailureDelay = time.Duration(*event.InitialFailureDelay) * time.Second
	}
	if event.RepeatFailureDelay != nil {
		check.RepeatFailureDelay = time.Duration(*event.RepeatFailureDelay) * time.Second
	}

	if event.Type == types.EventTypeAction && event.AcknowledgementID != "" {
		notif, err := p.applyAcknowledgement(check, event)
		if err != nil {
			return nil, err
		}
		if err := p.store.UpdateCheck(check); err != nil {
			return nil, fmt.Errorf("update check: %w", err)
		}
		return notif, nil
	}

	now := time.Unix(event.Time, 0)
	newCondition := types.Condition(event.State)

	last, err := p.lastState(check.ID)
	if err != nil {
		return nil, err
	}
	if isDuplicateEvent(last, event, newCondition, now) {
		return nil, nil
	}

	state := &types.State{
		ID:        uuid.New().String(),
		CheckID:   check.ID,
		Condition: newCondition,
		CreatedAt: now,
		Summary:   event.Summary,
		Details:   event.Details,
	}
	if err := p.store.AppendState(state); err != nil {
		return nil, fmt.Errorf("append state: %w", err)
	}

	prevCondition := check.Condition
	wasUnhealthy := types.Unhealthy(prevCondition)
	isUnhealthy := types.Unhealthy(newCondition)

	var pending *types.Notification
	var escalated bool

	switch {
	case !wasUnhealthy && !isUnhealthy:
		// healthy -> healthy: record state only.

	case !wasUnhealthy && isUnhealthy:
		check.FailingSince = now
		check.MostSevere = newCondition
		if p.holdDownElapsed(check, now) {
			pending = p.buildProblem(check, state, newCondition, event, now)
		}

	case wasUnhealthy && isUnhealthy:
		escalated = types.Worse(check.MostSevere, newCondition)
		if escalated {
			check.MostSevere = newCondition
			pending = p.buildProblem(check, state, newCondition, event, now)
		} else if p.holdDownElapsed(check, now) && p.repeatDelayElapsed(check, now) {
			pending = p.buildProblem(check, state, newCondition, event, now)
		}

	case wasUnhealthy && !isUnhealthy:
		pending = &types.Notification{
			ID:        uuid.New().String(),
			CheckID:   check.ID,
			StateID:   state.ID,
			Type:      types.NotificationRecovery,
			Severity:  newCondition,
			Summary:   fmt.Sprintf("%s recovered", check.Name),
			Timestamp: now,
		}
		check.FailingSince = time.Time{}
		check.MostSevere = ""
	}

	if newCondition != prevCondition {
		p.publish(events.EventCheckTransitioned, check.ID, fmt.Sprintf("%s -> %s", prevCondition, newCondition))
	}

	check.Condition = newCondition
	check.Failing = isUnhealthy
	check.UpdatedAt = now

	notif, err := p.emit(check, pending, escalated)
	if err != nil {
		return nil, err
	}

	if err := p.store.UpdateCheck(check); err != nil {
		return nil, fmt.Errorf("update check: %w", err)
	}
	return notif, nil
}

// applyAcknowledgement handles an action-type event carrying an
// acknowledgement_id. The acknowledgement Notification is resolved
// against check.AlertingMedia before Acknowledge clears it, so
// recipients currently alerting are the ones told about the ack.
func (p *Processor) applyAcknowledgement(check *types.Check, event *types.RawEvent) (*types.Notification, error) {
	duration := time.Duration(0)
	if event.Duration != nil {
		duration = time.Duration(*event.Duration) * time.Second
	}
	if duration <= 0 || !check.Failing {
		return nil, nil
	}

	now := time.Unix(event.Time, 0)
	notif := &types.Notification{
		ID:        uuid.New().String(),
		CheckID:   check.ID,
		Type:      types.NotificationAcknowledgement,
		Severity:  check.Condition,
		Summary:   event.Summary,
		Details:   event.Details,
		Timestamp: now,
	}
	if _, err := p.resolver.Resolve(check, notif, false); err != nil {
		return nil, fmt.Errorf("resolve acknowledgement alerts: %w", err)
	}

	acked, err := p.maintenance.Acknowledge(check, now, duration, event.Summary)
	if err != nil {
		return nil, fmt.Errorf("acknowledge: %w", err)
	}
	if !acked {
		return nil, nil
	}

	if err := p.store.CreateNotification(notif); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}
	check.NotificationCount++
	metrics.NotificationsTotal.WithLabelValues(string(types.NotificationAcknowledgement)).Inc()
	metrics.AcknowledgementsTotal.Inc()
	return notif, nil
}

// emit consults maintenance suppression (bypassed for recoveries),
// resolves the alert set, and records the Notification. Returns nil
// with no error if pending is nil or the notification was suppressed.
func (p *Processor) emit(check *types.Check, pending *types.Notification, escalated bool) (*types.Notification, error) {
	if pending == nil {
		return nil, nil
	}

	if pending.Type != types.NotificationRecovery {
		inMaint, err := p.maintenance.InMaintenance(check.ID, pending.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("check maintenance: %w", err)
		}
		if inMaint {
			if err := p.maintenance.ClearAlertingRoutes(check.ID); err != nil {
				return nil, fmt.Errorf("clear alerting routes: %w", err)
			}
			p.logger.Debug().Str("check_id", check.ID).Msg("notification suppressed by maintenance")
			p.publish(events.EventNotificationHeld, check.ID, pending.Summary)
			return nil, nil
		}
	}

	if _, err := p.resolver.Resolve(check, pending, escalated); err != nil {
		return nil, fmt.Errorf("resolve alerts: %w", err)
	}
	if err := p.store.CreateNotification(pending); err != nil {
		return nil, fmt.Errorf("create notification: %w", err)
	}

	check.NotificationCount++
	if pending.Type == types.NotificationProblem {
		check.LastNotificationAt = pending.Timestamp
	}
	metrics.NotificationsTotal.WithLabelValues(string(pending.Type)).Inc()
	p.publish(events.EventNotificationEmitted, check.ID, pending.Summary)
	return pending, nil
}

func (p *Processor) buildProblem(check *types.Check, state *types.State, condition types.Condition, event *types.RawEvent, now time.Time) *types.Notification {
	return &types.Notification{
		ID:        uuid.New().String(),
		CheckID:   check.ID,
		StateID:   state.ID,
		Type:      types.NotificationProblem,
		Severity:  condition,
		Summary:   event.Summary,
		Details:   event.Details,
		Timestamp: now,
	}
}

// holdDownElapsed reports whether check has been unhealthy continuously
// for at least InitialFailureDelay as of now. A non-positive delay is
// satisfied immediately.
func (p *Processor) holdDownElapsed(check *types.Check, now time.Time) bool {
	if check.InitialFailureDelay <= 0 {
		return true
	}
	return !now.Before(check.FailingSince.Add(check.InitialFailureDelay))
}

// repeatDelayElapsed reports whether enough time has passed since the
// last problem notification to emit another at the same severity.
func (p *Processor) repeatDelayElapsed(check *types.Check, now time.Time) bool {
	if check.RepeatFailureDelay <= 0 {
		return true
	}
	if check.LastNotificationAt.IsZero() {
		return true
	}
	return !now.Before(check.LastNotificationAt.Add(check.RepeatFailureDelay))
}

func (p *Processor) lastState(checkID string) (*types.State, error) {
	states, err := p.store.ListStatesByCheck(checkID, 1)
	if err != nil {
		return nil, fmt.Errorf("list states: %w", err)
	}
	if len(states) == 0 {
		return nil, nil
	}
	return states[0], nil
}

// isDuplicateEvent reports whether event is a redelivery of the check's
// last recorded state: same condition, summary, and timestamp. At-least
// -once queues may redeliver an acked-too-late message; this keeps
// redelivery from double-counting a failing streak or re-emitting a
// notification.
func isDuplicateEvent(last *types.State, event *types.RawEvent, condition types.Condition, eventTime time.Time) bool {
	if last == nil {
		return false
	}
	return last.Condition == condition && last.Summary == event.Summary && last.CreatedAt.Equal(eventTime)
}
