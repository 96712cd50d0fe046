package maintenance

import (
	"fmt"
	"time"

	"github.com/flapjack-io/flapjack/pkg/events"
	"github.com/flapjack-io/flapjack/pkg/log"
	"github.com/flapjack-io/flapjack/pkg/storage"
	"github.com/flapjack-io/flapjack/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager answers maintenance-window queries and performs the
// maintenance mutations. Mutating methods assume the caller already
// holds the relevant store.Lock, so Manager methods compose inside a
// wider transaction instead of nesting their own.
type Manager struct {
	store  storage.Store
	broker *events.Broker
	logger zerolog.Logger
}

// New creates a Manager backed by store. broker may be nil, in which
// case lifecycle events are not published (tests construct Manager
// this way).
func New(store storage.Store, broker *events.Broker) *Manager {
	return &Manager{store: store, broker: broker, logger: log.WithComponent("maintenance")}
}

func (m *Manager) publish(t events.EventType, checkID, message string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{Type: t, CheckID: checkID, Message: message})
}

// InScheduled reports whether any scheduled window on check covers t.
func (m *Manager) InScheduled(checkID string, t time.Time) (bool, error) {
	windows, err := m.store.ListScheduledMaintenanceByCheck(checkID)
	if err != nil {
		return false, fmt.Errorf("list scheduled maintenance: %w", err)
	}
	for _, w := range windows {
		if w.Active(t) {
			return true, nil
		}
	}
	return false, nil
}

// InUnscheduled reports whether an unscheduled window on check covers t.
func (m *Manager) InUnscheduled(checkID string, t time.Time) (bool, error) {
	current, err := m.store.CurrentUnscheduledMaintenance(checkID)
	if err != nil {
		return false, fmt.Errorf("current unscheduled maintenance: %w", err)
	}
	if current == nil {
		return false, nil
	}
	return current.Active(t), nil
}

// CurrentUnscheduled returns the open unscheduled window, or nil if
// none is open.
func (m *Manager) CurrentUnscheduled(checkID string) (*types.UnscheduledMaintenance, error) {
	return m.store.CurrentUnscheduledMaintenance(checkID)
}

// InMaintenance reports whether check is suppressed at t by either
// kind of window — scheduled and unscheduled suppress independently.
func (m *Manager) InMaintenance(checkID string, t time.Time) (bool, error) {
	scheduled, err := m.InScheduled(checkID, t)
	if err != nil {
		return false, err
	}
	if scheduled {
		return true, nil
	}
	return m.InUnscheduled(checkID, t)
}

// ScheduleMaintenance declares a new suppression window. Overlapping
// scheduled windows on the same check are permitted.
func (m *Manager) ScheduleMaintenance(checkID string, start, end time.Time, summary string) (*types.ScheduledMaintenance, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("maintenance window end %s must be after start %s", end, start)
	}
	w := &types.ScheduledMaintenance{
		ID:        uuid.New().String(),
		CheckID:   checkID,
		StartTime: start,
		EndTime:   end,
		Summary:   summary,
	}
	if err := m.store.CreateScheduledMaintenance(w); err != nil {
		return nil, fmt.Errorf("create scheduled maintenance: %w", err)
	}
	m.logger.Info().Str("check_id", checkID).Time("start", start).Time("end", end).Msg("scheduled maintenance created")
	m.publish(events.EventMaintenanceStarted, checkID, summary)
	return w, nil
}

// EndScheduled ends window early at `at`. If at is at or before the
// window's start, the window is deleted outright. If at falls strictly
// inside the window, the window is truncated to end at `at` and the
// check's routes have is_alerting cleared so the next unhealthy sample
// re-notifies. If at is at or after the window's natural end, this is
// a no-op and EndScheduled returns false.
//
// The caller must hold a store.Lock spanning at least
// ClassScheduledMaintenance and ClassRoute.
func (m *Manager) EndScheduled(checkID, windowID string, at time.Time) (bool, error) {
	w, err := m.store.GetScheduledMaintenance(windowID)
	if err != nil {
		return false, fmt.Errorf("get scheduled maintenance: %w", err)
	}
	if w.CheckID != checkID {
		return false, fmt.Errorf("maintenance window %s does not belong to check %s", windowID, checkID)
	}

	switch {
	case !at.After(w.StartTime):
		if err := m.store.DeleteScheduledMaintenance(windowID); err != nil {
			return false, fmt.Errorf("delete scheduled maintenance: %w", err)
		}
		m.publish(events.EventMaintenanceEnded, checkID, w.Summary)
		return true, nil
	case at.Before(w.EndTime):
		w.EndTime = at
		if err := m.store.UpdateScheduledMaintenance(w); err != nil {
			return false, fmt.Errorf("truncate scheduled maintenance: %w", err)
		}
		if err := m.clearAlertingRoutes(checkID); err != nil {
			return false, err
		}
		m.publish(events.EventMaintenanceEnded, checkID, w.Summary)
		return true, nil
	default:
		return false, nil
	}
}

// Acknowledge opens an UnscheduledMaintenance [at, at+duration),
// truncating any existing one, and clears is_alerting routes and
// check.AlertingMedia. Acknowledging a healthy check, or with a
// non-positive duration, is a no-op.
//
// Acknowledge mutates check.AlertingMedia in place but does not persist
// check — the caller (Processor or core) owns that write, the same
// division resolver.Resolve uses for Check vs. Route. The caller must
// hold a store.Lock spanning at least ClassUnscheduledMaintenance and
// ClassRoute.
func (m *Manager) Acknowledge(check *types.Check, at time.Time, duration time.Duration, summary string) (bool, error) {
	if duration <= 0 {
		return false, nil
	}
	if !check.Failing {
		return false, nil
	}

	existing, err := m.store.ListUnscheduledMaintenanceByCheck(check.ID)
	if err != nil {
		return false, fmt.Errorf("list unscheduled maintenance: %w", err)
	}
	for _, w := range existing {
		if err := m.store.DeleteUnscheduledMaintenance(w.ID); err != nil {
			return false, fmt.Errorf("truncate existing unscheduled maintenance: %w", err)
		}
	}

	window := &types.UnscheduledMaintenance{
		ID:        uuid.New().String(),
		CheckID:   check.ID,
		StartTime: at,
		EndTime:   at.Add(duration),
		Summary:   summary,
	}
	if err := m.store.CreateUnscheduledMaintenance(window); err != nil {
		return false, fmt.Errorf("create unscheduled maintenance: %w", err)
	}

	if err := m.clearAlertingRoutes(check.ID); err != nil {
		return false, err
	}

	check.AlertingMedia = map[string]bool{}
	m.publish(events.EventAcknowledgementAdded, check.ID, summary)
	return true, nil
}

// ClearAlertingRoutes clears is_alerting on every route of checkID. It
// is exported for the Processor to call when a notification is
// suppressed by maintenance rather than acted on through EndScheduled
// or Acknowledge.
func (m *Manager) ClearAlertingRoutes(checkID string) error {
	return m.clearAlertingRoutes(checkID)
}

func (m *Manager) clearAlertingRoutes(checkID string) error {
	routes, err := m.store.ListRoutesByCheck(checkID)
	if err != nil {
		return fmt.Errorf("list routes: %w", err)
	}
	for _, route := range routes {
		if !route.IsAlerting {
			continue
		}
		route.IsAlerting = false
		if err := m.store.UpdateRoute(route); err != nil {
			return fmt.Errorf("clear is_alerting: %w", err)
		}
	}
	return nil
}
