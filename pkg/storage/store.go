package storage

import (
	"errors"

	"github.com/flapjack-io/flapjack/pkg/types"
)

// ErrNotFound wraps every "no such entity" error returned by a Store
// implementation, so callers can test with errors.Is instead of
// matching on message text.
var ErrNotFound = errors.New("not found")

// EntityClass names one of the entity buckets a Lock call may span.
type EntityClass string

const (
	ClassCheck                EntityClass = "checks"
	ClassState                EntityClass = "states"
	ClassScheduledMaintenance EntityClass = "scheduled_maintenances"
	ClassUnscheduledMaintenance EntityClass = "unscheduled_maintenances"
	ClassTag                  EntityClass = "tags"
	ClassContact              EntityClass = "contacts"
	ClassMedium                EntityClass = "media"
	ClassRule                  EntityClass = "rules"
	ClassRoute                 EntityClass = "routes"
	ClassNotification          EntityClass = "notifications"
	ClassAlert                 EntityClass = "alerts"
)

// Store is the abstract entity persistence surface consumed by the
// core pipeline. No specific backend is mandated by callers; BoltStore
// and RedisStore both satisfy it.
//
// Every mutation that touches a Check together with its Routes,
// Maintenances, or States must run inside a single Lock call spanning
// all affected classes — that is what keeps the per-check invariants
// (no overlapping unscheduled maintenance, consistent alerting_media)
// true under concurrent access from different checks.
type Store interface {
	// Checks
	CreateCheck(check *types.Check) error
	GetCheck(id string) (*types.Check, error)
	GetCheckByName(name string) (*types.Check, error)
	ListChecks() ([]*types.Check, error)
	UpdateCheck(check *types.Check) error
	DeleteCheck(id string) error

	// States
	AppendState(state *types.State) error
	ListStatesByCheck(checkID string, limit int) ([]*types.State, error)
	TrimStates(checkID string, keep int) (int, error)

	// Scheduled maintenance
	CreateScheduledMaintenance(m *types.ScheduledMaintenance) error
	GetScheduledMaintenance(id string) (*types.ScheduledMaintenance, error)
	ListScheduledMaintenanceByCheck(checkID string) ([]*types.ScheduledMaintenance, error)
	UpdateScheduledMaintenance(m *types.ScheduledMaintenance) error
	DeleteScheduledMaintenance(id string) error

	// Unscheduled maintenance
	CreateUnscheduledMaintenance(m *types.UnscheduledMaintenance) error
	GetUnscheduledMaintenance(id string) (*types.UnscheduledMaintenance, error)
	CurrentUnscheduledMaintenance(checkID string) (*types.UnscheduledMaintenance, error)
	ListUnscheduledMaintenanceByCheck(checkID string) ([]*types.UnscheduledMaintenance, error)
	UpdateUnscheduledMaintenance(m *types.UnscheduledMaintenance) error
	DeleteUnscheduledMaintenance(id string) error

	// Tags
	CreateTag(tag *types.Tag) error
	GetTag(id string) (*types.Tag, error)
	GetTagByName(name string) (*types.Tag, error)
	ListTags() ([]*types.Tag, error)

	// Contacts
	CreateContact(c *types.Contact) error
	GetContact(id string) (*types.Contact, error)
	ListContacts() ([]*types.Contact, error)
	UpdateContact(c *types.Contact) error
	DeleteContact(id string) error

	// Media
	CreateMedium(m *types.Medium) error
	GetMedium(id string) (*types.Medium, error)
	ListMediaByContact(contactID string) ([]*types.Medium, error)
	UpdateMedium(m *types.Medium) error
	DeleteMedium(id string) error

	// Rules
	CreateRule(r *types.Rule) error
	GetRule(id string) (*types.Rule, error)
	ListRules() ([]*types.Rule, error)
	ListRulesByContact(contactID string) ([]*types.Rule, error)
	UpdateRule(r *types.Rule) error
	DeleteRule(id string) error

	// Routes
	CreateRoute(r *types.Route) error
	GetRoute(id string) (*types.Route, error)
	ListRoutesByCheck(checkID string) ([]*types.Route, error)
	ListRoutesByRule(ruleID string) ([]*types.Route, error)
	UpdateRoute(r *types.Route) error
	DeleteRoute(id string) error
	DeleteRoutesByCheck(checkID string) error

	// Notifications
	CreateNotification(n *types.Notification) error

	// Alerts
	CreateAlert(a *types.Alert) error
	GetAlert(id string) (*types.Alert, error)
	UpdateAlert(a *types.Alert) error
	DeleteAlert(id string) error
	ListQueuedAlertsByMedium(mediumType types.MediumType) ([]*types.Alert, error)

	// Lock acquires exclusive access to every named class for the
	// duration of fn, always in the same global class order so
	// concurrent Lock calls from different goroutines never deadlock.
	Lock(classes []EntityClass, fn func() error) error

	Close() error
}
