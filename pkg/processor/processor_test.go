package processor

import (
	"testing"
	"time"

	"github.com/flapjack-io/flapjack/pkg/maintenance"
	"github.com/flapjack-io/flapjack/pkg/resolver"
	"github.com/flapjack-io/flapjack/pkg/storage"
	"github.com/flapjack-io/flapjack/pkg/types"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

// fakeQueue records enqueued alert IDs per medium, satisfying
// resolver.Enqueuer without needing the dispatch package.
type fakeQueue struct {
	enqueued map[types.MediumType][]string
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{enqueued: make(map[types.MediumType][]string)}
}

func (q *fakeQueue) Enqueue(medium types.MediumType, alertID string) error {
	q.enqueued[medium] = append(q.enqueued[medium], alertID)
	return nil
}

func newTestProcessor(t *testing.T, cfg Config) (*Processor, *storage.BoltStore, *fakeQueue) {
	t.Helper()
	store := newTestStore(t)
	q := newFakeQueue()
	mgr := maintenance.New(store, nil)
	res := resolver.New(store, q)
	return New(store, mgr, res, nil, cfg), store, q
}

// seedGenericContact creates a contact with one email medium, reachable
// by a generic (no tags, no conditions) rule that matches any
// unhealthy condition.
func seedGenericContact(t *testing.T, store *storage.BoltStore) {
	t.Helper()
	require.NoError(t, store.CreateContact(&types.Contact{ID: "c1", Name: "ops"}))
	require.NoError(t, store.CreateMedium(&types.Medium{ID: "m1", ContactID: "c1", Type: types.MediumEmail, Address: "ops@example.test"}))
	require.NoError(t, store.CreateRule(&types.Rule{ID: "r1", ContactID: "c1", MediumIDs: []string{"m1"}}))
}

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

func TestHoldDownDelaysFirstProblem(t *testing.T) {
	proc, store, _ := newTestProcessor(t, Config{InitialFailureDelay: 60 * time.Second})
	seedGenericContact(t, store)

	n1, err := proc.Process(&types.RawEvent{Entity: "web1", Type: types.EventTypeService, State: "warning", Summary: "degraded", Time: 0})
	require.NoError(t, err)
	require.Nil(t, n1)

	n2, err := proc.Process(&types.RawEvent{Entity: "web1", Type: types.EventTypeService, State: "warning", Summary: "still degraded", Time: 30})
	require.NoError(t, err)
	require.Nil(t, n2)

	n3, err := proc.Process(&types.RawEvent{Entity: "web1", Type: types.EventTypeService, State: "warning", Summary: "still degraded", Time: 70})
	require.NoError(t, err)
	require.NotNil(t, n3)
	require.Equal(t, types.NotificationProblem, n3.Type)
	require.Equal(t, types.ConditionWarning, n3.Severity)

	check, err := store.GetCheckByName("web1")
	require.NoError(t, err)
	require.True(t, check.Failing)
	require.NotEmpty(t, check.AlertingMedia)

	routes, err := store.ListRoutesByCheck(check.ID)
	require.NoError(t, err)
	require.True(t, routes[0].IsAlerting)
}

func TestRecoveryAfterHoldDown(t *testing.T) {
	proc, store, q := newTestProcessor(t, Config{InitialFailureDelay: 60 * time.Second})
	seedGenericContact(t, store)

	for _, e := range []*types.RawEvent{
		{Entity: "web1", Type: types.EventTypeService, State: "warning", Summary: "d1", Time: 0},
		{Entity: "web1", Type: types.EventTypeService, State: "warning", Summary: "d2", Time: 30},
		{Entity: "web1", Type: types.EventTypeService, State: "warning", Summary: "d3", Time: 70},
	} {
		_, err := proc.Process(e)
		require.NoError(t, err)
	}

	recovery, err := proc.Process(&types.RawEvent{Entity: "web1", Type: types.EventTypeService, State: "ok", Summary: "back", Time: 90})
	require.NoError(t, err)
	require.NotNil(t, recovery)
	require.Equal(t, types.NotificationRecovery, recovery.Type)

	check, err := store.GetCheckByName("web1")
	require.NoError(t, err)
	require.False(t, check.Failing)
	require.Empty(t, check.AlertingMedia)
	require.Len(t, q.enqueued[types.MediumEmail], 2) // one problem, one recovery
}

func TestEscalationBypassesRepeatDelay(t *testing.T) {
	proc, store, _ := newTestProcessor(t, Config{InitialFailureDelay: 0})
	seedGenericContact(t, store)

	problem, err := proc.Process(&types.RawEvent{Entity: "web2", Type: types.EventTypeService, State: "warning", Summary: "warn", Time: 0})
	require.NoError(t, err)
	require.NotNil(t, problem)
	require.Equal(t, types.ConditionWarning, problem.Severity)

	escalated, err := proc.Process(&types.RawEvent{Entity: "web2", Type: types.EventTypeService, State: "critical", Summary: "worse", Time: 1})
	require.NoError(t, err)
	require.NotNil(t, escalated)
	require.Equal(t, types.ConditionCritical, escalated.Severity)
}

func TestAcknowledgeSuppressesUntilWindowExpires(t *testing.T) {
	proc, store, _ := newTestProcessor(t, Config{InitialFailureDelay: 0})
	seedGenericContact(t, store)

	problem, err := proc.Process(&types.RawEvent{Entity: "web3", Type: types.EventTypeService, State: "critical", Summary: "down", Time: 0})
	require.NoError(t, err)
	require.NotNil(t, problem)

	ack, err := proc.Process(&types.RawEvent{
		Entity: "web3", Type: types.EventTypeAction, State: "critical", Summary: "investigating",
		Time: 5, AcknowledgementID: "ack1", Duration: int64Ptr(3600),
	})
	require.NoError(t, err)
	require.NotNil(t, ack)
	require.Equal(t, types.NotificationAcknowledgement, ack.Type)

	suppressed, err := proc.Process(&types.RawEvent{
		Entity: "web3", Type: types.EventTypeService, State: "critical", Summary: "still down",
		Time: 10, RepeatFailureDelay: intPtr(0),
	})
	require.NoError(t, err)
	require.Nil(t, suppressed)

	reopened, err := proc.Process(&types.RawEvent{
		Entity: "web3", Type: types.EventTypeService, State: "critical", Summary: "still down",
		Time: 3700, RepeatFailureDelay: intPtr(0),
	})
	require.NoError(t, err)
	require.NotNil(t, reopened)
	require.Equal(t, types.NotificationProblem, reopened.Type)
}

func TestMaintenanceSuppressesUntilWindowExpires(t *testing.T) {
	proc, store, _ := newTestProcessor(t, Config{InitialFailureDelay: 0})
	seedGenericContact(t, store)

	// auto-create the check with a healthy no-op event before scheduling
	// maintenance, since the scheduler needs a check ID to attach to.
	_, err := proc.Process(&types.RawEvent{Entity: "web4", Type: types.EventTypeService, State: "ok", Summary: "fine", Time: -1})
	require.NoError(t, err)

	check, err := store.GetCheckByName("web4")
	require.NoError(t, err)

	mgr := maintenance.New(store, nil)
	_, err = mgr.ScheduleMaintenance(check.ID, time.Unix(0, 0), time.Unix(100, 0), "planned")
	require.NoError(t, err)

	suppressed, err := proc.Process(&types.RawEvent{Entity: "web4", Type: types.EventTypeService, State: "critical", Summary: "down", Time: 10})
	require.NoError(t, err)
	require.Nil(t, suppressed)

	states, err := store.ListStatesByCheck(check.ID, 10)
	require.NoError(t, err)
	require.Len(t, states, 2) // the ok sample and the suppressed critical sample

	problem, err := proc.Process(&types.RawEvent{Entity: "web4", Type: types.EventTypeService, State: "critical", Summary: "still down", Time: 150})
	require.NoError(t, err)
	require.NotNil(t, problem)
	require.Equal(t, types.NotificationProblem, problem.Type)
}

func TestTagBasedRoutingOnlyMatchesTaggedCheck(t *testing.T) {
	proc, store, q := newTestProcessor(t, Config{InitialFailureDelay: 0})

	require.NoError(t, store.CreateContact(&types.Contact{ID: "c1", Name: "ops"}))
	require.NoError(t, store.CreateMedium(&types.Medium{ID: "m1", ContactID: "c1", Type: types.MediumEmail}))
	require.NoError(t, store.CreateRule(&types.Rule{
		ID: "r1", ContactID: "c1", TagIDs: []string{"prod"},
		ConditionsList: []types.Condition{types.ConditionCritical},
		MediumIDs:      []string{"m1"},
	}))

	notifC, err := proc.Process(&types.RawEvent{Entity: "checkC", Type: types.EventTypeService, State: "critical", Summary: "down", Time: 0, Tags: []string{"prod", "web"}})
	require.NoError(t, err)
	require.NotNil(t, notifC)
	require.Len(t, q.enqueued[types.MediumEmail], 1)

	notifD, err := proc.Process(&types.RawEvent{Entity: "checkD", Type: types.EventTypeService, State: "critical", Summary: "down", Time: 0, Tags: []string{"staging"}})
	require.NoError(t, err)
	require.NotNil(t, notifD) // the transition itself still fires...
	require.Len(t, q.enqueued[types.MediumEmail], 1) // ...but D has no matching route, so no new alert
}

func TestDuplicateEventIsANoOp(t *testing.T) {
	proc, store, _ := newTestProcessor(t, Config{InitialFailureDelay: 0})
	seedGenericContact(t, store)

	event := &types.RawEvent{Entity: "web5", Type: types.EventTypeService, State: "critical", Summary: "down", Time: 0}
	first, err := proc.Process(event)
	require.NoError(t, err)
	require.NotNil(t, first)

	repeat, err := proc.Process(event)
	require.NoError(t, err)
	require.Nil(t, repeat)

	check, err := store.GetCheckByName("web5")
	require.NoError(t, err)
	states, err := store.ListStatesByCheck(check.ID, 10)
	require.NoError(t, err)
	require.Len(t, states, 1)
}

func TestUnknownCheckDroppedWhenAutoCreateDisabled(t *testing.T) {
	proc, _, q := newTestProcessor(t, Config{DisableAutoCreate: true})

	notif, err := proc.Process(&types.RawEvent{Entity: "ghost", Type: types.EventTypeService, State: "critical", Summary: "x", Time: 0})
	require.NoError(t, err)
	require.Nil(t, notif)
	require.Empty(t, q.enqueued)
}
