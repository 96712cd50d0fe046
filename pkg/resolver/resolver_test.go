package resolver

import (
	"testing"
	"time"

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

// fakeQueue records enqueued alert IDs per medium without needing the
// dispatch package's worker machinery.
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

func seedContactRuleMedium(t *testing.T, store *storage.BoltStore, tagIDs []string, conditions []types.Condition) (*types.Contact, *types.Rule, *types.Medium) {
	t.Helper()
	contact := &types.Contact{ID: "c1", Name: "ops"}
	require.NoError(t, store.CreateContact(contact))

	medium := &types.Medium{ID: "m1", ContactID: "c1", Type: types.MediumEmail, Address: "ops@example.test"}
	require.NoError(t, store.CreateMedium(medium))

	rule := &types.Rule{ID: "r1", ContactID: "c1", TagIDs: tagIDs, ConditionsList: conditions, MediumIDs: []string{"m1"}}
	require.NoError(t, store.CreateRule(rule))

	return contact, rule, medium
}

func TestRecomputeRoutesMatchesGenericAndTaggedRules(t *testing.T) {
	store := newTestStore(t)
	seedContactRuleMedium(t, store, nil, nil)

	check := &types.Check{ID: "chk1", TagIDs: []string{"prod"}}
	require.NoError(t, store.CreateCheck(check))

	res := New(store, nil)
	require.NoError(t, res.RecomputeRoutes("chk1"))

	routes, err := store.ListRoutesByCheck("chk1")
	require.NoError(t, err)
	require.Len(t, routes, 1)
	require.Equal(t, "r1", routes[0].RuleID)
}

func TestRecomputeRoutesSkipsRuleWithUnsatisfiedTags(t *testing.T) {
	store := newTestStore(t)
	seedContactRuleMedium(t, store, []string{"prod"}, nil)

	check := &types.Check{ID: "chk1", TagIDs: []string{"staging"}}
	require.NoError(t, store.CreateCheck(check))

	res := New(store, nil)
	require.NoError(t, res.RecomputeRoutes("chk1"))

	routes, err := store.ListRoutesByCheck("chk1")
	require.NoError(t, err)
	require.Empty(t, routes)
}

func TestRecomputeRoutesRemovesStaleRoute(t *testing.T) {
	store := newTestStore(t)
	seedContactRuleMedium(t, store, []string{"prod"}, nil)

	check := &types.Check{ID: "chk1", TagIDs: []string{"prod"}}
	require.NoError(t, store.CreateCheck(check))

	res := New(store, nil)
	require.NoError(t, res.RecomputeRoutes("chk1"))
	routes, err := store.ListRoutesByCheck("chk1")
	require.NoError(t, err)
	require.Len(t, routes, 1)

	check.TagIDs = []string{"staging"}
	require.NoError(t, store.UpdateCheck(check))
	require.NoError(t, res.RecomputeRoutes("chk1"))

	routes, err = store.ListRoutesByCheck("chk1")
	require.NoError(t, err)
	require.Empty(t, routes)
}

func TestResolveProblemProducesAlertAndMarksRouteAlerting(t *testing.T) {
	store := newTestStore(t)
	seedContactRuleMedium(t, store, nil, nil)

	check := &types.Check{ID: "chk1", AlertingMedia: map[string]bool{}}
	require.NoError(t, store.CreateCheck(check))

	res := New(store, nil)
	require.NoError(t, res.RecomputeRoutes("chk1"))

	notif := &types.Notification{ID: "n1", CheckID: "chk1", Type: types.NotificationProblem, Severity: types.ConditionCritical, Summary: "web1 is critical"}
	alerts, err := res.Resolve(check, notif, false)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, types.NotificationProblem, alerts[0].NotificationType)
	require.True(t, check.AlertingMedia["c1:m1"])

	routes, err := store.ListRoutesByCheck("chk1")
	require.NoError(t, err)
	require.True(t, routes[0].IsAlerting)
}

func TestResolveProblemDedupsWithoutEscalation(t *testing.T) {
	store := newTestStore(t)
	seedContactRuleMedium(t, store, nil, nil)

	check := &types.Check{ID: "chk1", AlertingMedia: map[string]bool{}}
	require.NoError(t, store.CreateCheck(check))
	res := New(store, nil)
	require.NoError(t, res.RecomputeRoutes("chk1"))

	notif := &types.Notification{ID: "n1", CheckID: "chk1", Type: types.NotificationProblem, Severity: types.ConditionWarning}
	_, err := res.Resolve(check, notif, false)
	require.NoError(t, err)

	repeat, err := res.Resolve(check, notif, false)
	require.NoError(t, err)
	require.Empty(t, repeat)

	escalated := &types.Notification{ID: "n2", CheckID: "chk1", Type: types.NotificationProblem, Severity: types.ConditionCritical}
	alerts, err := res.Resolve(check, escalated, true)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}

func TestResolveRecoveryClearsAlertingMediaAndRoutes(t *testing.T) {
	store := newTestStore(t)
	seedContactRuleMedium(t, store, nil, nil)

	check := &types.Check{ID: "chk1", AlertingMedia: map[string]bool{}}
	require.NoError(t, store.CreateCheck(check))
	q := newFakeQueue()
	res := New(store, q)
	require.NoError(t, res.RecomputeRoutes("chk1"))

	notif := &types.Notification{ID: "n1", CheckID: "chk1", Type: types.NotificationProblem, Severity: types.ConditionCritical}
	_, err := res.Resolve(check, notif, false)
	require.NoError(t, err)
	require.NotEmpty(t, check.AlertingMedia)

	recovery := &types.Notification{ID: "n2", CheckID: "chk1", Type: types.NotificationRecovery, Severity: types.ConditionOK}
	alerts, err := res.Resolve(check, recovery, false)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, types.NotificationRecovery, alerts[0].NotificationType)
	require.Empty(t, check.AlertingMedia)
	// One problem alert and one recovery alert.
	require.Len(t, q.enqueued[types.MediumEmail], 2)

	routes, err := store.ListRoutesByCheck("chk1")
	require.NoError(t, err)
	require.False(t, routes[0].IsAlerting)
}

func TestResolveProblemHonorsTimeRestrictionInContactTimezone(t *testing.T) {
	store := newTestStore(t)

	// Monday 23:30 UTC is Tuesday 08:30 in Asia/Tokyo (UTC+9); the
	// restriction only admits Tuesday 08:00-09:00 Tokyo local time.
	contact := &types.Contact{ID: "c1", Timezone: "Asia/Tokyo"}
	require.NoError(t, store.CreateContact(contact))
	medium := &types.Medium{ID: "m1", ContactID: "c1", Type: types.MediumEmail}
	require.NoError(t, store.CreateMedium(medium))
	rule := &types.Rule{
		ID:        "r1",
		ContactID: "c1",
		MediumIDs: []string{"m1"},
		TimeRestrictions: []types.TimeRestriction{
			{Weekday: time.Tuesday, StartHour: 8, StartMin: 0, EndHour: 9, EndMin: 0},
		},
	}
	require.NoError(t, store.CreateRule(rule))

	check := &types.Check{ID: "chk1", AlertingMedia: map[string]bool{}}
	require.NoError(t, store.CreateCheck(check))
	res := New(store, nil)
	require.NoError(t, res.RecomputeRoutes("chk1"))

	notif := &types.Notification{
		ID:        "n1",
		CheckID:   "chk1",
		Type:      types.NotificationProblem,
		Severity:  types.ConditionCritical,
		Timestamp: time.Date(2024, time.January, 8, 23, 30, 0, 0, time.UTC),
	}
	alerts, err := res.Resolve(check, notif, false)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}

func TestResolveProblemTimeRestrictionExcludesOutsideContactWindow(t *testing.T) {
	store := newTestStore(t)

	// Same instant, but no contact timezone: evaluated as Monday 23:30
	// UTC, which falls outside the Tuesday 08:00-09:00 restriction.
	contact := &types.Contact{ID: "c1"}
	require.NoError(t, store.CreateContact(contact))
	medium := &types.Medium{ID: "m1", ContactID: "c1", Type: types.MediumEmail}
	require.NoError(t, store.CreateMedium(medium))
	rule := &types.Rule{
		ID:        "r1",
		ContactID: "c1",
		MediumIDs: []string{"m1"},
		TimeRestrictions: []types.TimeRestriction{
			{Weekday: time.Tuesday, StartHour: 8, StartMin: 0, EndHour: 9, EndMin: 0},
		},
	}
	require.NoError(t, store.CreateRule(rule))

	check := &types.Check{ID: "chk1", AlertingMedia: map[string]bool{}}
	require.NoError(t, store.CreateCheck(check))
	res := New(store, nil)
	require.NoError(t, res.RecomputeRoutes("chk1"))

	notif := &types.Notification{
		ID:        "n1",
		CheckID:   "chk1",
		Type:      types.NotificationProblem,
		Severity:  types.ConditionCritical,
		Timestamp: time.Date(2024, time.January, 8, 23, 30, 0, 0, time.UTC),
	}
	alerts, err := res.Resolve(check, notif, false)
	require.NoError(t, err)
	require.Empty(t, alerts)
}

func TestResolveRollupCollapsesAboveThreshold(t *testing.T) {
	store := newTestStore(t)
	contact := &types.Contact{ID: "c1"}
	require.NoError(t, store.CreateContact(contact))
	medium := &types.Medium{ID: "m1", ContactID: "c1", Type: types.MediumSlack, RollupThreshold: 1}
	require.NoError(t, store.CreateMedium(medium))
	rule := &types.Rule{ID: "r1", ContactID: "c1", MediumIDs: []string{"m1"}}
	require.NoError(t, store.CreateRule(rule))

	res := New(store, nil)

	for _, id := range []string{"chk1", "chk2"} {
		check := &types.Check{ID: id, AlertingMedia: map[string]bool{}}
		require.NoError(t, store.CreateCheck(check))
		require.NoError(t, res.RecomputeRoutes(id))
	}

	chk1, err := store.GetCheck("chk1")
	require.NoError(t, err)
	_, err = res.Resolve(chk1, &types.Notification{CheckID: "chk1", Type: types.NotificationProblem, Severity: types.ConditionCritical}, false)
	require.NoError(t, err)
	require.NoError(t, store.UpdateCheck(chk1))

	chk2, err := store.GetCheck("chk2")
	require.NoError(t, err)
	alerts, err := res.Resolve(chk2, &types.Notification{CheckID: "chk2", Type: types.NotificationProblem, Severity: types.ConditionCritical}, false)
	require.NoError(t, err)
	require.NoError(t, store.UpdateCheck(chk2))

	require.Len(t, alerts, 1)
	require.True(t, alerts[0].Rollup)
	require.Len(t, alerts[0].RollupCheckIDs, 2)
}
