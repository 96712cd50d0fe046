package reconciler

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

func TestReconcileAlertingMediaDropsDanglingEntry(t *testing.T) {
	store := newTestStore(t)
	medium := &types.Medium{ID: "m1", ContactID: "c1", Type: types.MediumSlack, Address: "https://example.test/hook"}
	require.NoError(t, store.CreateMedium(medium))

	check := &types.Check{
		ID: "chk1",
		AlertingMedia: map[string]bool{
			"c1:m1":        true, // live
			"c1:deleted-m": true, // dangling
		},
	}
	require.NoError(t, store.CreateCheck(check))

	r := New(store, time.Minute, 0)
	require.NoError(t, r.reconcileAlertingMedia("chk1"))

	reloaded, err := store.GetCheck("chk1")
	require.NoError(t, err)
	require.True(t, reloaded.AlertingMedia["c1:m1"])
	require.False(t, reloaded.AlertingMedia["c1:deleted-m"])
}

func TestReconcileExpiredMaintenanceClearsIsAlerting(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateCheck(&types.Check{ID: "chk1"}))

	expired := &types.UnscheduledMaintenance{
		ID:        "um1",
		CheckID:   "chk1",
		StartTime: time.Now().Add(-2 * time.Hour),
		EndTime:   time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.CreateUnscheduledMaintenance(expired))

	route := &types.Route{ID: "rt1", CheckID: "chk1", RuleID: "rule1", ContactID: "c1", IsAlerting: true}
	require.NoError(t, store.CreateRoute(route))

	r := New(store, time.Minute, 0)
	require.NoError(t, r.reconcileExpiredMaintenance("chk1", time.Now()))

	remaining, err := store.ListUnscheduledMaintenanceByCheck("chk1")
	require.NoError(t, err)
	require.Empty(t, remaining)

	reloadedRoute, err := store.GetRoute("rt1")
	require.NoError(t, err)
	require.False(t, reloadedRoute.IsAlerting)
}

func TestReconcileExpiredMaintenanceLeavesOpenWindowAlone(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateCheck(&types.Check{ID: "chk1"}))

	open := &types.UnscheduledMaintenance{
		ID:        "um1",
		CheckID:   "chk1",
		StartTime: time.Now().Add(-time.Hour),
		EndTime:   time.Now().Add(time.Hour),
	}
	require.NoError(t, store.CreateUnscheduledMaintenance(open))

	r := New(store, time.Minute, 0)
	require.NoError(t, r.reconcileExpiredMaintenance("chk1", time.Now()))

	remaining, err := store.ListUnscheduledMaintenanceByCheck("chk1")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
}

func TestReconcileStateRetentionTrimsPastBound(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.CreateCheck(&types.Check{ID: "chk1"}))

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, store.AppendState(&types.State{
			ID:        "s" + string(rune('0'+i)),
			CheckID:   "chk1",
			Condition: types.ConditionOK,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	r := New(store, time.Minute, 2)
	require.NoError(t, r.reconcileStateRetention("chk1"))

	remaining, err := store.ListStatesByCheck("chk1", 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
}

func TestNewAppliesDefaults(t *testing.T) {
	store := newTestStore(t)
	r := New(store, 0, 0)
	require.Equal(t, DefaultInterval, r.interval)
	require.Equal(t, DefaultStateRetention, r.stateRetention)
}
