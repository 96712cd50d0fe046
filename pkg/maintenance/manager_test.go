package maintenance

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

func TestScheduleAndQueryScheduledWindow(t *testing.T) {
	store := newTestStore(t)
	mgr := New(store, nil)

	start := time.Unix(0, 0)
	end := start.Add(100 * time.Second)
	_, err := mgr.ScheduleMaintenance("chk1", start, end, "planned upgrade")
	require.NoError(t, err)

	in, err := mgr.InScheduled("chk1", start.Add(10*time.Second))
	require.NoError(t, err)
	require.True(t, in)

	in, err = mgr.InScheduled("chk1", end.Add(time.Second))
	require.NoError(t, err)
	require.False(t, in)
}

func TestEndScheduledBeforeStartDeletesWindow(t *testing.T) {
	store := newTestStore(t)
	mgr := New(store, nil)

	start := time.Now().Add(time.Hour)
	end := start.Add(time.Hour)
	w, err := mgr.ScheduleMaintenance("chk1", start, end, "")
	require.NoError(t, err)

	ended, err := mgr.EndScheduled("chk1", w.ID, start.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ended)

	_, err = store.GetScheduledMaintenance(w.ID)
	require.Error(t, err)
}

func TestEndScheduledMidWindowTruncatesAndClearsRoutes(t *testing.T) {
	store := newTestStore(t)
	mgr := New(store, nil)

	start := time.Now().Add(-time.Hour)
	end := start.Add(2 * time.Hour)
	w, err := mgr.ScheduleMaintenance("chk1", start, end, "")
	require.NoError(t, err)

	require.NoError(t, store.CreateRoute(&types.Route{ID: "rt1", CheckID: "chk1", IsAlerting: true}))

	at := time.Now()
	ended, err := mgr.EndScheduled("chk1", w.ID, at)
	require.NoError(t, err)
	require.True(t, ended)

	reloaded, err := store.GetScheduledMaintenance(w.ID)
	require.NoError(t, err)
	require.WithinDuration(t, at, reloaded.EndTime, time.Second)

	route, err := store.GetRoute("rt1")
	require.NoError(t, err)
	require.False(t, route.IsAlerting)
}

func TestEndScheduledAfterEndIsNoOp(t *testing.T) {
	store := newTestStore(t)
	mgr := New(store, nil)

	start := time.Now().Add(-2 * time.Hour)
	end := start.Add(time.Hour)
	w, err := mgr.ScheduleMaintenance("chk1", start, end, "")
	require.NoError(t, err)

	ended, err := mgr.EndScheduled("chk1", w.ID, time.Now())
	require.NoError(t, err)
	require.False(t, ended)
}

func TestAcknowledgeHealthyCheckIsNoOp(t *testing.T) {
	store := newTestStore(t)
	mgr := New(store, nil)
	check := &types.Check{ID: "chk1", Failing: false}
	require.NoError(t, store.CreateCheck(check))

	acked, err := mgr.Acknowledge(check, time.Now(), time.Hour, "")
	require.NoError(t, err)
	require.False(t, acked)

	current, err := mgr.CurrentUnscheduled("chk1")
	require.NoError(t, err)
	require.Nil(t, current)
}

func TestAcknowledgeZeroDurationIsNoOp(t *testing.T) {
	store := newTestStore(t)
	mgr := New(store, nil)
	check := &types.Check{ID: "chk1", Failing: true}
	require.NoError(t, store.CreateCheck(check))

	acked, err := mgr.Acknowledge(check, time.Now(), 0, "")
	require.NoError(t, err)
	require.False(t, acked)
}

func TestAcknowledgeFailingCheckOpensWindowAndClearsState(t *testing.T) {
	store := newTestStore(t)
	mgr := New(store, nil)
	check := &types.Check{
		ID:            "chk1",
		Failing:       true,
		AlertingMedia: map[string]bool{"c1:m1": true},
	}
	require.NoError(t, store.CreateCheck(check))
	require.NoError(t, store.CreateRoute(&types.Route{ID: "rt1", CheckID: "chk1", IsAlerting: true}))

	acked, err := mgr.Acknowledge(check, time.Now(), time.Hour, "investigating")
	require.NoError(t, err)
	require.True(t, acked)
	require.Empty(t, check.AlertingMedia)
	require.NoError(t, store.UpdateCheck(check))

	current, err := mgr.CurrentUnscheduled("chk1")
	require.NoError(t, err)
	require.NotNil(t, current)

	reloaded, err := store.GetCheck("chk1")
	require.NoError(t, err)
	require.Empty(t, reloaded.AlertingMedia)

	route, err := store.GetRoute("rt1")
	require.NoError(t, err)
	require.False(t, route.IsAlerting)
}

func TestAcknowledgeTruncatesExistingWindow(t *testing.T) {
	store := newTestStore(t)
	mgr := New(store, nil)
	check := &types.Check{ID: "chk1", Failing: true}
	require.NoError(t, store.CreateCheck(check))

	_, err := mgr.Acknowledge(check, time.Now(), time.Hour, "first")
	require.NoError(t, err)
	first, err := mgr.CurrentUnscheduled("chk1")
	require.NoError(t, err)
	require.NotNil(t, first)

	_, err = mgr.Acknowledge(check, time.Now(), 2*time.Hour, "second")
	require.NoError(t, err)

	windows, err := store.ListUnscheduledMaintenanceByCheck("chk1")
	require.NoError(t, err)
	require.Len(t, windows, 1)
	require.Equal(t, "second", windows[0].Summary)
}
