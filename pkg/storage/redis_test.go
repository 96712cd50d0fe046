package storage

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/flapjack-io/flapjack/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func TestRedisStoreCheckCRUD(t *testing.T) {
	store := newTestRedisStore(t)

	check := &types.Check{ID: "c1", Name: "web1", Condition: types.ConditionOK}
	require.NoError(t, store.CreateCheck(check))

	got, err := store.GetCheck("c1")
	require.NoError(t, err)
	assert.Equal(t, "web1", got.Name)

	byName, err := store.GetCheckByName("web1")
	require.NoError(t, err)
	assert.Equal(t, "c1", byName.ID)

	require.NoError(t, store.DeleteCheck("c1"))
	_, err = store.GetCheck("c1")
	assert.Error(t, err)

	_, err = store.GetCheckByName("web1")
	assert.Error(t, err, "deleting a check must drop its name index entry too")
}

func TestRedisStoreStateOrderingAndTrim(t *testing.T) {
	store := newTestRedisStore(t)
	base := time.Unix(1700000000, 0)

	for i := 0; i < 4; i++ {
		st := &types.State{CheckID: "c1", Condition: types.ConditionOK, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		require.NoError(t, store.AppendState(st))
	}

	states, err := store.ListStatesByCheck("c1", 0)
	require.NoError(t, err)
	require.Len(t, states, 4)
	assert.True(t, states[0].CreatedAt.After(states[1].CreatedAt))

	deleted, err := store.TrimStates("c1", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	remaining, err := store.ListStatesByCheck("c1", 0)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestRedisStoreAlertQueueIndexTracksStatus(t *testing.T) {
	store := newTestRedisStore(t)

	a := &types.Alert{ID: "a1", MediumType: types.MediumSlack, Status: types.AlertStatusQueued}
	require.NoError(t, store.CreateAlert(a))

	queued, err := store.ListQueuedAlertsByMedium(types.MediumSlack)
	require.NoError(t, err)
	require.Len(t, queued, 1)

	a.Status = types.AlertStatusDelivered
	require.NoError(t, store.UpdateAlert(a))

	queued, err = store.ListQueuedAlertsByMedium(types.MediumSlack)
	require.NoError(t, err)
	assert.Empty(t, queued)
}

func TestRedisStoreRoutesByCheckAndRule(t *testing.T) {
	store := newTestRedisStore(t)

	require.NoError(t, store.CreateRoute(&types.Route{ID: "r1", CheckID: "c1", RuleID: "rule1"}))
	require.NoError(t, store.CreateRoute(&types.Route{ID: "r2", CheckID: "c1", RuleID: "rule2"}))

	byCheck, err := store.ListRoutesByCheck("c1")
	require.NoError(t, err)
	assert.Len(t, byCheck, 2)

	require.NoError(t, store.DeleteRoute("r1"))
	byRule, err := store.ListRoutesByRule("rule1")
	require.NoError(t, err)
	assert.Empty(t, byRule)
}
