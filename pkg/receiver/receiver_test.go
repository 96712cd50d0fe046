package receiver

import (
	"context"
	"testing"

	"github.com/flapjack-io/flapjack/pkg/queue"
	"github.com/flapjack-io/flapjack/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestSubmitThenReceiveRoundTrips(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	t.Cleanup(func() { _ = q.Close() })
	r := New(q)

	event := &types.RawEvent{Entity: "web1", Type: types.EventTypeService, State: "critical", Summary: "down", Time: 0}
	require.NoError(t, r.Submit(context.Background(), event))

	got, err := r.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "web1", got.CheckName())
	require.Equal(t, "critical", got.State)
}

func TestReceiveSkipsMalformedJSON(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	t.Cleanup(func() { _ = q.Close() })
	r := New(q)

	require.NoError(t, q.Push(context.Background(), []byte("not json")))
	require.NoError(t, r.Submit(context.Background(), &types.RawEvent{Entity: "web1", Type: types.EventTypeService, State: "ok", Summary: "fine", Time: 0}))

	got, err := r.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "web1", got.CheckName())
}

func TestReceiveSkipsSchemaViolations(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	t.Cleanup(func() { _ = q.Close() })
	r := New(q)

	require.NoError(t, r.Submit(context.Background(), &types.RawEvent{Type: types.EventTypeService, State: "ok"})) // missing entity
	require.NoError(t, r.Submit(context.Background(), &types.RawEvent{Entity: "web1", Type: "bogus", State: "ok"}))
	require.NoError(t, r.Submit(context.Background(), &types.RawEvent{Entity: "web2", Type: types.EventTypeService, State: "ok", Summary: "fine", Time: 0}))

	got, err := r.Receive(context.Background())
	require.NoError(t, err)
	require.Equal(t, "web2", got.CheckName())
}

func TestReceiveReturnsErrorWhenQueueClosed(t *testing.T) {
	q := queue.NewMemoryQueue(4)
	r := New(q)
	require.NoError(t, q.Close())

	_, err := r.Receive(context.Background())
	require.Error(t, err)
}
