package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueuePushPopOrder(t *testing.T) {
	q := NewMemoryQueue(4)
	defer q.Close()
	ctx := context.Background()

	require.NoError(t, q.Push(ctx, []byte("a")))
	require.NoError(t, q.Push(ctx, []byte("b")))
	assert.Equal(t, 2, q.Len())

	v, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", string(v))

	v, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "b", string(v))
}

func TestMemoryQueuePopBlocksUntilPush(t *testing.T) {
	q := NewMemoryQueue(1)
	defer q.Close()
	ctx := context.Background()

	done := make(chan []byte)
	go func() {
		v, err := q.Pop(ctx)
		require.NoError(t, err)
		done <- v
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Push(ctx, []byte("x")))

	select {
	case v := <-done:
		assert.Equal(t, "x", string(v))
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Push")
	}
}

func TestMemoryQueuePopRespectsContextCancellation(t *testing.T) {
	q := NewMemoryQueue(1)
	defer q.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryQueueCloseUnblocksWaiters(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Pop did not unblock after Close")
	}
}
