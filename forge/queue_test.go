package forge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventQueueEnqueueDequeue(t *testing.T) {
	q := NewEventQueue(10, 1)
	now := time.Now().UTC()

	require.NoError(t, q.Enqueue(testEvent("e1", "LOGIN", "u1", now)))
	require.NoError(t, q.Enqueue(testEvent("e2", "LOGIN", "u1", now)))
	assert.Equal(t, 2, q.Len())

	ctx := context.Background()
	first, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "e1", first.Id)
	second, err := q.Dequeue(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "e2", second.Id)
	assert.Equal(t, 0, q.Len())
}

func TestEventQueueFull(t *testing.T) {
	q := NewEventQueue(2, 1)
	now := time.Now().UTC()

	require.NoError(t, q.Enqueue(testEvent("e1", "LOGIN", "u1", now)))
	require.NoError(t, q.Enqueue(testEvent("e2", "LOGIN", "u1", now)))

	err := q.Enqueue(testEvent("e3", "LOGIN", "u1", now))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQueueFull) || err == ErrQueueFull)
}

func TestEventQueueDequeueCancellation(t *testing.T) {
	q := NewEventQueue(2, 1)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := q.Dequeue(ctx, 0)
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return after cancellation")
	}
}

func TestEventQueueUserShardAffinity(t *testing.T) {
	q := NewEventQueue(100, 4)
	now := time.Now().UTC()

	// All events of one user land on the same shard, preserving order.
	for i := 0; i < 10; i++ {
		require.NoError(t, q.Enqueue(testEvent(string(rune('a'+i)), "LOGIN", "u1", now)))
	}
	shard := q.shardFor("u1")
	assert.Equal(t, 10, len(shard))
}

func TestEventQueueTryDequeueEmpty(t *testing.T) {
	q := NewEventQueue(2, 1)
	assert.Nil(t, q.TryDequeue(0))
}
