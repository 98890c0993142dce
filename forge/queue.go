package forge

import (
	"context"
	"hash/fnv"
)

// EventQueue is a bounded FIFO of pending events. Events are routed onto a
// shard by userId so one worker per shard preserves per-user ordering;
// capacity is split evenly across shards.
type EventQueue struct {
	shards []chan *Event
}

// NewEventQueue creates a queue with the given total capacity split across
// shardCount shards. Both arguments fall back to sane minimums.
func NewEventQueue(capacity, shardCount int) *EventQueue {
	if capacity <= 0 {
		capacity = 10000
	}
	if shardCount <= 0 {
		shardCount = 1
	}
	perShard := capacity / shardCount
	if perShard < 1 {
		perShard = 1
	}
	q := &EventQueue{shards: make([]chan *Event, shardCount)}
	for i := range q.shards {
		q.shards[i] = make(chan *Event, perShard)
	}
	return q
}

// ShardCount returns the number of consumer shards.
func (q *EventQueue) ShardCount() int {
	return len(q.shards)
}

func (q *EventQueue) shardFor(userId string) chan *Event {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userId))
	return q.shards[int(h.Sum32())%len(q.shards)]
}

// Enqueue accepts an event or fails fast with ErrQueueFull when the target
// shard is at capacity.
func (q *EventQueue) Enqueue(event *Event) error {
	select {
	case q.shardFor(event.UserId) <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until the shard yields an event or the context is
// cancelled, in which case it returns nil and the context error.
func (q *EventQueue) Dequeue(ctx context.Context, shard int) (*Event, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case event := <-q.shards[shard]:
		return event, nil
	}
}

// TryDequeue returns the next event of the shard, or nil when it is empty.
func (q *EventQueue) TryDequeue(shard int) *Event {
	select {
	case event := <-q.shards[shard]:
		return event
	default:
		return nil
	}
}

// Len reports how many events are waiting across all shards.
func (q *EventQueue) Len() int {
	n := 0
	for _, shard := range q.shards {
		n += len(shard)
	}
	return n
}
