package forge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitFor polls until the probe returns true or the deadline expires.
func waitFor(t *testing.T, timeout time.Duration, probe func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if probe() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestProcessorEndToEndFirstCommentScenario(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()
	mustCreateRule(t, e.rules, firstCommentRule())

	e.processor.Start(ctx)
	defer e.processor.Stop()

	first, err := e.events.Ingest(ctx, &Event{EventType: "USER_COMMENTED", UserId: "u1"})
	require.NoError(t, err)
	waitFor(t, 2*time.Second, func() bool { return e.processor.ProcessedEventCount() >= 1 })

	second, err := e.events.Ingest(ctx, &Event{EventType: "USER_COMMENTED", UserId: "u1"})
	require.NoError(t, err)
	waitFor(t, 2*time.Second, func() bool { return e.processor.ProcessedEventCount() >= 2 })

	state, err := e.rewards.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, state.BadgeIds["first-comment"])
	assert.Equal(t, int64(10), state.PointsByCategory["xp"])

	// Both events are persisted in occurrence order.
	stored, err := e.events.ListByUser(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, first.Id, stored[0].Id)
	assert.Equal(t, second.Id, stored[1].Id)

	// The second comment produced no further rewards.
	_, total, err := e.rewards.GetHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestProcessorDoubleStartIsNoOp(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()

	e.processor.Start(ctx)
	e.processor.Start(ctx)
	assert.True(t, e.processor.IsRunning())
	e.processor.Stop()
	assert.False(t, e.processor.IsRunning())
}

func TestProcessorStopAndRestart(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()
	mustCreateRule(t, e.rules, firstCommentRule())

	e.processor.Start(ctx)
	_, err := e.events.Ingest(ctx, &Event{EventType: "USER_COMMENTED", UserId: "u1"})
	require.NoError(t, err)
	waitFor(t, 2*time.Second, func() bool { return e.processor.ProcessedEventCount() >= 1 })
	e.processor.Stop()

	// Events enqueued while stopped stay queued and drain after restart.
	_, err = e.events.Ingest(ctx, &Event{EventType: "USER_COMMENTED", UserId: "u2"})
	require.NoError(t, err)
	assert.Equal(t, 1, e.events.QueueDepth())

	e.processor.Start(ctx)
	defer e.processor.Stop()
	waitFor(t, 2*time.Second, func() bool { return e.processor.ProcessedEventCount() >= 2 })

	state, err := e.rewards.GetUserState(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, state.BadgeIds["first-comment"])
}

func TestProcessorContinuesAfterRuleFailure(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()

	broken := &Rule{
		Id:         "R0",
		Triggers:   []string{"PING"},
		Conditions: []*Condition{{Type: "gone"}},
		Rewards:    []*Reward{{Type: RewardTypePoints, TargetId: "xp", Amount: 1}},
		IsActive:   true,
	}
	require.NoError(t, e.repos.Rules.Create(ctx, broken))
	mustCreateRule(t, e.rules, firstCommentRule())

	e.processor.Start(ctx)
	defer e.processor.Stop()

	_, err := e.events.Ingest(ctx, &Event{EventType: "PING", UserId: "u1"})
	require.NoError(t, err)
	_, err = e.events.Ingest(ctx, &Event{EventType: "USER_COMMENTED", UserId: "u1"})
	require.NoError(t, err)
	waitFor(t, 2*time.Second, func() bool { return e.processor.ProcessedEventCount() >= 2 })

	state, err := e.rewards.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, state.BadgeIds["first-comment"])
}

func TestIngestQueueFull(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{queueCapacity: 2})
	ctx := context.Background()

	_, err := e.events.Ingest(ctx, &Event{EventType: "PING", UserId: "u1"})
	require.NoError(t, err)
	_, err = e.events.Ingest(ctx, &Event{EventType: "PING", UserId: "u1"})
	require.NoError(t, err)
	_, err = e.events.Ingest(ctx, &Event{EventType: "PING", UserId: "u1"})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestEventRetentionPurge(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()

	old := testEvent("old", "PING", "u1", time.Now().UTC().AddDate(0, 0, -45))
	fresh := testEvent("fresh", "PING", "u1", time.Now().UTC())
	require.NoError(t, e.repos.Events.Store(ctx, old))
	require.NoError(t, e.repos.Events.Store(ctx, fresh))

	purged, err := e.events.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	_, err = e.events.GetEvent(ctx, "old")
	assert.ErrorIs(t, err, ErrEventNotFound)
	_, err = e.events.GetEvent(ctx, "fresh")
	assert.NoError(t, err)
}
