package forge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDryRunPredictsWithoutSideEffects(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()
	mustCreateRule(t, e.rules, firstCommentRule())

	trace, err := e.sandbox.DryRun(ctx, &Event{EventType: "USER_COMMENTED", UserId: "u1"})
	require.NoError(t, err)

	assert.Equal(t, "u1", trace.UserId)
	assert.Equal(t, "USER_COMMENTED", trace.EventType)
	assert.NotEmpty(t, trace.TriggerEventId)
	require.Len(t, trace.Rules, 1)
	assert.True(t, trace.Rules[0].TriggerMatched)
	assert.True(t, trace.Rules[0].WouldExecute)
	assert.Len(t, trace.Rules[0].PredictedRewards, 2)
	assert.Equal(t, 1, trace.Summary.TotalRulesEvaluated)
	assert.Equal(t, 1, trace.Summary.RulesThatWouldExecute)
	assert.Equal(t, 2, trace.Summary.TotalPredictedRewards)
	assert.True(t, trace.Summary.EventValid)

	// Purity: nothing stored, queued or granted.
	events, err := e.events.ListByUser(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, 0, e.events.QueueDepth())

	state, err := e.rewards.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, state.BadgeIds)
	assert.Empty(t, state.PointsByCategory)

	_, total, err := e.rewards.GetHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)
}

func TestDryRunConditionDetails(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()
	mustCreateRule(t, e.rules, firstCommentRule())

	// With a prior comment the rule no longer fires, and the trace says why.
	require.NoError(t, e.repos.Events.Store(ctx, testEvent("prior", "USER_COMMENTED", "u1", nowMinusHour())))
	trace, err := e.sandbox.DryRun(ctx, &Event{EventType: "USER_COMMENTED", UserId: "u1"})
	require.NoError(t, err)

	require.Len(t, trace.Rules, 1)
	assert.False(t, trace.Rules[0].WouldExecute)
	require.Len(t, trace.Rules[0].Conditions, 1)
	condition := trace.Rules[0].Conditions[0]
	assert.Equal(t, ConditionFirstOccurrence, condition.Type)
	assert.False(t, condition.Result)
	assert.Equal(t, 1, condition.Details["priorOccurrences"])
	assert.Equal(t, 0, trace.Summary.RulesThatWouldExecute)
}

func TestDryRunInvalidEvent(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})

	trace, err := e.sandbox.DryRun(context.Background(), &Event{EventType: "", UserId: "u1"})
	require.NoError(t, err)
	assert.False(t, trace.Summary.EventValid)
	assert.NotEmpty(t, trace.Summary.ValidationErrors)
	assert.Empty(t, trace.Rules)
}
