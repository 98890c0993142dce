package forge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuleShouldTrigger(t *testing.T) {
	rule := &Rule{Id: "r", Triggers: []string{"USER_COMMENTED"}, IsActive: true}
	assert.True(t, rule.ShouldTrigger("USER_COMMENTED"))
	assert.True(t, rule.ShouldTrigger("user_commented"))
	assert.False(t, rule.ShouldTrigger("USER_LIKED"))

	rule.IsActive = false
	assert.False(t, rule.ShouldTrigger("USER_COMMENTED"))
}

func TestRuleValidate(t *testing.T) {
	base := firstCommentRule()
	require.NoError(t, base.Validate())

	noTriggers := firstCommentRule()
	noTriggers.Triggers = nil
	assert.Error(t, noTriggers.Validate())

	noConditions := firstCommentRule()
	noConditions.Conditions = nil
	assert.Error(t, noConditions.Validate())

	noRewards := firstCommentRule()
	noRewards.Rewards = nil
	assert.Error(t, noRewards.Validate())

	badLogic := firstCommentRule()
	badLogic.Logic = "most"
	assert.Error(t, badLogic.Validate())
}

func TestCreateRuleRejectsUnknownTags(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})

	badCondition := firstCommentRule()
	badCondition.Id = "bad-cond"
	badCondition.Conditions = []*Condition{{Type: "wishfulThinking"}}
	_, err := e.rules.CreateRule(context.Background(), badCondition)
	assert.Error(t, err)

	badReward := firstCommentRule()
	badReward.Id = "bad-reward"
	badReward.Rewards = []*Reward{{Type: "cake"}}
	_, err = e.rules.CreateRule(context.Background(), badReward)
	assert.Error(t, err)
}

func TestEvaluateEmitsRewardsInOrder(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()
	mustCreateRule(t, e.rules, firstCommentRule())

	event := testEvent("evt-a", "USER_COMMENTED", "u1", time.Now().UTC())
	require.NoError(t, e.repos.Events.Store(ctx, event))

	instructions, err := e.rules.Evaluate(ctx, event)
	require.NoError(t, err)
	require.Len(t, instructions, 2)
	assert.Equal(t, RewardTypeBadge, instructions[0].Reward.Type)
	assert.Equal(t, RewardTypePoints, instructions[1].Reward.Type)
	assert.Equal(t, 0, instructions[0].RewardIndex)
	assert.Equal(t, 1, instructions[1].RewardIndex)
	assert.Equal(t, "evt-a", instructions[0].EventId)
}

func TestEvaluateSecondOccurrenceProducesNothing(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()
	mustCreateRule(t, e.rules, firstCommentRule())

	now := time.Now().UTC()
	first := testEvent("evt-a", "USER_COMMENTED", "u1", now)
	second := testEvent("evt-b", "USER_COMMENTED", "u1", now.Add(time.Minute))
	require.NoError(t, e.repos.Events.Store(ctx, first))
	require.NoError(t, e.repos.Events.Store(ctx, second))

	instructions, err := e.rules.Evaluate(ctx, second)
	require.NoError(t, err)
	assert.Empty(t, instructions)
}

func TestEvaluateRuleOrderIsStable(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()

	for _, id := range []string{"R9", "R1", "R5"} {
		rule := &Rule{
			Id:         id,
			Triggers:   []string{"PING"},
			Conditions: []*Condition{{Type: ConditionAlwaysTrue}},
			Rewards:    []*Reward{{Type: RewardTypePoints, TargetId: "xp", Amount: 1}},
			IsActive:   true,
		}
		mustCreateRule(t, e.rules, rule)
	}

	event := testEvent("evt", "PING", "u1", time.Now().UTC())
	require.NoError(t, e.repos.Events.Store(ctx, event))
	instructions, err := e.rules.Evaluate(ctx, event)
	require.NoError(t, err)
	require.Len(t, instructions, 3)
	assert.Equal(t, "R1", instructions[0].RuleId)
	assert.Equal(t, "R5", instructions[1].RuleId)
	assert.Equal(t, "R9", instructions[2].RuleId)
}

func TestEvaluateSkipsInactiveRules(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()
	rule := firstCommentRule()
	rule.IsActive = false
	mustCreateRule(t, e.rules, rule)

	event := testEvent("evt", "USER_COMMENTED", "u1", time.Now().UTC())
	instructions, err := e.rules.Evaluate(ctx, event)
	require.NoError(t, err)
	assert.Empty(t, instructions)
}

func TestEvaluateSkipsMisconfiguredRuleAndContinues(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()

	// Bypass CreateRule validation to simulate a rule that went bad in
	// storage.
	broken := &Rule{
		Id:         "R0-broken",
		Triggers:   []string{"PING"},
		Conditions: []*Condition{{Type: "gone"}},
		Rewards:    []*Reward{{Type: RewardTypePoints, TargetId: "xp", Amount: 1}},
		IsActive:   true,
	}
	require.NoError(t, e.repos.Rules.Create(ctx, broken))
	good := &Rule{
		Id:         "R1-good",
		Triggers:   []string{"PING"},
		Conditions: []*Condition{{Type: ConditionAlwaysTrue}},
		Rewards:    []*Reward{{Type: RewardTypePoints, TargetId: "xp", Amount: 5}},
		IsActive:   true,
	}
	mustCreateRule(t, e.rules, good)

	event := testEvent("evt", "PING", "u1", time.Now().UTC())
	instructions, err := e.rules.Evaluate(ctx, event)
	require.NoError(t, err)
	require.Len(t, instructions, 1)
	assert.Equal(t, "R1-good", instructions[0].RuleId)
}

func TestRuleLifecycle(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()
	mustCreateRule(t, e.rules, firstCommentRule())

	rule, err := e.rules.GetRule(ctx, "R1")
	require.NoError(t, err)
	assert.True(t, rule.IsActive)
	assert.False(t, rule.CreatedAt.IsZero())

	rule, err = e.rules.SetRuleActive(ctx, "R1", false)
	require.NoError(t, err)
	assert.False(t, rule.IsActive)

	active, err := e.rules.ListActiveRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	byTrigger, err := e.rules.ListRulesByTrigger(ctx, "USER_COMMENTED")
	require.NoError(t, err)
	assert.Empty(t, byTrigger)

	require.NoError(t, e.rules.DeleteRule(ctx, "R1"))
	_, err = e.rules.GetRule(ctx, "R1")
	assert.ErrorIs(t, err, ErrRuleNotFound)
}
