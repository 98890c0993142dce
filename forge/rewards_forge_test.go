package forge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pointsInstruction(userId, category string, amount int64, ruleId, eventId string, index int) *RewardInstruction {
	return &RewardInstruction{
		RuleId:      ruleId,
		EventId:     eventId,
		RewardIndex: index,
		UserId:      userId,
		Reward:      &Reward{Type: RewardTypePoints, TargetId: category, Amount: amount},
	}
}

func TestApplyPointsCreatesStateAndHistory(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()

	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{
		pointsInstruction("u1", "xp", 10, "R1", "evt-a", 0),
	}))

	state, err := e.rewards.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), state.PointsByCategory["xp"])

	entries, total, err := e.rewards.GetHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.True(t, entries[0].Success)
	assert.Equal(t, "R1", entries[0].Details["ruleId"])
}

func TestApplyPointsMultiplier(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()

	instr := pointsInstruction("u1", "xp", 10, "R1", "evt-a", 0)
	instr.Reward.Parameters = map[string]any{"multiplier": float64(3)}
	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{instr}))

	state, err := e.rewards.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(30), state.PointsByCategory["xp"])
}

func TestApplyReplayIsIdempotent(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()

	instr := pointsInstruction("u1", "xp", 10, "R1", "evt-a", 0)
	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{instr}))
	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{instr}))

	state, err := e.rewards.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), state.PointsByCategory["xp"])

	_, total, err := e.rewards.GetHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}

func TestApplyBadgeDuplicateIsNoOp(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()

	grant := func(eventId string) *RewardInstruction {
		return &RewardInstruction{
			RuleId:  "R1",
			EventId: eventId,
			UserId:  "u1",
			Reward:  &Reward{Type: RewardTypeBadge, TargetId: "first-comment"},
		}
	}
	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{grant("evt-a")}))
	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{grant("evt-b")}))

	state, err := e.rewards.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, state.BadgeIds["first-comment"])

	entries, total, err := e.rewards.GetHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	// Newest first: the second grant is the duplicate.
	assert.True(t, entries[0].Success)
	assert.Equal(t, true, entries[0].Details["duplicate"])
	assert.Nil(t, entries[1].Details["duplicate"])
}

func TestApplyLevelRecomputation(t *testing.T) {
	catalog := &CatalogConfig{
		Categories: []*PointCategory{{Id: "xp", Aggregation: AggregationSum}},
		Levels: []*LevelDescriptor{
			{Id: "bronze", CategoryId: "xp", MinPoints: 0},
			{Id: "silver", CategoryId: "xp", MinPoints: 100},
			{Id: "gold", CategoryId: "xp", MinPoints: 1000},
		},
	}
	e := newTestEngine(t, testEngineOpts{catalog: catalog})
	ctx := context.Background()

	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{
		pointsInstruction("u1", "xp", 150, "R1", "evt-a", 0),
	}))
	state, err := e.rewards.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "silver", state.CurrentLevelByCategory["xp"])

	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{
		pointsInstruction("u1", "xp", 900, "R1", "evt-b", 0),
	}))
	state, err = e.rewards.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "gold", state.CurrentLevelByCategory["xp"])
}

func TestApplyPenaltyPoints(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()

	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{
		pointsInstruction("u1", "xp", 100, "R1", "evt-a", 0),
	}))
	penalty := &RewardInstruction{
		RuleId:  "R2",
		EventId: "evt-b",
		UserId:  "u1",
		Reward:  &Reward{Type: RewardTypePenalty, TargetId: "xp", Amount: 30},
	}
	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{penalty}))

	state, err := e.rewards.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(70), state.PointsByCategory["xp"])
}

func TestApplyPenaltyBadgeRevocation(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{})
	ctx := context.Background()

	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{{
		RuleId: "R1", EventId: "evt-a", UserId: "u1",
		Reward: &Reward{Type: RewardTypeBadge, TargetId: "cheater-free"},
	}}))
	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{{
		RuleId: "R2", EventId: "evt-b", UserId: "u1",
		Reward: &Reward{Type: RewardTypePenalty, Parameters: map[string]any{"badgeId": "cheater-free"}},
	}}))

	state, err := e.rewards.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, state.BadgeIds["cheater-free"])
}

func TestApplySpendablePointsPostsWalletTransaction(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{catalog: spendableCatalog()})
	ctx := context.Background()

	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{
		pointsInstruction("u1", "xp", 25, "R1", "evt-a", 0),
	}))

	wallet, err := e.wallets.GetWallet(ctx, "u1", "xp")
	require.NoError(t, err)
	assert.Equal(t, int64(25), wallet.Balance)

	txns, err := e.wallets.ListTransactions(ctx, "u1", "xp", 10, 0)
	require.NoError(t, err)
	require.Len(t, txns, 1)
	assert.Equal(t, WalletTxEarned, txns[0].Type)
	assert.Equal(t, int64(25), txns[0].Amount)
}

func TestApplyInsufficientBalanceRecordsFailure(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{catalog: spendableCatalog()})
	ctx := context.Background()

	// The xp category disallows negative balances by default.
	penalty := &RewardInstruction{
		RuleId:  "R1",
		EventId: "evt-a",
		UserId:  "u1",
		Reward:  &Reward{Type: RewardTypePenalty, TargetId: "xp", Amount: 50},
	}
	require.NoError(t, e.rewards.Apply(ctx, []*RewardInstruction{penalty}))

	state, err := e.rewards.GetUserState(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), state.PointsByCategory["xp"])

	entries, total, err := e.rewards.GetHistory(ctx, "u1", 1, 10)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.False(t, entries[0].Success)
	assert.NotEmpty(t, entries[0].FailureReason)

	wallet, err := e.wallets.GetWallet(ctx, "u1", "xp")
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.Balance)
}
