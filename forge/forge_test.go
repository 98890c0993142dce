package forge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEngine bundles a fully wired in-memory engine for tests.
type testEngine struct {
	forge        *forgeImpl
	repos        *Repositories
	queue        *EventQueue
	processor    *QueueProcessor
	events       *MeritEventsSystem
	rules        *MeritRulesSystem
	rewards      *MeritRewardsSystem
	wallets      *MeritWalletsSystem
	leaderboards *MeritLeaderboardsSystem
	sandbox      *MeritSandboxSystem
}

type testEngineOpts struct {
	queueCapacity int
	workerCount   int
	catalog       *CatalogConfig
	scriptHost    ScriptHost
}

func newTestEngine(t *testing.T, opts testEngineOpts) *testEngine {
	t.Helper()
	logger := zap.NewNop()
	if opts.queueCapacity == 0 {
		opts.queueCapacity = 100
	}
	if opts.workerCount == 0 {
		opts.workerCount = 1
	}

	repos := NewMemoryRepositories()
	catalog := NewCatalog(opts.catalog)
	queue := NewEventQueue(opts.queueCapacity, opts.workerCount)
	conditions := NewConditionRegistry(logger, opts.scriptHost)

	rules := NewMeritRulesSystem(&RulesConfig{}, repos.Rules, repos.Events, conditions, logger)
	wallets := NewMeritWalletsSystem(nil, catalog, repos.Wallets, repos.Transfers, logger)
	rewards := NewMeritRewardsSystem(&RewardsConfig{Catalog: opts.catalog}, catalog, repos.States, repos.History, wallets, logger, nil)
	events := NewMeritEventsSystem(&EventsConfig{QueueCapacity: opts.queueCapacity}, queue, repos.Events, catalog, logger, nil)
	cache := NewMemoryLeaderboardCache(time.Minute, 64)
	leaderboards := NewMeritLeaderboardsSystem(nil, repos.States, repos.History, cache, logger, nil)
	sandbox := NewMeritSandboxSystem(nil, rules)
	processor := NewQueueProcessor(queue, repos.Events, rules, rewards, logger, nil, time.Second)

	f := &forgeImpl{
		logger:    logger,
		catalog:   catalog,
		repos:     repos,
		queue:     queue,
		processor: processor,
		systems: map[SystemType]System{
			SystemTypeEvents:       events,
			SystemTypeRules:        rules,
			SystemTypeRewards:      rewards,
			SystemTypeWallets:      wallets,
			SystemTypeLeaderboards: leaderboards,
			SystemTypeSandbox:      sandbox,
		},
	}
	return &testEngine{
		forge:        f,
		repos:        repos,
		queue:        queue,
		processor:    processor,
		events:       events,
		rules:        rules,
		rewards:      rewards,
		wallets:      wallets,
		leaderboards: leaderboards,
		sandbox:      sandbox,
	}
}

// spendableCatalog declares an xp category usable by wallet tests.
func spendableCatalog() *CatalogConfig {
	return &CatalogConfig{
		Categories: []*PointCategory{
			{Id: "xp", Name: "Experience", Aggregation: AggregationSum, IsSpendable: true},
		},
	}
}

func mustCreateRule(t *testing.T, rules *MeritRulesSystem, rule *Rule) {
	t.Helper()
	_, err := rules.CreateRule(context.Background(), rule)
	require.NoError(t, err)
}

func testEvent(id, eventType, userId string, at time.Time) *Event {
	return &Event{Id: id, EventType: eventType, UserId: userId, OccurredAt: at}
}

func nowMinusHour() time.Time {
	return time.Now().UTC().Add(-time.Hour)
}

// firstCommentRule mirrors a typical badge-plus-points rule.
func firstCommentRule() *Rule {
	return &Rule{
		Id:       "R1",
		Name:     "First comment",
		Triggers: []string{"USER_COMMENTED"},
		Conditions: []*Condition{
			{Type: ConditionFirstOccurrence, Parameters: map[string]any{"maxOccurrences": float64(1)}},
		},
		Rewards: []*Reward{
			{Type: RewardTypeBadge, TargetId: "first-comment"},
			{Type: RewardTypePoints, TargetId: "xp", Amount: 10},
		},
		IsActive: true,
	}
}
