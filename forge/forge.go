package forge

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// forgeImpl implements the Forge interface.
type forgeImpl struct {
	logger  *zap.Logger
	config  *Config
	catalog *Catalog
	repos   *Repositories

	queue     *EventQueue
	processor *QueueProcessor
	scheduler *cron.Cron

	memoryCache *MemoryLeaderboardCache
	metrics     *Metrics

	systems map[SystemType]System
}

// Init wires the engine from its configuration: repositories, queue,
// processor, systems and maintenance jobs. Nothing runs until Start.
func Init(ctx context.Context, logger *zap.Logger, config *Config) (Forge, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	f := &forgeImpl{
		logger:  logger,
		config:  config,
		systems: make(map[SystemType]System),
	}

	catalogConfig := &CatalogConfig{}
	if config.CatalogFile != "" {
		loaded, err := LoadCatalogFile(config.CatalogFile)
		if err != nil {
			return nil, err
		}
		catalogConfig = loaded
	}
	f.catalog = NewCatalog(catalogConfig)

	if config.DatabaseURL != "" {
		db, err := sqlx.ConnectContext(ctx, "postgres", config.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		if err := EnsureSchema(ctx, db); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		f.repos = NewPostgresRepositories(db)
		logger.Info("using postgres repositories")
	} else {
		f.repos = NewMemoryRepositories()
		logger.Info("using in-memory repositories")
	}

	metrics := NewMetrics()
	f.metrics = metrics

	var cache LeaderboardCache
	if config.RedisURL != "" {
		opts, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		cache = NewRedisLeaderboardCache(client, config.LeaderboardTTL, logger)
		logger.Info("using redis leaderboard cache")
	} else {
		f.memoryCache = NewMemoryLeaderboardCache(config.LeaderboardTTL, config.LeaderboardEntries)
		cache = f.memoryCache
	}

	var scriptHost ScriptHost
	if config.ScriptHostEnabled {
		scriptHost = NewGojaScriptHost(config.ScriptTimeout)
	}
	conditions := NewConditionRegistry(logger, scriptHost)

	f.queue = NewEventQueue(config.QueueCapacity, config.WorkerCount)

	rulesConfig := &RulesConfig{HistoryFetchLimit: config.HistoryFetchLimit}
	if config.RulesFile != "" {
		loaded, err := LoadRulesFile(config.RulesFile)
		if err != nil {
			return nil, err
		}
		rulesConfig.Rules = loaded.Rules
		if loaded.HistoryFetchLimit > 0 {
			rulesConfig.HistoryFetchLimit = loaded.HistoryFetchLimit
		}
	}
	rules := NewMeritRulesSystem(rulesConfig, f.repos.Rules, f.repos.Events, conditions, logger)

	wallets := NewMeritWalletsSystem(&WalletsConfig{}, f.catalog, f.repos.Wallets, f.repos.Transfers, logger)
	rewards := NewMeritRewardsSystem(&RewardsConfig{Catalog: catalogConfig}, f.catalog, f.repos.States, f.repos.History, wallets, logger, metrics)
	events := NewMeritEventsSystem(&EventsConfig{
		QueueCapacity: config.QueueCapacity,
		WorkerCount:   config.WorkerCount,
		RetentionDays: config.RetentionDays,
		EventTypes:    catalogConfig.EventTypes,
	}, f.queue, f.repos.Events, f.catalog, logger, metrics)
	leaderboards := NewMeritLeaderboardsSystem(&LeaderboardsConfig{
		CacheTTLSec:     int(config.LeaderboardTTL.Seconds()),
		CacheMaxEntries: config.LeaderboardEntries,
	}, f.repos.States, f.repos.History, cache, logger, metrics)
	sandbox := NewMeritSandboxSystem(&SandboxConfig{}, rules)

	f.systems[SystemTypeEvents] = events
	f.systems[SystemTypeRules] = rules
	f.systems[SystemTypeRewards] = rewards
	f.systems[SystemTypeWallets] = wallets
	f.systems[SystemTypeLeaderboards] = leaderboards
	f.systems[SystemTypeSandbox] = sandbox

	// Seed rules through the validating path so a bad file fails startup.
	for _, rule := range rulesConfig.Rules {
		if _, err := rules.CreateRule(ctx, rule); err != nil {
			return nil, fmt.Errorf("seed rule %s: %w", rule.Id, err)
		}
	}

	f.processor = NewQueueProcessor(f.queue, f.repos.Events, rules, rewards, logger, metrics, config.GracefulTimeout)

	f.scheduler = cron.New()
	if _, err := f.scheduler.AddFunc("17 3 * * *", func() {
		if _, err := events.PurgeExpired(context.Background()); err != nil {
			logger.Error("event retention purge failed", zap.Error(err))
		}
	}); err != nil {
		return nil, err
	}
	if f.memoryCache != nil {
		if _, err := f.scheduler.AddFunc("* * * * *", f.memoryCache.Sweep); err != nil {
			return nil, err
		}
	}

	return f, nil
}

func (f *forgeImpl) GetEventsSystem() EventsSystem {
	return f.systems[SystemTypeEvents].(EventsSystem)
}

func (f *forgeImpl) GetRulesSystem() RulesSystem {
	return f.systems[SystemTypeRules].(RulesSystem)
}

func (f *forgeImpl) GetRewardsSystem() RewardsSystem {
	return f.systems[SystemTypeRewards].(RewardsSystem)
}

func (f *forgeImpl) GetWalletsSystem() WalletsSystem {
	return f.systems[SystemTypeWallets].(WalletsSystem)
}

func (f *forgeImpl) GetLeaderboardsSystem() LeaderboardsSystem {
	return f.systems[SystemTypeLeaderboards].(LeaderboardsSystem)
}

func (f *forgeImpl) GetSandboxSystem() SandboxSystem {
	return f.systems[SystemTypeSandbox].(SandboxSystem)
}

func (f *forgeImpl) AddPublisher(publisher Publisher) {
	if rewards, ok := f.systems[SystemTypeRewards].(*MeritRewardsSystem); ok {
		rewards.AddPublisher(publisher)
	}
}

// Processor exposes the queue processor for observability surfaces.
func (f *forgeImpl) Processor() *QueueProcessor {
	return f.processor
}

// Metrics exposes the Prometheus collectors.
func (f *forgeImpl) Metrics() *Metrics {
	return f.metrics
}

func (f *forgeImpl) Start() error {
	f.processor.Start(context.Background())
	f.scheduler.Start()
	return nil
}

func (f *forgeImpl) Stop() {
	stopCtx := f.scheduler.Stop()
	<-stopCtx.Done()
	f.processor.Stop()
}
