package forge

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every engine setting. Everything is optional with defaults
// that suit a single-node development setup.
type Config struct {
	// Server
	Addr            string
	GracefulTimeout time.Duration

	// Storage; empty DatabaseURL selects the in-memory repositories.
	DatabaseURL string

	// Leaderboard cache; empty RedisURL selects the in-memory LRU.
	RedisURL           string
	LeaderboardTTL     time.Duration
	LeaderboardEntries int

	// Pipeline
	QueueCapacity     int
	WorkerCount       int
	RetentionDays     int
	HistoryFetchLimit int

	// Script host for customScript conditions.
	ScriptHostEnabled bool
	ScriptTimeout     time.Duration

	// Config files
	RulesFile   string
	CatalogFile string

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadConfig reads configuration from environment variables and an optional
// .env file.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:               getEnv("ADDR", ":8090"),
		GracefulTimeout:    time.Duration(getEnvInt("GRACEFUL_TIMEOUT_SEC", 5)) * time.Second,
		DatabaseURL:        getEnv("DATABASE_URL", ""),
		RedisURL:           getEnv("REDIS_URL", ""),
		LeaderboardTTL:     time.Duration(getEnvInt("LEADERBOARD_CACHE_TTL_SEC", 300)) * time.Second,
		LeaderboardEntries: getEnvInt("LEADERBOARD_CACHE_MAX_ENTRIES", 256),
		QueueCapacity:      getEnvInt("QUEUE_CAPACITY", 10000),
		WorkerCount:        getEnvInt("WORKER_COUNT", 1),
		RetentionDays:      getEnvInt("EVENT_RETENTION_DAYS", 30),
		HistoryFetchLimit:  getEnvInt("HISTORY_FETCH_LIMIT", 1000),
		ScriptHostEnabled:  getEnvBool("SCRIPT_HOST_ENABLED", true),
		ScriptTimeout:      time.Duration(getEnvInt("SCRIPT_TIMEOUT_MS", 100)) * time.Millisecond,
		RulesFile:          getEnv("RULES_FILE", ""),
		CatalogFile:        getEnv("CATALOG_FILE", ""),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "console"),
	}

	if cfg.QueueCapacity < 1 {
		return nil, fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", cfg.QueueCapacity)
	}
	if cfg.WorkerCount < 1 {
		return nil, fmt.Errorf("WORKER_COUNT must be positive, got %d", cfg.WorkerCount)
	}
	if cfg.RetentionDays < 1 {
		return nil, fmt.Errorf("EVENT_RETENTION_DAYS must be positive, got %d", cfg.RetentionDays)
	}
	return cfg, nil
}

// LoadRulesFile parses a rules seed file.
func LoadRulesFile(path string) (*RulesConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	config := &RulesConfig{}
	if err := json.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	return config, nil
}

// LoadCatalogFile parses a catalog descriptor file.
func LoadCatalogFile(path string) (*CatalogConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	config := &CatalogConfig{}
	if err := json.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	return config, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
