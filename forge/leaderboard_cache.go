package forge

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// MemoryLeaderboardCache is a bounded LRU with per-entry TTL.
type MemoryLeaderboardCache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*list.Element
	order      *list.List
}

type cacheEntry struct {
	key       string
	entries   []*LeaderboardEntry
	expiresAt time.Time
}

// NewMemoryLeaderboardCache creates an in-memory cache. Zero ttl or
// maxEntries fall back to 5 minutes and 256 entries.
func NewMemoryLeaderboardCache(ttl time.Duration, maxEntries int) *MemoryLeaderboardCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &MemoryLeaderboardCache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*list.Element),
		order:      list.New(),
	}
}

func (c *MemoryLeaderboardCache) Get(ctx context.Context, key string) ([]*LeaderboardEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(elem)
	return entry.entries, true
}

func (c *MemoryLeaderboardCache) Set(ctx context.Context, key string, entries []*LeaderboardEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).entries = entries
		elem.Value.(*cacheEntry).expiresAt = time.Now().Add(c.ttl)
		c.order.MoveToFront(elem)
		return
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, entries: entries, expiresAt: time.Now().Add(c.ttl)})
	for len(c.entries) > c.maxEntries {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cacheEntry).key)
	}
}

func (c *MemoryLeaderboardCache) Delete(ctx context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
}

func (c *MemoryLeaderboardCache) Clear(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Sweep drops expired entries. Wired to the maintenance scheduler.
func (c *MemoryLeaderboardCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for key, elem := range c.entries {
		if now.After(elem.Value.(*cacheEntry).expiresAt) {
			c.order.Remove(elem)
			delete(c.entries, key)
		}
	}
}

const redisLeaderboardPrefix = "forge:leaderboard:"

// RedisLeaderboardCache stores result sets as JSON values with a native TTL.
// Failures degrade to cache misses, the cache is best effort.
type RedisLeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisLeaderboardCache creates a Redis-backed cache.
func NewRedisLeaderboardCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisLeaderboardCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLeaderboardCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisLeaderboardCache) Get(ctx context.Context, key string) ([]*LeaderboardEntry, bool) {
	raw, err := c.client.Get(ctx, redisLeaderboardPrefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("leaderboard cache read failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var entries []*LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		c.logger.Warn("leaderboard cache entry corrupt", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return entries, true
}

func (c *RedisLeaderboardCache) Set(ctx context.Context, key string, entries []*LeaderboardEntry) {
	raw, err := json.Marshal(entries)
	if err != nil {
		c.logger.Warn("leaderboard cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, redisLeaderboardPrefix+key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("leaderboard cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisLeaderboardCache) Delete(ctx context.Context, key string) {
	if err := c.client.Del(ctx, redisLeaderboardPrefix+key).Err(); err != nil {
		c.logger.Warn("leaderboard cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisLeaderboardCache) Clear(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, redisLeaderboardPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Warn("leaderboard cache delete failed", zap.String("key", iter.Val()), zap.Error(err))
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Warn("leaderboard cache scan failed", zap.Error(err))
	}
}
