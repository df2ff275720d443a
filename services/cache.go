package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CacheKey identifies one tile count for one scope in one time bucket.
type CacheKey struct {
	Tile       Tile
	EmployeeID uint
	UserID     string
	Bucket     int64
}

func (k CacheKey) String() string {
	return fmt.Sprintf("dashboard:%s:%d:%s:%d", k.Tile, k.EmployeeID, k.UserID, k.Bucket)
}

// CountCache memoizes dashboard counts. A miss is never an error.
type CountCache interface {
	Get(ctx context.Context, key CacheKey) (int64, bool)
	Set(ctx context.Context, key CacheKey, count int64)
}

// MemoryCache keeps counts in process. Buckets two or more intervals old are pruned on write.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[CacheKey]int64
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[CacheKey]int64)}
}

func (c *MemoryCache) Get(_ context.Context, key CacheKey) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.entries[key]
	return n, ok
}

func (c *MemoryCache) Set(_ context.Context, key CacheKey, count int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if k.Bucket <= key.Bucket-2 {
			delete(c.entries, k)
		}
	}
	c.entries[key] = count
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache shares counts across API instances. Entries expire after two intervals.
type RedisCache struct {
	c   *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func NewRedisCache(c *redis.Client, ttl time.Duration, log *zap.Logger) *RedisCache {
	return &RedisCache{c: c, ttl: ttl, log: log}
}

func (r *RedisCache) Get(ctx context.Context, key CacheKey) (int64, bool) {
	n, err := r.c.Get(ctx, key.String()).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("dashboard cache read failed", zap.String("key", key.String()), zap.Error(err))
		}
		return 0, false
	}
	return n, true
}

func (r *RedisCache) Set(ctx context.Context, key CacheKey, count int64) {
	if err := r.c.Set(ctx, key.String(), count, 2*r.ttl).Err(); err != nil {
		r.log.Warn("dashboard cache write failed", zap.String("key", key.String()), zap.Error(err))
	}
}
