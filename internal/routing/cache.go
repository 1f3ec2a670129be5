// Copyright 2025 James Ross
package routing

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/camuslab/dynamic-wirye-drt/internal/config"
	"github.com/redis/go-redis/v9"
)

// Cache stores resolved Routes keyed by a 6-decimal-rounded OD pair, so a
// batch tick that re-evaluates the same OD pair across candidate vehicles
// pays for one oracle round trip instead of many.
type Cache interface {
	Get(key string) (Route, bool)
	Put(key string, r Route)
}

// MemoryCache is a mutex-guarded in-process Cache, sized for the lifetime of
// a single run.
type MemoryCache struct {
	mu sync.RWMutex
	m  map[string]Route
}

// NewMemoryCache builds an empty in-memory Cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{m: make(map[string]Route)}
}

func (c *MemoryCache) Get(key string) (Route, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.m[key]
	return r, ok
}

func (c *MemoryCache) Put(key string, r Route) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = r
}

// RedisCache is a shared Cache backed by Redis, for replay tooling that spans
// several process lifetimes of the same run (e.g. scenario replay, or an
// operator re-launching the batch loop against a partially completed window).
type RedisCache struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache builds a RedisCache from the redis_cache config block.
func NewRedisCache(cfg *config.Config) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:        cfg.RedisCache.Addr,
		DB:          cfg.RedisCache.DB,
		DialTimeout: cfg.RedisCache.DialTimeout,
	})
	return &RedisCache{rdb: rdb, prefix: cfg.RedisCache.KeyPrefix, ttl: cfg.RedisCache.TTL}
}

func (c *RedisCache) Get(key string) (Route, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return Route{}, false
	}
	var r Route
	if err := json.Unmarshal(raw, &r); err != nil {
		return Route{}, false
	}
	return r, true
}

func (c *RedisCache) Put(key string, r Route) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := json.Marshal(r)
	if err != nil {
		return
	}
	c.rdb.Set(ctx, c.prefix+key, raw, c.ttl)
}

// Close releases the underlying Redis connection pool.
func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
