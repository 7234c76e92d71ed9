// Copyright 2026 Meridian Systems Ltd.
// SPDX-License-Identifier: AGPL-3.0

package resolver

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridianhq/tenancy-service/internal/logging"
	"github.com/meridianhq/tenancy-service/internal/types"
)

// CacheInterface caches resolution results keyed by the strategy's
// request signal.
type CacheInterface interface {
	Get(ctx context.Context, key string) (*types.Tenant, bool)
	Set(ctx context.Context, key string, tenant *types.Tenant)
	Invalidate(ctx context.Context, key string)
	Flush(ctx context.Context)
}

// MemoryCache is a process-local TTL cache, the default when no Redis
// is configured. Entries are evicted lazily on read.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
}

type memoryEntry struct {
	tenant    *types.Tenant
	expiresAt time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), ttl: ttl}
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*types.Tenant, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}

	return entry.tenant, true
}

func (c *MemoryCache) Set(ctx context.Context, key string, tenant *types.Tenant) {
	c.mu.Lock()
	c.entries[key] = memoryEntry{tenant: tenant, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *MemoryCache) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *MemoryCache) Flush(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]memoryEntry)
	c.mu.Unlock()
}

// RedisCache shares resolution results across instances. Cache errors
// are logged and treated as misses; resolution still works without
// Redis, just slower.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger logging.LoggerInterface
}

func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration, logger logging.LoggerInterface) *RedisCache {
	if prefix == "" {
		prefix = "tenancy:resolver:"
	}
	return &RedisCache{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*types.Tenant, bool) {
	payload, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Errorf("resolver cache get %q failed: %v", key, err)
		}
		return nil, false
	}

	var tenant types.Tenant
	if err := json.Unmarshal(payload, &tenant); err != nil {
		c.logger.Errorf("resolver cache entry %q is corrupt: %v", key, err)
		return nil, false
	}

	return &tenant, true
}

func (c *RedisCache) Set(ctx context.Context, key string, tenant *types.Tenant) {
	payload, err := json.Marshal(tenant)
	if err != nil {
		c.logger.Errorf("failed to marshal tenant for cache: %v", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, payload, c.ttl).Err(); err != nil {
		c.logger.Errorf("resolver cache set %q failed: %v", key, err)
	}
}

func (c *RedisCache) Invalidate(ctx context.Context, key string) {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		c.logger.Errorf("resolver cache invalidate %q failed: %v", key, err)
	}
}

func (c *RedisCache) Flush(ctx context.Context) {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			c.logger.Errorf("resolver cache flush of %q failed: %v", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		c.logger.Errorf("resolver cache flush scan failed: %v", err)
	}
}
