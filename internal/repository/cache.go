package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Cache TTL constants
const (
	CatalogListCacheTTL = 5 * time.Minute

	brandListCacheKey    = "lambari:catalog:brands"
	categoryListCacheKey = "lambari:catalog:categories"
)

// listCache keeps whole-table snapshots of small lookup tables in Redis.
// A nil client disables caching.
type listCache struct {
	redis *redis.Client
	key   string
}

func (c listCache) get(ctx context.Context, dest interface{}) bool {
	if c.redis == nil {
		return false
	}
	val, err := c.redis.Get(ctx, c.key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		logrus.WithError(err).WithField("key", c.key).Warn("Discarding unreadable cache entry")
		return false
	}
	return true
}

func (c listCache) set(ctx context.Context, value interface{}) {
	if c.redis == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.key, data, CatalogListCacheTTL).Err(); err != nil {
		logrus.WithError(err).WithField("key", c.key).Debug("Failed to write cache entry")
	}
}

func (c listCache) invalidate(ctx context.Context) {
	if c.redis == nil {
		return
	}
	c.redis.Del(ctx, c.key)
}
