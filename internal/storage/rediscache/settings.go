// Package rediscache puts a redis read-through cache in front of slow stores.
package rediscache

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/atelier/internal/domain/settings"
)

const keyPrefix = "atelier:settings:"

// Client is the subset of redis.Cmdable used by the cache.
type Client interface {
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// SettingsCache implements settings.Store, serving values from redis and
// falling back to the next store on a miss. Redis failures degrade to the
// next store and are only logged.
type SettingsCache struct {
	client Client
	next   settings.Store
	ttl    time.Duration
}

var _ settings.Store = (*SettingsCache)(nil)

// NewSettingsCache creates a cache in front of next. Values expire after ttl.
func NewSettingsCache(client Client, next settings.Store, ttl time.Duration) *SettingsCache {
	return &SettingsCache{client: client, next: next, ttl: ttl}
}

// Get implements settings.Store.
func (c *SettingsCache) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	lg := zctx.From(ctx)

	values := make(map[string]string, len(keys))
	var missing []string

	cacheKeys := make([]string, len(keys))
	for i, k := range keys {
		cacheKeys[i] = keyPrefix + k
	}
	cached, err := c.client.MGet(ctx, cacheKeys...).Result()
	if err != nil {
		lg.Warn("Settings cache read failed", zap.Error(err))
		missing = keys
	} else {
		for i, v := range cached {
			if s, ok := v.(string); ok {
				values[keys[i]] = s
				continue
			}
			missing = append(missing, keys[i])
		}
	}
	if len(missing) == 0 {
		return values, nil
	}

	fresh, err := c.next.Get(ctx, missing...)
	if err != nil {
		return nil, err
	}
	for k, v := range fresh {
		values[k] = v
		if err := c.client.Set(ctx, keyPrefix+k, v, c.ttl).Err(); err != nil {
			lg.Warn("Settings cache write failed", zap.String("key", k), zap.Error(err))
		}
	}
	return values, nil
}
