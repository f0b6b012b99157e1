package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// Cache key prefixes
	CacheKeyDashboardStats = "piishield:stats:"
	CacheKeyTokenBlacklist = "piishield:blacklist:"

	// Cache TTLs
	CacheTTLDashboardStats = 1 * time.Minute
)

// CacheGet retrieves a value from Redis cache and unmarshals it into dest
func CacheGet(key string, dest interface{}) error {
	if Redis == nil {
		return redis.Nil
	}
	ctx := context.Background()
	data, err := Redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

// CacheSet stores a value in Redis cache with TTL
func CacheSet(key string, value interface{}, ttl time.Duration) error {
	if Redis == nil {
		return nil
	}
	ctx := context.Background()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return Redis.Set(ctx, key, data, ttl).Err()
}

// CacheDelete removes a key from Redis cache
func CacheDelete(keys ...string) error {
	if Redis == nil || len(keys) == 0 {
		return nil
	}
	ctx := context.Background()
	return Redis.Del(ctx, keys...).Err()
}

// CacheDeletePattern deletes all keys matching a pattern (use with caution)
func CacheDeletePattern(pattern string) error {
	ctx := context.Background()
	iter := Redis.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) > 0 {
		return Redis.Del(ctx, keys...).Err()
	}
	return nil
}

// InvalidateUserStatsCache clears the cached dashboard statistics for
// one user. Called after uploads, deletes, and every dispatch that
// reaches a terminal state.
func InvalidateUserStatsCache(userID uint) {
	CacheDelete(fmt.Sprintf("%s%d", CacheKeyDashboardStats, userID))
}

// InvalidateStatsCache clears cached dashboard statistics for all
// users. Used by sweeps that touch sessions across users.
func InvalidateStatsCache() {
	if Redis == nil {
		return
	}
	CacheDeletePattern(CacheKeyDashboardStats + "*")
}
