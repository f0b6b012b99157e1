package database

import (
	"context"
	"time"
)

// BlacklistToken marks a JWT as revoked until it would have expired anyway.
// Used on logout so a stolen token cannot outlive the session.
func BlacklistToken(token string, ttl time.Duration) error {
	if Redis == nil || ttl <= 0 {
		return nil
	}
	ctx := context.Background()
	return Redis.Set(ctx, CacheKeyTokenBlacklist+token, "1", ttl).Err()
}

// IsTokenBlacklisted reports whether a token was revoked via logout.
// Redis errors fail open: an unreachable cache must not lock everyone out.
func IsTokenBlacklisted(token string) bool {
	if Redis == nil {
		return false
	}
	ctx := context.Background()
	n, err := Redis.Exists(ctx, CacheKeyTokenBlacklist+token).Result()
	if err != nil {
		return false
	}
	return n > 0
}
