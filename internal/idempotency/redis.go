// Package idempotency remembers which webhook events were already handled.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL covers the provider's retry window for a webhook event.
const DefaultTTL = 72 * time.Hour

// RedisGuard claims keys with SET NX so only the first delivery of an
// event is processed.
type RedisGuard struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisGuard(client *redis.Client, prefix string, ttl time.Duration) *RedisGuard {
	if prefix == "" {
		prefix = "webhook:event"
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisGuard{client: client, prefix: prefix, ttl: ttl}
}

func (g *RedisGuard) key(id string) string {
	return fmt.Sprintf("%s:%s", g.prefix, id)
}

// Claim returns true when id had not been claimed yet.
func (g *RedisGuard) Claim(ctx context.Context, id string) (bool, error) {
	ok, err := g.client.SetNX(ctx, g.key(id), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

// Release forgets a claim so a failed event can be retried.
func (g *RedisGuard) Release(ctx context.Context, id string) error {
	if err := g.client.Del(ctx, g.key(id)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}
