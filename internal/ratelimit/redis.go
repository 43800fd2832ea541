package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps fixed-window counters in redis: INCR, then EXPIRE on the
// first hit of a window.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	k := s.prefix + key
	count, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("ratelimit incr: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, k, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("ratelimit expire: %w", err)
		}
		return count, window, nil
	}

	ttl, err := s.client.TTL(ctx, k).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("ratelimit ttl: %w", err)
	}
	if ttl < 0 {
		// Key lost its expiry (e.g. EXPIRE failed earlier); restore it.
		if err := s.client.Expire(ctx, k, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("ratelimit expire: %w", err)
		}
		ttl = window
	}
	return count, ttl, nil
}
