// Package ratelimit counts requests per key in fixed windows. The counter
// lives in an injected Store so several processes can share it through redis.
package ratelimit

import (
	"context"
	"time"
)

const (
	DefaultLimit  = 5
	DefaultWindow = 10 * time.Minute
)

type Store interface {
	// Hit increments key within window and returns the new count and the time
	// left until the window resets.
	Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

type Limiter struct {
	store  Store
	limit  int64
	window time.Duration
}

func New(store Store, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{store: store, limit: int64(limit), window: window}
}

func (l *Limiter) Window() time.Duration { return l.window }

// Allow records one request for key. On a store error the decision allows
// the request and the error is returned for logging.
func (l *Limiter) Allow(ctx context.Context, key string) (Decision, error) {
	count, resetIn, err := l.store.Hit(ctx, key, l.window)
	if err != nil {
		return Decision{Allowed: true}, err
	}
	if count > l.limit {
		if resetIn <= 0 {
			resetIn = l.window
		}
		return Decision{Allowed: false, RetryAfter: resetIn}, nil
	}
	return Decision{Allowed: true, Remaining: l.limit - count}, nil
}
