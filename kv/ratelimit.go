package kv

import (
	"context"
	"fmt"
	"time"
)

const rateLimitPrefix = "flowops:ratelimit:"

// Allow reports whether the caller identified by key is within limit
// requests per window. Fixed-window counting on Incr+Expire, so the limit
// holds across every replica sharing the store.
func Allow(ctx context.Context, s Store, key string, limit int64, window time.Duration) (bool, error) {
	if limit <= 0 {
		return true, nil
	}

	k := rateLimitPrefix + key
	n, err := s.Incr(ctx, k)
	if err != nil {
		return false, fmt.Errorf("kv: rate limit incr %q: %w", key, err)
	}
	if n == 1 {
		if err := s.Expire(ctx, k, window); err != nil {
			return false, fmt.Errorf("kv: rate limit expire %q: %w", key, err)
		}
	}

	return n <= limit, nil
}
