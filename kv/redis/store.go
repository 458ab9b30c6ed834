// Package redis implements kv.Store backed by Redis. Values live in plain
// string keys, queues in Lists, and counters in INCR keys, matching the
// expiry-driven retention model: nothing is ever deleted explicitly except
// queue pops.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	flowops "github.com/Aparnap2/internal-flow-ops"
	"github.com/Aparnap2/internal-flow-ops/kv"
)

// Compile-time interface check.
var _ kv.Store = (*Store)(nil)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store implements kv.Store backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default()}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Get returns the value stored at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, flowops.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("flowops/redis: get %q: %w", key, err)
	}
	return val, nil
}

// Set stores value at key with the given ttl. A zero ttl means no expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("flowops/redis: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("flowops/redis: delete %q: %w", key, err)
	}
	return nil
}

// Incr atomically increments the integer at key.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("flowops/redis: incr %q: %w", key, err)
	}
	return n, nil
}

// Expire sets the ttl on an existing key.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("flowops/redis: expire %q: %w", key, err)
	}
	return nil
}

// Push appends value to the tail of the named queue (LPUSH; Pop reads the
// opposite end, so the list behaves FIFO).
func (s *Store) Push(ctx context.Context, queue string, value []byte) (int64, error) {
	n, err := s.client.LPush(ctx, queue, value).Result()
	if err != nil {
		return 0, fmt.Errorf("flowops/redis: push %q: %w", queue, err)
	}
	return n, nil
}

// Pop removes and returns the head of the named queue (RPOP).
func (s *Store) Pop(ctx context.Context, queue string) ([]byte, error) {
	val, err := s.client.RPop(ctx, queue).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, flowops.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("flowops/redis: pop %q: %w", queue, err)
	}
	return val, nil
}

// QueueLen returns the number of entries in the named queue.
func (s *Store) QueueLen(ctx context.Context, queue string) (int64, error) {
	n, err := s.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("flowops/redis: llen %q: %w", queue, err)
	}
	return n, nil
}

// Keys returns all keys beginning with prefix, using SCAN so large keyspaces
// never block the server.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var (
		keys   []string
		cursor uint64
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("flowops/redis: scan %q: %w", prefix, err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op: the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
