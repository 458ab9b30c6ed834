// Package memory implements kv.Store with in-process maps. It is the
// default backend for tests and local development; nothing survives a
// restart.
package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	flowops "github.com/Aparnap2/internal-flow-ops"
	"github.com/Aparnap2/internal-flow-ops/kv"
)

// Compile-time interface check.
var _ kv.Store = (*Store)(nil)

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Store implements kv.Store with mutex-guarded maps.
type Store struct {
	mu     sync.Mutex
	data   map[string]entry
	queues map[string][][]byte
	closed bool

	// now is swappable so tests can advance the clock.
	now func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		data:   make(map[string]entry),
		queues: make(map[string][][]byte),
		now:    time.Now,
	}
}

// SetClock replaces the store's clock. Test hook.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Store) live(key string) ([]byte, bool) {
	e, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.data, key)
		return nil, false
	}
	return e.value, true
}

// Get returns the value stored at key.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, flowops.ErrStoreClosed
	}

	val, ok := s.live(key)
	if !ok {
		return nil, flowops.ErrNotFound
	}

	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// Set stores value at key with the given ttl.
func (s *Store) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return flowops.ErrStoreClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	var exp time.Time
	if ttl > 0 {
		exp = s.now().Add(ttl)
	}
	s.data[key] = entry{value: stored, expiresAt: exp}
	return nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return flowops.ErrStoreClosed
	}

	delete(s.data, key)
	return nil
}

// Incr atomically increments the integer at key, creating it at 1.
func (s *Store) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, flowops.ErrStoreClosed
	}

	var n int64
	if val, ok := s.live(key); ok {
		parsed, err := strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return 0, flowops.ErrNotFound
		}
		n = parsed
	}
	n++

	e := s.data[key]
	e.value = []byte(strconv.FormatInt(n, 10))
	s.data[key] = e
	return n, nil
}

// Expire sets the ttl on an existing key.
func (s *Store) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return flowops.ErrStoreClosed
	}

	if _, ok := s.live(key); !ok {
		return flowops.ErrNotFound
	}
	e := s.data[key]
	e.expiresAt = s.now().Add(ttl)
	s.data[key] = e
	return nil
}

// Push appends value to the tail of the named queue.
func (s *Store) Push(_ context.Context, queue string, value []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, flowops.ErrStoreClosed
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	s.queues[queue] = append(s.queues[queue], stored)
	return int64(len(s.queues[queue])), nil
}

// Pop removes and returns the head of the named queue.
func (s *Store) Pop(_ context.Context, queue string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, flowops.ErrStoreClosed
	}

	q := s.queues[queue]
	if len(q) == 0 {
		return nil, flowops.ErrQueueEmpty
	}
	head := q[0]
	s.queues[queue] = q[1:]
	return head, nil
}

// QueueLen returns the number of entries in the named queue.
func (s *Store) QueueLen(_ context.Context, queue string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, flowops.ErrStoreClosed
	}

	return int64(len(s.queues[queue])), nil
}

// Keys returns all live keys beginning with prefix.
func (s *Store) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, flowops.ErrStoreClosed
	}

	var keys []string
	for k := range s.data {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if _, ok := s.live(k); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return flowops.ErrStoreClosed
	}
	return nil
}

// Close marks the store closed. Subsequent calls fail.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
