// Package counter provides the shared counters behind experiment quotas.
//
// Counters are shared between every process evaluating the same graph, so the
// production implementation lives in Redis where INCR is a single atomic round
// trip. Memory is an in-process stand-in for tests and single-node runs.
package counter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces counter keys: "arbiter:experiment:<name>:count".
const DefaultKeyPrefix = "arbiter:experiment"

// Store is a named, monotonically increasing counter.
type Store interface {
	// Get returns the current value, zero when the counter was never incremented.
	Get(ctx context.Context, name string) (int64, error)

	// Increment atomically adds one and returns the new value.
	Increment(ctx context.Context, name string) (int64, error)
}

// Compile-time checks.
var (
	_ Store = (*Redis)(nil)
	_ Store = (*Memory)(nil)
)

// Redis keeps counters as plain Redis integers.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis returns a Redis-backed counter store. An empty prefix selects DefaultKeyPrefix.
func NewRedis(client redis.UniversalClient, prefix string) *Redis {
	if client == nil {
		panic("counter: redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Redis{client: client, prefix: prefix}
}

// Key returns the Redis key of the named counter.
func (r *Redis) Key(name string) string {
	return fmt.Sprintf("%s:%s:count", r.prefix, name)
}

func (r *Redis) Get(ctx context.Context, name string) (int64, error) {
	n, err := r.client.Get(ctx, r.Key(name)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %q: %w", name, err)
	}
	return n, nil
}

func (r *Redis) Increment(ctx context.Context, name string) (int64, error) {
	n, err := r.client.Incr(ctx, r.Key(name)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment counter %q: %w", name, err)
	}
	return n, nil
}

// Memory keeps counters in process memory.
type Memory struct {
	mu     sync.Mutex
	values map[string]int64
}

// NewMemory returns an empty in-memory counter store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]int64)}
}

func (m *Memory) Get(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[name], nil
}

func (m *Memory) Increment(_ context.Context, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name]++
	return m.values[name], nil
}

// Set overwrites a counter. Used to seed tests.
func (m *Memory) Set(name string, value int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[name] = value
}
