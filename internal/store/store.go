// Package store provides the expiring key/value store shared by the
// pipeline caching stage, the HTTP response cache, and the rate limiter.
package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/vyrodovalexey/avaforum/internal/observability"
)

// Backend names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("store: key not found")

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// CreateFunc produces the value for a missing key in GetOrCreate.
type CreateFunc func(ctx context.Context) ([]byte, error)

// Store is an expiring key/value store. Implementations must be safe for
// concurrent use; GetOrCreate and Increment are atomic per key.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for ttl. A non-positive ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// GetOrCreate returns the stored value or, when missing, stores and
	// returns the result of create. Concurrent callers for the same key
	// observe a single value.
	GetOrCreate(ctx context.Context, key string, ttl time.Duration, create CreateFunc) ([]byte, error)

	// Increment adds one to the counter under key and returns the new value.
	// The ttl applies only when the counter is created, so a counter expires
	// a fixed time after its first increment.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Close releases resources held by the store.
	Close() error
}

// PatternRemover is implemented by stores that can remove keys matching a
// glob pattern ("posts:*").
type PatternRemover interface {
	RemovePattern(ctx context.Context, pattern string) (int, error)
}

// Pinger is implemented by stores with a reachable backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Config selects and configures a store backend.
type Config struct {
	Backend    string
	MaxEntries int
	Redis      RedisConfig
}

// New creates the store selected by cfg.Backend.
func New(ctx context.Context, cfg Config, logger observability.Logger) (Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(cfg.MaxEntries, logger)
	case BackendRedis:
		return NewRedisStore(ctx, cfg.Redis, logger)
	default:
		return nil, fmt.Errorf("unsupported store backend: %q", cfg.Backend)
	}
}

// GetCounter reads a counter written by Increment. A missing counter reads
// as zero.
func GetCounter(ctx context.Context, s Store, key string) (int64, error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("counter %q holds a non-numeric value: %w", key, err)
	}
	return n, nil
}
