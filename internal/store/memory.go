package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/avaforum/internal/observability"
)

// DefaultMaxEntries bounds the memory store when no size is configured.
const DefaultMaxEntries = 10000

const (
	tracerName      = "avaforum/store"
	cleanupInterval = time.Minute
)

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-process LRU store with per-entry expiry. A single
// mutex guards the LRU so compound operations are atomic.
type MemoryStore struct {
	logger observability.Logger
	now    func() time.Time

	mu    sync.Mutex
	items *simplelru.LRU[string, memoryEntry]

	loads  singleflight.Group
	stopCh chan struct{}
	once   sync.Once
	closed bool
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock overrides the time source used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// withoutJanitor disables the background cleanup goroutine.
func withoutJanitor() MemoryOption {
	return func(s *MemoryStore) {
		s.stopCh = nil
	}
}

// NewMemoryStore creates an in-memory store holding at most maxEntries keys.
func NewMemoryStore(maxEntries int, logger observability.Logger, opts ...MemoryOption) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	items, err := simplelru.NewLRU[string, memoryEntry](maxEntries, nil)
	if err != nil {
		return nil, err
	}

	s := &MemoryStore{
		logger: logger,
		now:    time.Now,
		items:  items,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.stopCh != nil {
		go s.cleanupLoop()
	}

	logger.Info("memory store initialized",
		observability.Int("maxEntries", maxEntries))

	return s, nil
}

func (s *MemoryStore) span(ctx context.Context, op, key string) trace.Span {
	_, span := otel.Tracer(tracerName).Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("store.backend", BackendMemory),
			attribute.String("store.key", key),
		),
	)
	return span
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (value []byte, err error) {
	span := s.span(ctx, "Get", key)
	defer span.End()
	defer func(start time.Time) { GetMetrics().observe(BackendMemory, "get", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	value, ok := s.getLocked(key)
	span.SetAttributes(attribute.Bool("store.hit", ok))
	if !ok {
		return nil, ErrNotFound
	}
	return value, nil
}

// getLocked returns a live entry and drops an expired one.
// Must be called with lock held.
func (s *MemoryStore) getLocked(key string) ([]byte, bool) {
	entry, ok := s.items.Get(key)
	if !ok {
		return nil, false
	}
	if entry.expired(s.now()) {
		s.items.Remove(key)
		return nil, false
	}
	return entry.value, true
}

// Set implements Store.
func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (err error) {
	span := s.span(ctx, "Set", key)
	defer span.End()
	defer func(start time.Time) { GetMetrics().observe(BackendMemory, "set", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.setLocked(key, value, ttl)
	return nil
}

// setLocked stores a copy of value.
// Must be called with lock held.
func (s *MemoryStore) setLocked(key string, value []byte, ttl time.Duration) {
	entry := memoryEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	if s.items.Add(key, entry) {
		GetMetrics().evictionsTotal.WithLabelValues(BackendMemory).Inc()
	}
	GetMetrics().sizeGauge.WithLabelValues(BackendMemory).Set(float64(s.items.Len()))
}

// Remove implements Store.
func (s *MemoryStore) Remove(ctx context.Context, key string) (err error) {
	span := s.span(ctx, "Remove", key)
	defer span.End()
	defer func(start time.Time) { GetMetrics().observe(BackendMemory, "remove", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.items.Remove(key)
	return nil
}

// GetOrCreate implements Store. Concurrent misses for the same key share a
// single call to create.
func (s *MemoryStore) GetOrCreate(
	ctx context.Context,
	key string,
	ttl time.Duration,
	create CreateFunc,
) (value []byte, err error) {
	span := s.span(ctx, "GetOrCreate", key)
	defer span.End()
	defer func(start time.Time) { GetMetrics().observe(BackendMemory, "get_or_create", start, err) }(time.Now())

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if v, ok := s.getLocked(key); ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	result, err, _ := s.loads.Do(key, func() (any, error) {
		s.mu.Lock()
		if v, ok := s.getLocked(key); ok {
			s.mu.Unlock()
			return v, nil
		}
		s.mu.Unlock()

		created, err := create(ctx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return nil, ErrClosed
		}
		s.setLocked(key, created, ttl)
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Increment implements Store.
func (s *MemoryStore) Increment(ctx context.Context, key string, ttl time.Duration) (n int64, err error) {
	span := s.span(ctx, "Increment", key)
	defer span.End()
	defer func(start time.Time) { GetMetrics().observe(BackendMemory, "increment", start, err) }(time.Now())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	now := s.now()
	entry, ok := s.items.Get(key)
	if !ok || entry.expired(now) {
		entry = memoryEntry{value: []byte("1")}
		if ttl > 0 {
			entry.expiresAt = now.Add(ttl)
		}
		if s.items.Add(key, entry) {
			GetMetrics().evictionsTotal.WithLabelValues(BackendMemory).Inc()
		}
		return 1, nil
	}

	current, err := strconv.ParseInt(string(entry.value), 10, 64)
	if err != nil {
		return 0, err
	}
	current++
	entry.value = strconv.AppendInt(nil, current, 10)
	s.items.Add(key, entry)
	return current, nil
}

// RemovePattern implements PatternRemover.
func (s *MemoryStore) RemovePattern(ctx context.Context, pattern string) (removed int, err error) {
	span := s.span(ctx, "RemovePattern", pattern)
	defer span.End()
	defer func(start time.Time) { GetMetrics().observe(BackendMemory, "remove_pattern", start, err) }(time.Now())

	matcher, err := glob.Compile(pattern)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}
	for _, key := range s.items.Keys() {
		if matcher.Match(key) {
			s.items.Remove(key)
			removed++
		}
	}
	span.SetAttributes(attribute.Int("store.removed", removed))
	return removed, nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items.Len()
}

// Close implements Store. Close is idempotent.
func (s *MemoryStore) Close() error {
	s.once.Do(func() {
		if s.stopCh != nil {
			close(s.stopCh)
		}

		s.mu.Lock()
		s.closed = true
		s.items.Purge()
		s.mu.Unlock()

		s.logger.Info("memory store closed")
	})
	return nil
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup removes expired entries in one pass under the lock.
func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for _, key := range s.items.Keys() {
		if entry, ok := s.items.Peek(key); ok && entry.expired(now) {
			s.items.Remove(key)
			removed++
		}
	}

	GetMetrics().sizeGauge.WithLabelValues(BackendMemory).Set(float64(s.items.Len()))
	if removed > 0 {
		s.logger.Debug("store cleanup completed",
			observability.Int("removed", removed))
	}
}

var (
	_ Store          = (*MemoryStore)(nil)
	_ PatternRemover = (*MemoryStore)(nil)
)
