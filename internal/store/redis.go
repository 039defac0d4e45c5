package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

const scanBatchSize = 100

// incrementWithExpiryScript increments KEYS[1] and sets its expiry in
// milliseconds (ARGV[1]) only when the counter was just created.
var incrementWithExpiryScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 and tonumber(ARGV[1]) > 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisConfig holds configuration for the redis store.
type RedisConfig struct {
	URL       string
	KeyPrefix string

	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ConnectionRetries is the number of additional connection attempts
	// made at startup.
	ConnectionRetries int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
}

// DefaultRedisConfig returns a RedisConfig with default values.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		URL:               "redis://localhost:6379/0",
		KeyPrefix:         "avaforum:",
		PoolSize:          10,
		DialTimeout:       5 * time.Second,
		ReadTimeout:       3 * time.Second,
		WriteTimeout:      3 * time.Second,
		ConnectionRetries: 5,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
	}
}

// RedisStore implements Store on redis so several processes share cache
// entries and rate counters.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger observability.Logger
	loads  singleflight.Group

	mu     sync.Mutex
	closed bool
}

// NewRedisStore connects to redis, retrying with decorrelated jitter backoff
// until the server answers or the retries are exhausted.
func NewRedisStore(ctx context.Context, cfg RedisConfig, logger observability.Logger) (*RedisStore, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	cfg = normalizeRedisConfig(cfg)

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)
	if err := connectWithRetry(ctx, client, cfg, logger); err != nil {
		_ = client.Close()
		return nil, util.NewStorageError(BackendRedis, "connect", err)
	}

	logger.Info("redis store initialized",
		observability.String("address", opts.Addr),
		observability.Int("db", opts.DB),
		observability.String("keyPrefix", cfg.KeyPrefix))

	return NewRedisStoreFromClient(client, cfg.KeyPrefix, logger), nil
}

// NewRedisStoreFromClient wraps an existing client. The store takes
// ownership of the client and closes it on Close.
func NewRedisStoreFromClient(client *redis.Client, prefix string, logger observability.Logger) *RedisStore {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &RedisStore{
		client: client,
		prefix: prefix,
		logger: logger,
	}
}

func normalizeRedisConfig(cfg RedisConfig) RedisConfig {
	def := DefaultRedisConfig()
	if cfg.URL == "" {
		cfg.URL = def.URL
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = def.PoolSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ConnectionRetries < 0 {
		cfg.ConnectionRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = def.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = def.MaxBackoff
	}
	return cfg
}

func connectWithRetry(ctx context.Context, client *redis.Client, cfg RedisConfig, logger observability.Logger) error {
	backoff := newDecorrelatedJitterBackoff(cfg.InitialBackoff, cfg.MaxBackoff)

	var lastErr error
	for attempt := 0; attempt <= cfg.ConnectionRetries; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
		lastErr = client.Ping(pingCtx).Err()
		cancel()

		if lastErr == nil {
			if attempt > 0 {
				logger.Info("redis connection established after retry",
					observability.Int("attempt", attempt+1))
			}
			return nil
		}
		if attempt == cfg.ConnectionRetries {
			break
		}

		wait := backoff.next(attempt)
		logger.Warn("redis connection failed, retrying",
			observability.Int("attempt", attempt+1),
			observability.Int("maxRetries", cfg.ConnectionRetries),
			observability.Duration("backoff", wait),
			observability.Error(lastErr))
		GetMetrics().connectionRetries.Inc()

		select {
		case <-ctx.Done():
			return fmt.Errorf("connection aborted during backoff: %w", ctx.Err())
		case <-time.After(wait):
		}
	}

	return fmt.Errorf("failed to connect after %d attempts: %w", cfg.ConnectionRetries+1, lastErr)
}

// decorrelatedJitterBackoff computes sleep = min(cap, random_between(base, sleep*3)).
type decorrelatedJitterBackoff struct {
	initial time.Duration
	max     time.Duration
	current time.Duration
}

func newDecorrelatedJitterBackoff(initial, maxDuration time.Duration) *decorrelatedJitterBackoff {
	return &decorrelatedJitterBackoff{initial: initial, max: maxDuration, current: initial}
}

func (b *decorrelatedJitterBackoff) next(attempt int) time.Duration {
	if attempt == 0 {
		b.current = b.initial
		return b.current
	}

	lo := float64(b.initial)
	hi := float64(b.current) * 3
	//nolint:gosec // jitter does not need a cryptographic source
	backoff := lo + rand.Float64()*(hi-lo)
	if backoff > float64(b.max) {
		backoff = float64(b.max)
	}

	b.current = time.Duration(backoff)
	return b.current
}

func (s *RedisStore) prefixKey(key string) string {
	return s.prefix + key
}

func (s *RedisStore) span(ctx context.Context, op, key string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "store."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("store.backend", BackendRedis),
			attribute.String("store.key", key),
		),
	)
}

// wrapErr converts a client error into a StorageError and records it on span.
func wrapErr(span trace.Span, op string, err error) error {
	if err == nil {
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, op+" failed")
	return util.NewStorageError(BackendRedis, op, err)
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) (value []byte, err error) {
	ctx, span := s.span(ctx, "Get", key)
	defer span.End()
	defer func(start time.Time) { GetMetrics().observe(BackendRedis, "get", start, err) }(time.Now())

	value, err = s.client.Get(ctx, s.prefixKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		span.SetAttributes(attribute.Bool("store.hit", false))
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, wrapErr(span, "get", err)
	}
	span.SetAttributes(attribute.Bool("store.hit", true))
	return value, nil
}

// Set implements Store.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) (err error) {
	ctx, span := s.span(ctx, "Set", key)
	defer span.End()
	defer func(start time.Time) { GetMetrics().observe(BackendRedis, "set", start, err) }(time.Now())

	if ttl < 0 {
		ttl = 0
	}
	return wrapErr(span, "set", s.client.Set(ctx, s.prefixKey(key), value, ttl).Err())
}

// Remove implements Store.
func (s *RedisStore) Remove(ctx context.Context, key string) (err error) {
	ctx, span := s.span(ctx, "Remove", key)
	defer span.End()
	defer func(start time.Time) { GetMetrics().observe(BackendRedis, "remove", start, err) }(time.Now())

	return wrapErr(span, "remove", s.client.Del(ctx, s.prefixKey(key)).Err())
}

// GetOrCreate implements Store. SETNX settles races between processes;
// the losing writer returns the winner's value.
func (s *RedisStore) GetOrCreate(
	ctx context.Context,
	key string,
	ttl time.Duration,
	create CreateFunc,
) (value []byte, err error) {
	ctx, span := s.span(ctx, "GetOrCreate", key)
	defer span.End()
	defer func(start time.Time) { GetMetrics().observe(BackendRedis, "get_or_create", start, err) }(time.Now())

	prefixed := s.prefixKey(key)

	value, err = s.client.Get(ctx, prefixed).Bytes()
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, wrapErr(span, "get", err)
	}

	result, err, _ := s.loads.Do(key, func() (any, error) {
		created, err := create(ctx)
		if err != nil {
			return nil, err
		}
		if ttl < 0 {
			ttl = 0
		}
		stored, err := s.client.SetNX(ctx, prefixed, created, ttl).Result()
		if err != nil {
			return nil, wrapErr(span, "setnx", err)
		}
		if stored {
			return created, nil
		}
		existing, err := s.client.Get(ctx, prefixed).Bytes()
		if errors.Is(err, redis.Nil) {
			return created, nil
		}
		if err != nil {
			return nil, wrapErr(span, "get", err)
		}
		return existing, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil
}

// Increment implements Store using a Lua script so the first increment and
// its expiry are applied together.
func (s *RedisStore) Increment(ctx context.Context, key string, ttl time.Duration) (n int64, err error) {
	ctx, span := s.span(ctx, "Increment", key)
	defer span.End()
	defer func(start time.Time) { GetMetrics().observe(BackendRedis, "increment", start, err) }(time.Now())

	result, err := incrementWithExpiryScript.Run(ctx, s.client, []string{s.prefixKey(key)}, ttl.Milliseconds()).Result()
	if err != nil {
		return 0, wrapErr(span, "increment", err)
	}

	switch v := result.(type) {
	case int64:
		return v, nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, wrapErr(span, "increment", err)
	default:
		return 0, wrapErr(span, "increment", fmt.Errorf("unexpected script result type %T", result))
	}
}

// RemovePattern implements PatternRemover with SCAN + DEL in batches.
func (s *RedisStore) RemovePattern(ctx context.Context, pattern string) (removed int, err error) {
	ctx, span := s.span(ctx, "RemovePattern", pattern)
	defer span.End()
	defer func(start time.Time) { GetMetrics().observe(BackendRedis, "remove_pattern", start, err) }(time.Now())

	iter := s.client.Scan(ctx, 0, s.prefixKey(pattern), scanBatchSize).Iterator()
	batch := make([]string, 0, scanBatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := s.client.Del(ctx, batch...).Result()
		if err != nil {
			return err
		}
		removed += int(n)
		batch = batch[:0]
		return nil
	}

	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == scanBatchSize {
			if err := flush(); err != nil {
				return removed, wrapErr(span, "remove_pattern", err)
			}
		}
	}
	if err := iter.Err(); err != nil {
		return removed, wrapErr(span, "scan", err)
	}
	if err := flush(); err != nil {
		return removed, wrapErr(span, "remove_pattern", err)
	}

	span.SetAttributes(attribute.Int("store.removed", removed))
	return removed, nil
}

// Ping implements Pinger.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return util.NewStorageError(BackendRedis, "ping", err)
	}
	return nil
}

// Client returns the underlying redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close implements Store. Close is idempotent.
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("redis store closed")
	return s.client.Close()
}

var (
	_ Store          = (*RedisStore)(nil)
	_ PatternRemover = (*RedisStore)(nil)
	_ Pinger         = (*RedisStore)(nil)
)
