package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/store"
)

// cachedEntry is the stored envelope around an encoded response.
type cachedEntry struct {
	Value     json.RawMessage `json:"value"`
	CreatedAt time.Time       `json:"createdAt"`
	ExpiresAt time.Time       `json:"expiresAt"`
}

func (e cachedEntry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

type cachingStage[Req, Resp any] struct {
	exec     *Executor
	typeName string
}

func (s *cachingStage[Req, Resp]) Name() string { return StageCaching }

func (s *cachingStage[Req, Resp]) Handle(ctx context.Context, req Req, next NextFunc[Resp]) (Resp, error) {
	c := any(req).(Cacheable)
	key := c.CacheKey()
	if key == "" {
		return next(ctx)
	}

	span := trace.SpanFromContext(ctx)
	logger := s.exec.logger.WithContext(ctx)

	if resp, ok := s.read(ctx, logger, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		logger.Debug("cache hit",
			observability.String("request_type", s.typeName),
			observability.String("key", key))
		return resp, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	resp, err := next(ctx)
	if err != nil || isEmpty(resp) {
		return resp, err
	}

	ttl := c.CacheTTL()
	if ttl <= 0 {
		ttl = s.exec.cacheTTL
	}
	s.write(ctx, logger, key, resp, ttl)
	return resp, nil
}

func (s *cachingStage[Req, Resp]) read(ctx context.Context, logger observability.Logger, key string) (Resp, bool) {
	var zero Resp

	data, err := s.exec.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			logger.Debug("cache read failed", observability.String("key", key), observability.Error(err))
		}
		return zero, false
	}

	var entry cachedEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		logger.Debug("cache entry undecodable", observability.String("key", key), observability.Error(err))
		return zero, false
	}
	if entry.expired(s.exec.now()) {
		if err := s.exec.store.Remove(ctx, key); err != nil {
			logger.Debug("failed to remove expired cache entry",
				observability.String("key", key), observability.Error(err))
		}
		return zero, false
	}

	var resp Resp
	if err := json.Unmarshal(entry.Value, &resp); err != nil {
		logger.Debug("cached value undecodable", observability.String("key", key), observability.Error(err))
		return zero, false
	}
	return resp, true
}

func (s *cachingStage[Req, Resp]) write(
	ctx context.Context,
	logger observability.Logger,
	key string,
	resp Resp,
	ttl time.Duration,
) {
	value, err := json.Marshal(resp)
	if err != nil {
		logger.Debug("response not cacheable", observability.String("key", key), observability.Error(err))
		return
	}

	now := s.exec.now()
	data, err := json.Marshal(cachedEntry{Value: value, CreatedAt: now, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return
	}
	if err := s.exec.store.Set(ctx, key, data, ttl); err != nil {
		logger.Debug("cache write failed", observability.String("key", key), observability.Error(err))
	}
}

// isEmpty reports whether v is a null response. Zero values of non-nilable
// kinds such as 0, false or "" are real results and get cached.
func isEmpty(v any) bool {
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
