package pipeline

import (
	"context"

	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/store"
)

type invalidationStage[Req, Resp any] struct {
	exec     *Executor
	typeName string
}

func (s *invalidationStage[Req, Resp]) Name() string { return StageInvalidation }

// Handle removes the declared cache entries once the handler has succeeded.
// Removal runs detached from cancellation so a caller leaving after a
// successful write cannot leave stale entries behind.
func (s *invalidationStage[Req, Resp]) Handle(ctx context.Context, req Req, next NextFunc[Resp]) (Resp, error) {
	resp, err := next(ctx)
	if err != nil {
		return resp, err
	}

	inv := any(req).(Invalidator)
	rctx := context.WithoutCancel(ctx)
	logger := s.exec.logger.WithContext(ctx)

	for _, key := range inv.InvalidatedKeys() {
		if key == "" {
			continue
		}
		if err := s.exec.store.Remove(rctx, key); err != nil {
			logger.Warn("cache invalidation failed",
				observability.String("request_type", s.typeName),
				observability.String("key", key),
				observability.Error(err))
		}
	}

	pattern := inv.InvalidatedPattern()
	if pattern == "" {
		return resp, nil
	}
	remover, ok := s.exec.store.(store.PatternRemover)
	if !ok {
		logger.Warn("store does not support pattern invalidation",
			observability.String("request_type", s.typeName),
			observability.String("pattern", pattern))
		return resp, nil
	}
	n, err := remover.RemovePattern(rctx, pattern)
	if err != nil {
		logger.Warn("cache pattern invalidation failed",
			observability.String("request_type", s.typeName),
			observability.String("pattern", pattern),
			observability.Error(err))
		return resp, nil
	}
	logger.Debug("cache entries invalidated",
		observability.String("pattern", pattern),
		observability.Int("removed", n))
	return resp, nil
}
