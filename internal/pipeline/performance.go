package pipeline

import (
	"context"
	"time"

	"github.com/vyrodovalexey/avaforum/internal/metrics/aggregator"
	"github.com/vyrodovalexey/avaforum/internal/observability"
)

type performanceStage[Req, Resp any] struct {
	exec      *Executor
	typeName  string
	threshold time.Duration
}

func (s *performanceStage[Req, Resp]) Name() string { return StagePerformance }

func (s *performanceStage[Req, Resp]) Handle(ctx context.Context, _ Req, next NextFunc[Resp]) (Resp, error) {
	start := time.Now()
	resp, err := next(ctx)
	elapsed := time.Since(start)

	s.exec.aggregator.Record(s.typeName, elapsed, err == nil)

	if s.threshold > 0 && elapsed > s.threshold {
		userID := s.exec.userID(ctx)
		s.exec.aggregator.RecordSlow(aggregator.SlowRequest{
			RequestType: s.typeName,
			Duration:    elapsed,
			UserID:      userID,
			Timestamp:   s.exec.now(),
		})
		s.exec.logger.WithContext(ctx).Warn("slow request",
			observability.String("request_type", s.typeName),
			observability.Duration("duration", elapsed),
			observability.Duration("threshold", s.threshold),
			observability.String("user_id", userID))
	}

	return resp, err
}
