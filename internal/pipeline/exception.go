package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/vyrodovalexey/avaforum/internal/notify"
	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

// ExceptionContext describes one failed execution. It is built per failure
// and handed to the classifier chain.
type ExceptionContext struct {
	RequestType     string
	UserID          string
	Err             error
	Timestamp       time.Time
	RequestSnapshot any
	Machine         string
}

type exceptionStage[Req, Resp any] struct {
	exec     *Executor
	typeName string
}

func (s *exceptionStage[Req, Resp]) Name() string { return StageException }

func (s *exceptionStage[Req, Resp]) Handle(ctx context.Context, req Req, next NextFunc[Resp]) (resp Resp, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero Resp
			resp = zero
			err = util.NewPanicError(r, debug.Stack())
		}
		if err != nil {
			err = s.handle(ctx, req, err)
		}
	}()

	return next(ctx)
}

func (s *exceptionStage[Req, Resp]) handle(ctx context.Context, req Req, err error) error {
	ec := ExceptionContext{
		RequestType:     s.typeName,
		UserID:          s.exec.userID(ctx),
		Err:             err,
		Timestamp:       s.exec.now(),
		RequestSnapshot: snapshot(req),
		Machine:         s.exec.machine,
	}

	s.exec.logger.WithContext(ctx).Error("request failed",
		observability.String("request_type", ec.RequestType),
		observability.String("user_id", ec.UserID),
		observability.String("error_type", fmt.Sprintf("%T", err)),
		observability.Error(err),
		observability.Any("request", ec.RequestSnapshot),
		observability.String("machine", ec.Machine))

	if reason, severity, ok := criticalReason(err); ok {
		s.exec.notifyAsync(ctx, notify.Event{
			RequestType: ec.RequestType,
			UserID:      ec.UserID,
			ErrorType:   fmt.Sprintf("%T", err),
			Message:     err.Error(),
			Reason:      reason,
			Severity:    severity,
			Machine:     ec.Machine,
			RequestID:   observability.RequestIDFromContext(ctx),
			Timestamp:   ec.Timestamp,
		})
	}

	for _, c := range s.exec.classifiers {
		if replaced := c.Classify(ec); replaced != nil {
			return replaced
		}
	}
	return err
}

// snapshot returns the loggable form of req.
func snapshot(req any) any {
	if sd, ok := req.(SensitiveData); ok {
		return sd.Redacted()
	}
	return req
}
