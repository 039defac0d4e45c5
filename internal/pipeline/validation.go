package pipeline

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

// Validator checks one request type. It returns the field failures it found;
// a non-nil error means the validator itself could not run.
type Validator[Req any] interface {
	Validate(ctx context.Context, req Req) ([]util.FieldError, error)
}

// ValidatorFunc adapts a function to Validator.
type ValidatorFunc[Req any] func(ctx context.Context, req Req) ([]util.FieldError, error)

// Validate implements Validator.
func (f ValidatorFunc[Req]) Validate(ctx context.Context, req Req) ([]util.FieldError, error) {
	return f(ctx, req)
}

type anyValidator func(ctx context.Context, req any) ([]util.FieldError, error)

// ValidatorRegistry maps exact request types to their validators.
type ValidatorRegistry struct {
	mu     sync.RWMutex
	byType map[reflect.Type][]anyValidator
}

// NewValidatorRegistry creates an empty registry.
func NewValidatorRegistry() *ValidatorRegistry {
	return &ValidatorRegistry{byType: make(map[reflect.Type][]anyValidator)}
}

// RegisterValidator adds v for requests of exactly type Req.
func RegisterValidator[Req any](r *ValidatorRegistry, v Validator[Req]) {
	t := reflect.TypeFor[Req]()
	wrapped := func(ctx context.Context, req any) ([]util.FieldError, error) {
		return v.Validate(ctx, req.(Req))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType[t] = append(r.byType[t], wrapped)
}

// Count returns the number of validators registered for t.
func (r *ValidatorRegistry) Count(t reflect.Type) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType[t])
}

func (r *ValidatorRegistry) lookup(t reflect.Type) []anyValidator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byType[t]
}

type validationStage[Req, Resp any] struct {
	exec     *Executor
	reqType  reflect.Type
	typeName string
}

func (s *validationStage[Req, Resp]) Name() string { return StageValidation }

func (s *validationStage[Req, Resp]) Handle(ctx context.Context, req Req, next NextFunc[Resp]) (Resp, error) {
	validators := s.exec.validators.lookup(s.reqType)
	if len(validators) == 0 {
		return next(ctx)
	}

	results := make([][]util.FieldError, len(validators))
	g, gctx := errgroup.WithContext(ctx)
	for i, v := range validators {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = util.NewPanicError(r, debug.Stack())
				}
			}()
			failures, err := v(gctx, req)
			results[i] = failures
			return err
		})
	}
	if err := g.Wait(); err != nil {
		var zero Resp
		return zero, fmt.Errorf("validating %s: %w", s.typeName, err)
	}

	var failures []util.FieldError
	for _, r := range results {
		failures = append(failures, r...)
	}
	if len(failures) == 0 {
		return next(ctx)
	}

	logger := s.exec.logger.WithContext(ctx)
	for _, f := range failures {
		logger.Warn("validation failed",
			observability.String("request_type", s.typeName),
			observability.String("field", f.Field),
			observability.String("message", f.Message),
			observability.Any("attempted_value", f.AttemptedValue))
	}

	var zero Resp
	return zero, util.NewValidationError(s.typeName, failures)
}
