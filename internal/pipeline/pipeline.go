// Package pipeline wraps application handlers in an ordered chain of
// cross-cutting stages: validation, response caching, performance tracking,
// exception classification and cache invalidation.
//
// A pipeline is composed once per request type with Build. Which optional
// stages take part is decided at composition time from the capability
// interfaces the request type implements (Cacheable, Invalidator,
// ValidationSkipper).
package pipeline

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vyrodovalexey/avaforum/internal/observability"
)

const tracerName = "avaforum/pipeline"

// Stage names, in execution order.
const (
	StageValidation   = "validation"
	StageCaching      = "caching"
	StagePerformance  = "performance"
	StageException    = "exception"
	StageInvalidation = "invalidation"
)

// ErrNextCalledTwice is returned when a stage invokes its continuation more
// than once.
var ErrNextCalledTwice = errors.New("pipeline: next called more than once")

// HandlerFunc handles one request type.
type HandlerFunc[Req, Resp any] func(ctx context.Context, req Req) (Resp, error)

// NextFunc invokes the remainder of the pipeline.
type NextFunc[Resp any] func(ctx context.Context) (Resp, error)

// Stage is one behavior in the chain. A stage may pass through,
// short-circuit, wrap the result, or observe and return the error. It calls
// next at most once.
type Stage[Req, Resp any] interface {
	Name() string
	Handle(ctx context.Context, req Req, next NextFunc[Resp]) (Resp, error)
}

// Pipeline is the composed chain for one request type.
type Pipeline[Req, Resp any] struct {
	typeName string
	stages   []Stage[Req, Resp]
	handler  HandlerFunc[Req, Resp]
	tracer   trace.Tracer
}

// TypeName returns the request type name used in logs and metrics.
func TypeName[Req any]() string {
	return reflect.TypeFor[Req]().String()
}

func implements[Req, Cap any]() bool {
	return reflect.TypeFor[Req]().Implements(reflect.TypeFor[Cap]())
}

// Build composes the pipeline for Req around handler.
func Build[Req, Resp any](exec *Executor, handler HandlerFunc[Req, Resp]) *Pipeline[Req, Resp] {
	typeName := TypeName[Req]()
	stages := make([]Stage[Req, Resp], 0, 5)

	if !implements[Req, ValidationSkipper]() {
		stages = append(stages, &validationStage[Req, Resp]{
			exec:     exec,
			reqType:  reflect.TypeFor[Req](),
			typeName: typeName,
		})
	}
	if implements[Req, Cacheable]() && exec.store != nil {
		stages = append(stages, &cachingStage[Req, Resp]{exec: exec, typeName: typeName})
	}
	stages = append(stages,
		&performanceStage[Req, Resp]{
			exec:      exec,
			typeName:  typeName,
			threshold: exec.thresholds.forKind(kindOf[Req]()),
		},
		&exceptionStage[Req, Resp]{exec: exec, typeName: typeName},
	)
	if implements[Req, Invalidator]() && exec.store != nil {
		stages = append(stages, &invalidationStage[Req, Resp]{exec: exec, typeName: typeName})
	}

	return &Pipeline[Req, Resp]{
		typeName: typeName,
		stages:   stages,
		handler:  handler,
		tracer:   otel.Tracer(tracerName),
	}
}

// RequestType returns the name of the request type the pipeline serves.
func (p *Pipeline[Req, Resp]) RequestType() string {
	return p.typeName
}

// Stages returns the stage names in execution order.
func (p *Pipeline[Req, Resp]) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Execute runs req through every stage and the handler.
func (p *Pipeline[Req, Resp]) Execute(ctx context.Context, req Req) (Resp, error) {
	return p.run(ctx, req, 0)
}

func (p *Pipeline[Req, Resp]) run(ctx context.Context, req Req, i int) (Resp, error) {
	if i == len(p.stages) {
		return p.handler(ctx, req)
	}

	stage := p.stages[i]
	ctx, span := p.tracer.Start(ctx, "pipeline."+stage.Name(),
		trace.WithAttributes(attribute.String("request.type", p.typeName)))
	defer span.End()

	var called atomic.Bool
	next := func(ctx context.Context) (Resp, error) {
		if !called.CompareAndSwap(false, true) {
			var zero Resp
			return zero, ErrNextCalledTwice
		}
		return p.run(ctx, req, i+1)
	}

	resp, err := stage.Handle(ctx, req, next)
	observability.RecordSpanError(span, err)
	return resp, err
}
