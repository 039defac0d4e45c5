package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
)

// Dispatcher errors.
var (
	ErrNoPipeline        = errors.New("pipeline: no pipeline registered for request type")
	ErrDuplicatePipeline = errors.New("pipeline: request type already registered")
	ErrResponseType      = errors.New("pipeline: unexpected response type")
)

type route func(ctx context.Context, req any) (any, error)

// Dispatcher routes untyped requests to the pipeline registered for their
// dynamic type.
type Dispatcher struct {
	mu     sync.RWMutex
	routes map[reflect.Type]route
}

// NewDispatcher creates an empty Dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{routes: make(map[reflect.Type]route)}
}

// Register adds p under its request type.
func Register[Req, Resp any](d *Dispatcher, p *Pipeline[Req, Resp]) error {
	t := reflect.TypeFor[Req]()

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.routes[t]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePipeline, t)
	}
	d.routes[t] = func(ctx context.Context, req any) (any, error) {
		return p.Execute(ctx, req.(Req))
	}
	return nil
}

// Handle builds a pipeline for handler and registers it.
func Handle[Req, Resp any](d *Dispatcher, exec *Executor, handler HandlerFunc[Req, Resp]) error {
	return Register(d, Build(exec, handler))
}

// Send executes req through its pipeline.
func (d *Dispatcher) Send(ctx context.Context, req any) (any, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: <nil>", ErrNoPipeline)
	}
	t := reflect.TypeOf(req)

	d.mu.RLock()
	r, ok := d.routes[t]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPipeline, t)
	}
	return r(ctx, req)
}

// Dispatch is Send with a typed response.
func Dispatch[Resp any](ctx context.Context, d *Dispatcher, req any) (Resp, error) {
	var zero Resp
	out, err := d.Send(ctx, req)
	if err != nil {
		if typed, ok := out.(Resp); ok {
			return typed, err
		}
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	typed, ok := out.(Resp)
	if !ok {
		return zero, fmt.Errorf("%w: got %T", ErrResponseType, out)
	}
	return typed, nil
}

// RequestTypes returns the registered request type names, sorted.
func (d *Dispatcher) RequestTypes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.routes))
	for t := range d.routes {
		names = append(names, t.String())
	}
	sort.Strings(names)
	return names
}
