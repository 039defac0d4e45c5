package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/vyrodovalexey/avaforum/internal/auth"
	"github.com/vyrodovalexey/avaforum/internal/metrics/aggregator"
	"github.com/vyrodovalexey/avaforum/internal/notify"
	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/store"
)

// Defaults.
const (
	DefaultCacheTTL      = 5 * time.Minute
	DefaultNotifyTimeout = 10 * time.Second
)

type requestKind int

const (
	kindOther requestKind = iota
	kindQuery
	kindCommand
)

func kindOf[Req any]() requestKind {
	switch {
	case implements[Req, Query]():
		return kindQuery
	case implements[Req, Command]():
		return kindCommand
	default:
		return kindOther
	}
}

// Thresholds are the slow-request limits per request kind.
type Thresholds struct {
	Query   time.Duration
	Command time.Duration
	Other   time.Duration
}

// DefaultThresholds returns 1s for queries, 5s for commands and 2s otherwise.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Query:   time.Second,
		Command: 5 * time.Second,
		Other:   2 * time.Second,
	}
}

func (t Thresholds) forKind(k requestKind) time.Duration {
	switch k {
	case kindQuery:
		return t.Query
	case kindCommand:
		return t.Command
	default:
		return t.Other
	}
}

// Executor holds the collaborators shared by every pipeline. It is safe for
// concurrent use once constructed.
type Executor struct {
	store         store.Store
	aggregator    *aggregator.Aggregator
	validators    *ValidatorRegistry
	classifiers   []Classifier
	notifier      notify.Notifier
	logger        observability.Logger
	currentUser   auth.CurrentUser
	thresholds    Thresholds
	cacheTTL      time.Duration
	notifyTimeout time.Duration
	machine       string
	now           func() time.Time

	pending sync.WaitGroup
}

// Option configures an Executor.
type Option func(*Executor)

// WithStore sets the store used by the caching and invalidation stages.
// Without a store those stages are left out.
func WithStore(s store.Store) Option {
	return func(e *Executor) {
		e.store = s
	}
}

// WithAggregator sets the metrics aggregator.
func WithAggregator(a *aggregator.Aggregator) Option {
	return func(e *Executor) {
		e.aggregator = a
	}
}

// WithValidators sets the validator registry.
func WithValidators(r *ValidatorRegistry) Option {
	return func(e *Executor) {
		e.validators = r
	}
}

// WithClassifiers replaces the classifier chain.
func WithClassifiers(c ...Classifier) Option {
	return func(e *Executor) {
		e.classifiers = append([]Classifier{}, c...)
	}
}

// WithNotifier sets the critical-error notifier.
func WithNotifier(n notify.Notifier) Option {
	return func(e *Executor) {
		e.notifier = n
	}
}

// WithLogger sets the logger.
func WithLogger(l observability.Logger) Option {
	return func(e *Executor) {
		e.logger = l
	}
}

// WithCurrentUser sets the current-user accessor.
func WithCurrentUser(u auth.CurrentUser) Option {
	return func(e *Executor) {
		e.currentUser = u
	}
}

// WithThresholds sets the slow-request thresholds.
func WithThresholds(t Thresholds) Option {
	return func(e *Executor) {
		e.thresholds = t
	}
}

// WithDefaultCacheTTL sets the TTL used when a Cacheable request returns a
// non-positive one.
func WithDefaultCacheTTL(ttl time.Duration) Option {
	return func(e *Executor) {
		e.cacheTTL = ttl
	}
}

// WithNotifyTimeout bounds each critical-error notification.
func WithNotifyTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.notifyTimeout = d
	}
}

// WithMachine overrides the host name reported in notifications.
func WithMachine(name string) Option {
	return func(e *Executor) {
		e.machine = name
	}
}

// WithClock overrides the wall clock used for timestamps and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Executor) {
		e.now = now
	}
}

// NewExecutor creates an Executor. Missing collaborators get working
// defaults: a fresh aggregator, an empty validator registry, the default
// classifier chain, no-op notifier and logger, and the context user.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{
		thresholds:    DefaultThresholds(),
		cacheTTL:      DefaultCacheTTL,
		notifyTimeout: DefaultNotifyTimeout,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.aggregator == nil {
		e.aggregator = aggregator.New(aggregator.Config{})
	}
	if e.validators == nil {
		e.validators = NewValidatorRegistry()
	}
	if e.classifiers == nil {
		e.classifiers = DefaultClassifiers()
	}
	if e.notifier == nil {
		e.notifier = notify.Nop{}
	}
	if e.logger == nil {
		e.logger = observability.NopLogger()
	}
	if e.currentUser == nil {
		e.currentUser = auth.ContextUser{}
	}
	if e.machine == "" {
		if host, err := os.Hostname(); err == nil {
			e.machine = host
		} else {
			e.machine = "unknown"
		}
	}
	return e
}

// Aggregator returns the metrics aggregator.
func (e *Executor) Aggregator() *aggregator.Aggregator {
	return e.aggregator
}

// Validators returns the validator registry.
func (e *Executor) Validators() *ValidatorRegistry {
	return e.validators
}

func (e *Executor) userID(ctx context.Context) string {
	id, ok := e.currentUser.UserID(ctx)
	if !ok {
		return ""
	}
	return id
}

// notifyAsync sends ev without blocking the request. Failures are logged.
func (e *Executor) notifyAsync(ctx context.Context, ev notify.Event) {
	ctx = context.WithoutCancel(ctx)
	e.pending.Add(1)
	go func() {
		defer e.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("notifier panicked", observability.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(ctx, e.notifyTimeout)
		defer cancel()
		if err := e.notifier.Notify(ctx, ev); err != nil {
			e.logger.WithContext(ctx).Warn("failed to send critical error notification",
				observability.String("request_type", ev.RequestType),
				observability.String("reason", ev.Reason),
				observability.Error(err))
		}
	}()
}

// Close waits for in-flight notifications or until ctx is done.
func (e *Executor) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for notifications: %w", ctx.Err())
	}
}
