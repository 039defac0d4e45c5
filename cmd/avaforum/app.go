package main

import (
	"context"
	"fmt"
	"io"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaforum/internal/auth"
	"github.com/vyrodovalexey/avaforum/internal/config"
	"github.com/vyrodovalexey/avaforum/internal/forum"
	"github.com/vyrodovalexey/avaforum/internal/health"
	"github.com/vyrodovalexey/avaforum/internal/metrics/aggregator"
	"github.com/vyrodovalexey/avaforum/internal/middleware"
	"github.com/vyrodovalexey/avaforum/internal/notify"
	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/pipeline"
	"github.com/vyrodovalexey/avaforum/internal/ratelimit"
	"github.com/vyrodovalexey/avaforum/internal/server"
	"github.com/vyrodovalexey/avaforum/internal/store"
)

// application holds all application components.
type application struct {
	config      *config.Config
	server      *server.Server
	store       store.Store
	counters    store.Store
	executor    *pipeline.Executor
	limiter     ratelimit.Limiter
	rateLimiter *middleware.RateLimiter
	metrics     *observability.Metrics
	tracer      *observability.Tracer
	health      *health.Handler
}

// initApplication initializes all application components. On error every
// component created so far is released.
func initApplication(cfg *config.Config, logger observability.Logger) (*application, error) {
	ctx := context.Background()
	app := &application{config: cfg}
	if err := app.init(ctx, logger); err != nil {
		app.release(ctx, logger)
		return nil, err
	}
	return app, nil
}

func (app *application) init(ctx context.Context, logger observability.Logger) (err error) {
	cfg := app.config

	app.metrics = observability.NewMetrics("avaforum")
	app.metrics.SetBuildInfo(version, gitCommit, buildTime)

	app.tracer, err = observability.NewTracer(ctx, cfg.Tracing.Tracer())
	if err != nil {
		return fmt.Errorf("failed to initialize tracer: %w", err)
	}

	app.store, err = store.New(ctx, cfg.Store.StoreOptions(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}

	notifier, err := buildNotifier(cfg.Notify, logger, app.metrics)
	if err != nil {
		return err
	}

	agg := aggregator.New(cfg.Pipeline.Aggregator())
	app.executor = pipeline.NewExecutor(
		pipeline.WithStore(app.store),
		pipeline.WithAggregator(agg),
		pipeline.WithNotifier(notifier),
		pipeline.WithLogger(logger),
		pipeline.WithThresholds(cfg.Pipeline.Thresholds()),
		pipeline.WithDefaultCacheTTL(cfg.Pipeline.DefaultCacheTTL.Duration()),
		pipeline.WithNotifyTimeout(cfg.Pipeline.NotifyTimeout.Duration()),
	)

	dispatcher := pipeline.NewDispatcher()
	service := forum.NewService(forum.NewMemoryRepository(), auth.ContextUser{})
	if err := forum.Register(dispatcher, app.executor, service); err != nil {
		return fmt.Errorf("failed to register forum handlers: %w", err)
	}

	verifier, err := buildVerifier(ctx, cfg.Auth)
	if err != nil {
		return err
	}

	clientIP := middleware.NewClientIPExtractor(cfg.RateLimit.TrustedProxies)
	if cfg.RateLimit.Enabled {
		// Counters get their own store so a burst of cached entries cannot
		// push live counters out of the LRU.
		app.counters, err = store.New(ctx, cfg.Store.StoreOptions(), logger)
		if err != nil {
			return fmt.Errorf("failed to initialize rate limit store: %w", err)
		}
		app.limiter, err = ratelimit.New(ratelimit.Mode(cfg.RateLimit.Mode), app.counters, cfg.RateLimit.Limits())
		if err != nil {
			return fmt.Errorf("failed to initialize rate limiter: %w", err)
		}
		app.rateLimiter = middleware.NewRateLimiter(app.limiter,
			middleware.WithRateLimiterLogger(logger),
			middleware.WithClientIPExtractor(clientIP),
			middleware.WithBypassPrefixes(cfg.RateLimit.BypassPrefixes),
		)
	}

	var responseCache *middleware.ResponseCache
	if cfg.Cache.Enabled {
		responseCache = middleware.NewResponseCache(app.store,
			middleware.WithCachePolicy(cfg.Cache.Policy()),
			middleware.WithCacheLogger(logger),
		)
	}

	app.health = health.NewHandler(version, logger)
	app.health.AddCheck(health.StoreCheck(app.store))

	registerMetrics(app.metrics, agg)

	deps := server.Deps{
		Logger:        logger,
		Metrics:       app.metrics,
		Health:        app.health,
		Aggregator:    agg,
		ClientIP:      clientIP,
		Verifier:      verifier,
		RateLimiter:   app.rateLimiter,
		ResponseCache: responseCache,
		Routes: func(r gin.IRouter) {
			forum.RegisterRoutes(r, dispatcher)
		},
	}
	if cfg.Tracing.Enabled {
		deps.Tracer = app.tracer
	}
	app.server = server.New(cfg.Server, deps)

	return nil
}

// registerMetrics registers the subsystem singletons on the served
// registry. They are promauto collectors on the default registry, which
// /metrics does not expose.
func registerMetrics(metrics *observability.Metrics, agg *aggregator.Aggregator) {
	registry := metrics.Registry()
	store.GetMetrics().MustRegister(registry)
	middleware.GetMetrics().MustRegister(registry)
	health.GetHealthMetrics().MustRegister(registry)
	agg.MustRegister(registry)
}

// buildNotifier assembles the critical-error notifiers. With none
// configured, notifications are dropped.
func buildNotifier(
	cfg config.NotifyConfig,
	logger observability.Logger,
	metrics *observability.Metrics,
) (notify.Notifier, error) {
	var notifiers notify.Multi
	if cfg.Log {
		notifiers = append(notifiers, notify.NewLogNotifier(logger))
	}
	if cfg.Webhook.URL != "" {
		webhook, err := notify.NewWebhookNotifier(cfg.Webhook.Notifier(), notify.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize webhook notifier: %w", err)
		}
		webhook.MustRegister(metrics.Registry())
		notifiers = append(notifiers, webhook)
	}

	switch len(notifiers) {
	case 0:
		return notify.Nop{}, nil
	case 1:
		return notifiers[0], nil
	default:
		return notifiers, nil
	}
}

// buildVerifier returns the bearer-token verifier, or nil when
// authentication is not configured.
func buildVerifier(ctx context.Context, cfg config.AuthConfig) (auth.Verifier, error) {
	opts := auth.VerifierOptions{
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		ClockSkew: cfg.ClockSkew.Duration(),
	}

	switch {
	case cfg.JWTSecret != "":
		v, err := auth.NewHMACVerifier([]byte(cfg.JWTSecret), opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
		}
		return v, nil
	case cfg.JWKSURL != "":
		v, err := auth.NewJWKSVerifier(ctx, cfg.JWKSURL, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize token verifier: %w", err)
		}
		return v, nil
	default:
		return nil, nil
	}
}

// release closes the components in reverse order of creation.
func (app *application) release(ctx context.Context, logger observability.Logger) {
	if app.executor != nil {
		if err := app.executor.Close(ctx); err != nil {
			logger.Warn("pending notifications not flushed", observability.Error(err))
		}
	}
	if closer, ok := app.limiter.(io.Closer); ok {
		_ = closer.Close()
	}
	if app.counters != nil {
		if err := app.counters.Close(); err != nil {
			logger.Error("failed to close rate limit store", observability.Error(err))
		}
	}
	if app.store != nil {
		if err := app.store.Close(); err != nil {
			logger.Error("failed to close store", observability.Error(err))
		}
	}
	if app.tracer != nil {
		if err := app.tracer.Shutdown(ctx); err != nil {
			logger.Error("failed to shutdown tracer", observability.Error(err))
		}
	}
}
