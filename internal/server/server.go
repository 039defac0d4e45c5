// Package server assembles the HTTP edge: the middleware chain in front of
// a gin engine that serves the forum API, probes and metrics.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaforum/internal/auth"
	"github.com/vyrodovalexey/avaforum/internal/config"
	"github.com/vyrodovalexey/avaforum/internal/health"
	"github.com/vyrodovalexey/avaforum/internal/metrics/aggregator"
	"github.com/vyrodovalexey/avaforum/internal/middleware"
	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

// Route paths served besides the application routes.
const (
	MetricsPath         = "/metrics"
	RequestMetricsPath  = "/internal/metrics/requests"
	defaultMaxHeaderLen = 1 << 20
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Deps are the collaborators wired into the edge. Nil optional fields
// disable their middleware.
type Deps struct {
	Logger     observability.Logger
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
	Health     *health.Handler
	Aggregator *aggregator.Aggregator
	ClientIP   *middleware.ClientIPExtractor

	// Optional.
	Verifier      auth.Verifier
	RateLimiter   *middleware.RateLimiter
	ResponseCache *middleware.ResponseCache

	// Routes mounts the application routes.
	Routes func(gin.IRouter)
}

// Server is the HTTP server.
type Server struct {
	cfg     config.ServerConfig
	engine  *gin.Engine
	handler http.Handler
	logger  observability.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
	running    bool
}

// New builds the engine and the middleware chain.
func New(cfg config.ServerConfig, deps Deps) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true
	engine.NoRoute(func(c *gin.Context) {
		util.WriteError(c.Writer, observability.RequestIDFromContext(c.Request.Context()),
			util.NewNotFoundError("route", c.Request.URL.Path))
	})

	if deps.Health != nil {
		deps.Health.RegisterRoutes(engine)
	}
	if deps.Metrics != nil {
		engine.GET(MetricsPath, noStore, gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.Aggregator != nil {
		engine.GET(RequestMetricsPath, gin.WrapH(deps.Aggregator.Handler()))
	}
	if deps.Routes != nil {
		deps.Routes(engine)
	}

	return &Server{
		cfg:     cfg,
		engine:  engine,
		handler: middleware.Chain(engine, edgeChain(deps)...),
		logger:  deps.Logger,
	}
}

// noStore keeps operational endpoints out of the response cache.
func noStore(c *gin.Context) {
	c.Header("Cache-Control", "no-store")
	c.Next()
}

// edgeChain lists the middleware outermost first. Request ids and panic
// recovery wrap everything; the current user is resolved before the rate
// limiter and the response cache, which both key on it.
func edgeChain(deps Deps) []func(http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{
		middleware.RequestID(),
		middleware.Recovery(deps.Logger),
		middleware.Timing(),
	}
	if deps.Tracer != nil {
		chain = append(chain, observability.TracingMiddleware(deps.Tracer))
	}
	if deps.Metrics != nil {
		chain = append(chain, observability.MetricsMiddleware(deps.Metrics))
	}
	chain = append(chain,
		middleware.AccessLog(deps.Logger, deps.ClientIP),
		auth.Middleware(deps.Verifier, deps.Logger),
	)
	if deps.RateLimiter != nil {
		chain = append(chain, deps.RateLimiter.Middleware())
	}
	if deps.ResponseCache != nil {
		chain = append(chain, deps.ResponseCache.Middleware())
	}
	return chain
}

// Handler returns the complete handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Engine returns the underlying gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Listen binds the configured address. It is separate from Serve so
// callers learn about bind failures before starting background work.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("server already listening")
	}
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Address, err)
	}
	s.listener = ln
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Serve accepts connections until Stop. It calls Listen when needed.
func (s *Server) Serve() error {
	if s.Addr() == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadTimeout:       s.cfg.ReadTimeout.Duration(),
		ReadHeaderTimeout: s.cfg.ReadTimeout.Duration(),
		WriteTimeout:      s.cfg.WriteTimeout.Duration(),
		IdleTimeout:       s.cfg.IdleTimeout.Duration(),
		MaxHeaderBytes:    defaultMaxHeaderLen,
	}
	srv, ln := s.httpServer, s.listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting HTTP server",
		observability.String("address", ln.Addr().String()),
		observability.Duration("readTimeout", s.cfg.ReadTimeout.Duration()),
		observability.Duration("writeTimeout", s.cfg.WriteTimeout.Duration()),
	)

	err := srv.Serve(ln)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		ln := s.listener
		s.listener = nil
		s.mu.Unlock()
		if ln != nil {
			return ln.Close()
		}
		return nil
	}
	srv := s.httpServer
	s.mu.Unlock()

	s.logger.Info("stopping HTTP server")

	start := time.Now()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.mu.Lock()
	s.running = false
	s.listener = nil
	s.mu.Unlock()

	s.logger.Info("HTTP server stopped", observability.Duration("drain", time.Since(start)))
	return nil
}
