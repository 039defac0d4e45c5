package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/avaforum/internal/observability"
)

// DefaultReadinessTimeout bounds one readiness probe.
const DefaultReadinessTimeout = 5 * time.Second

// Status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// HealthCheck is one dependency check.
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthCheck.
type HealthCheckFunc struct {
	name      string
	checkFunc func(ctx context.Context) error
}

// NewHealthCheckFunc creates a named check from a function.
func NewHealthCheckFunc(name string, check func(ctx context.Context) error) *HealthCheckFunc {
	return &HealthCheckFunc{name: name, checkFunc: check}
}

// Name implements HealthCheck.
func (f *HealthCheckFunc) Name() string {
	return f.name
}

// Check implements HealthCheck.
func (f *HealthCheckFunc) Check(ctx context.Context) error {
	return f.checkFunc(ctx)
}

// HealthStatus is the probe response body.
type HealthStatus struct {
	Status    string                  `json:"status"`
	Timestamp time.Time               `json:"timestamp"`
	Version   string                  `json:"version,omitempty"`
	Uptime    string                  `json:"uptime,omitempty"`
	Checks    map[string]*CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one check.
type CheckResult struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Handler serves the probes.
type Handler struct {
	version   string
	logger    observability.Logger
	timeout   time.Duration
	startTime time.Time

	mu     sync.RWMutex
	checks []HealthCheck
}

// NewHandler creates a Handler.
func NewHandler(version string, logger observability.Logger) *Handler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	GetHealthMetrics().Init()
	return &Handler{
		version:   version,
		logger:    logger,
		timeout:   DefaultReadinessTimeout,
		startTime: time.Now(),
	}
}

// SetTimeout changes the readiness probe timeout.
func (h *Handler) SetTimeout(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d > 0 {
		h.timeout = d
	}
}

// AddCheck registers a readiness check.
func (h *Handler) AddCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// LivenessHandler always answers 200 while the process serves requests.
func (h *Handler) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		GetHealthMetrics().checksTotal.WithLabelValues("liveness").Inc()
		c.Header("Cache-Control", "no-store")
		c.JSON(http.StatusOK, &HealthStatus{
			Status:    StatusOK,
			Timestamp: time.Now().UTC(),
			Version:   h.version,
			Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		})
	}
}

// ReadinessHandler runs every check and answers 503 when one fails.
func (h *Handler) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		GetHealthMetrics().checksTotal.WithLabelValues("readiness").Inc()

		h.mu.RLock()
		timeout := h.timeout
		h.mu.RUnlock()

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		status := h.runChecks(ctx)
		c.Header("Cache-Control", "no-store")
		code := http.StatusOK
		if status.Status != StatusOK {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, status)
	}
}

func (h *Handler) runChecks(ctx context.Context) *HealthStatus {
	h.mu.RLock()
	checks := make([]HealthCheck, len(h.checks))
	copy(checks, h.checks)
	h.mu.RUnlock()

	status := &HealthStatus{
		Status:    StatusOK,
		Timestamp: time.Now().UTC(),
		Version:   h.version,
		Checks:    make(map[string]*CheckResult, len(checks)),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	metrics := GetHealthMetrics()

	for _, check := range checks {
		wg.Add(1)
		go func(c HealthCheck) {
			defer wg.Done()

			start := time.Now()
			err := c.Check(ctx)
			duration := time.Since(start)

			result := &CheckResult{Status: StatusOK, Duration: duration.String()}
			if err != nil {
				result.Status = StatusError
				result.Error = err.Error()
				metrics.checkStatus.WithLabelValues(c.Name()).Set(0)
				h.logger.Warn("health check failed",
					observability.String("check", c.Name()),
					observability.Error(err),
					observability.Duration("duration", duration),
				)
			} else {
				metrics.checkStatus.WithLabelValues(c.Name()).Set(1)
			}

			mu.Lock()
			defer mu.Unlock()
			status.Checks[c.Name()] = result
			if err != nil {
				status.Status = StatusError
			}
		}(check)
	}
	wg.Wait()

	overall := 1.0
	if status.Status != StatusOK {
		overall = 0
	}
	metrics.checkStatus.WithLabelValues("overall").Set(overall)
	return status
}

// RegisterRoutes registers /health, /healthz and /ready.
func (h *Handler) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", h.LivenessHandler())
	r.GET("/healthz", h.LivenessHandler())
	r.GET("/ready", h.ReadinessHandler())
}
