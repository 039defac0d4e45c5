package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/avaforum/internal/observability"
)

// ErrThrottled is returned when the dispatch rate limit drops an event.
var ErrThrottled = errors.New("notification throttled")

// WebhookConfig configures a WebhookNotifier.
type WebhookConfig struct {
	URL     string
	Timeout time.Duration

	// RatePerSecond and Burst bound outgoing notifications.
	RatePerSecond float64
	Burst         int

	// FailureThreshold consecutive failures open the breaker for OpenTimeout.
	FailureThreshold int
	OpenTimeout      time.Duration
}

// DefaultWebhookConfig returns the defaults applied to zero fields.
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:          5 * time.Second,
		RatePerSecond:    1,
		Burst:            5,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// WebhookNotifier POSTs events as JSON. A circuit breaker stops calls to an
// unhealthy endpoint and a token bucket bounds bursts of identical failures.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  observability.Logger
	sent    *prometheus.CounterVec
}

// WebhookOption configures a WebhookNotifier.
type WebhookOption func(*WebhookNotifier)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) WebhookOption {
	return func(n *WebhookNotifier) {
		n.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) WebhookOption {
	return func(n *WebhookNotifier) {
		n.logger = logger
	}
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(cfg WebhookConfig, opts ...WebhookOption) (*WebhookNotifier, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook URL is required")
	}
	def := DefaultWebhookConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = def.Burst
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = def.FailureThreshold
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = def.OpenTimeout
	}

	n := &WebhookNotifier{
		url:     cfg.URL,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		logger:  observability.NopLogger(),
		sent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "avaforum",
				Subsystem: "notify",
				Name:      "webhook_notifications_total",
				Help:      "Webhook notifications by result",
			},
			[]string{"result"},
		),
	}
	for _, opt := range opts {
		opt(n)
	}

	threshold := uint32(cfg.FailureThreshold) //nolint:gosec // positive, checked above
	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "notify-webhook",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			n.logger.Warn("notification circuit breaker state change",
				observability.String("name", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()))
		},
	})

	return n, nil
}

// MustRegister registers the notifier counters on registry.
func (n *WebhookNotifier) MustRegister(registry *prometheus.Registry) {
	registry.MustRegister(n.sent)
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, ev Event) error {
	if !n.limiter.Allow() {
		n.sent.WithLabelValues("throttled").Inc()
		return ErrThrottled
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	_, err = n.breaker.Execute(func() (any, error) {
		return nil, n.post(ctx, body)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		n.sent.WithLabelValues("circuit_open").Inc()
	case err != nil:
		n.sent.WithLabelValues("failed").Inc()
	default:
		n.sent.WithLabelValues("delivered").Inc()
	}
	return err
}

func (n *WebhookNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	observability.InjectTraceContext(ctx, req)

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// State returns the breaker state.
func (n *WebhookNotifier) State() gobreaker.State {
	return n.breaker.State()
}
