package config

import (
	"time"

	"github.com/vyrodovalexey/avaforum/internal/cache"
	"github.com/vyrodovalexey/avaforum/internal/metrics/aggregator"
	"github.com/vyrodovalexey/avaforum/internal/middleware"
	"github.com/vyrodovalexey/avaforum/internal/notify"
	"github.com/vyrodovalexey/avaforum/internal/observability"
	"github.com/vyrodovalexey/avaforum/internal/pipeline"
	"github.com/vyrodovalexey/avaforum/internal/ratelimit"
	"github.com/vyrodovalexey/avaforum/internal/store"
)

// Config is the root configuration of the forum server.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Log       LogConfig       `yaml:"log" json:"log"`
	Tracing   TracingConfig   `yaml:"tracing" json:"tracing"`
	Store     StoreConfig     `yaml:"store" json:"store"`
	RateLimit RateLimitConfig `yaml:"rateLimit" json:"rateLimit"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	Pipeline  PipelineConfig  `yaml:"pipeline" json:"pipeline"`
	Auth      AuthConfig      `yaml:"auth" json:"auth"`
	Notify    NotifyConfig    `yaml:"notify" json:"notify"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	IdleTimeout     Duration `yaml:"idleTimeout" json:"idleTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// Observability converts to the logger configuration.
func (c LogConfig) Observability() observability.LogConfig {
	return observability.LogConfig{Level: c.Level, Format: c.Format, Output: c.Output}
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	ServiceName  string  `yaml:"serviceName" json:"serviceName"`
	OTLPEndpoint string  `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	SamplingRate float64 `yaml:"samplingRate" json:"samplingRate"`
}

// Tracer converts to the tracer configuration.
func (c TracingConfig) Tracer() observability.TracerConfig {
	return observability.TracerConfig{
		ServiceName:  c.ServiceName,
		OTLPEndpoint: c.OTLPEndpoint,
		SamplingRate: c.SamplingRate,
		Enabled:      c.Enabled,
	}
}

// StoreConfig selects the store backend shared by the caches and the
// rate limiter.
type StoreConfig struct {
	Backend    string      `yaml:"backend" json:"backend"`
	MaxEntries int         `yaml:"maxEntries" json:"maxEntries"`
	Redis      RedisConfig `yaml:"redis" json:"redis"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	URL               string   `yaml:"url" json:"url"`
	KeyPrefix         string   `yaml:"keyPrefix" json:"keyPrefix"`
	PoolSize          int      `yaml:"poolSize" json:"poolSize"`
	DialTimeout       Duration `yaml:"dialTimeout" json:"dialTimeout"`
	ReadTimeout       Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout      Duration `yaml:"writeTimeout" json:"writeTimeout"`
	ConnectionRetries int      `yaml:"connectionRetries" json:"connectionRetries"`
}

// StoreOptions converts to the store configuration.
func (c StoreConfig) StoreOptions() store.Config {
	return store.Config{
		Backend:    c.Backend,
		MaxEntries: c.MaxEntries,
		Redis: store.RedisConfig{
			URL:               c.Redis.URL,
			KeyPrefix:         c.Redis.KeyPrefix,
			PoolSize:          c.Redis.PoolSize,
			DialTimeout:       c.Redis.DialTimeout.Duration(),
			ReadTimeout:       c.Redis.ReadTimeout.Duration(),
			WriteTimeout:      c.Redis.WriteTimeout.Duration(),
			ConnectionRetries: c.Redis.ConnectionRetries,
		},
	}
}

// RateLimitConfig configures the per-client request quotas. PerMinute,
// PerHour and BypassPrefixes are applied on hot reload.
type RateLimitConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	Mode           string   `yaml:"mode" json:"mode"`
	PerMinute      int      `yaml:"perMinute" json:"perMinute"`
	PerHour        int      `yaml:"perHour" json:"perHour"`
	BypassPrefixes []string `yaml:"bypassPrefixes" json:"bypassPrefixes"`
	TrustedProxies []string `yaml:"trustedProxies" json:"trustedProxies"`
}

// Limits returns the configured caps.
func (c RateLimitConfig) Limits() ratelimit.Limits {
	return ratelimit.Limits{PerMinute: c.PerMinute, PerHour: c.PerHour}
}

// CacheConfig configures the HTTP response cache.
type CacheConfig struct {
	Enabled      bool            `yaml:"enabled" json:"enabled"`
	DefaultTTL   Duration        `yaml:"defaultTTL" json:"defaultTTL"`
	MaxTTL       Duration        `yaml:"maxTTL" json:"maxTTL"`
	MaxBodyBytes int64           `yaml:"maxBodyBytes" json:"maxBodyBytes"`
	PathTTLs     []PathTTLConfig `yaml:"pathTTLs" json:"pathTTLs"`
}

// PathTTLConfig assigns a TTL to a path prefix.
type PathTTLConfig struct {
	Prefix string   `yaml:"prefix" json:"prefix"`
	TTL    Duration `yaml:"ttl" json:"ttl"`
}

// Policy converts to the cache storage policy.
func (c CacheConfig) Policy() cache.Policy {
	p := cache.Policy{
		DefaultTTL: c.DefaultTTL.Duration(),
		MaxTTL:     c.MaxTTL.Duration(),
		MaxBody:    c.MaxBodyBytes,
	}
	for _, pt := range c.PathTTLs {
		p.PathTTLs = append(p.PathTTLs, cache.PathTTL{Prefix: pt.Prefix, TTL: pt.TTL.Duration()})
	}
	return p
}

// PipelineConfig configures the request pipeline.
type PipelineConfig struct {
	QueryThreshold   Duration `yaml:"queryThreshold" json:"queryThreshold"`
	CommandThreshold Duration `yaml:"commandThreshold" json:"commandThreshold"`
	OtherThreshold   Duration `yaml:"otherThreshold" json:"otherThreshold"`
	DefaultCacheTTL  Duration `yaml:"defaultCacheTTL" json:"defaultCacheTTL"`
	NotifyTimeout    Duration `yaml:"notifyTimeout" json:"notifyTimeout"`
	LatencyPoolSize  int      `yaml:"latencyPoolSize" json:"latencyPoolSize"`
	SlowBufferSize   int      `yaml:"slowBufferSize" json:"slowBufferSize"`
}

// Thresholds returns the slow-request thresholds.
func (c PipelineConfig) Thresholds() pipeline.Thresholds {
	return pipeline.Thresholds{
		Query:   c.QueryThreshold.Duration(),
		Command: c.CommandThreshold.Duration(),
		Other:   c.OtherThreshold.Duration(),
	}
}

// Aggregator returns the aggregator configuration.
func (c PipelineConfig) Aggregator() aggregator.Config {
	return aggregator.Config{LatencyPoolSize: c.LatencyPoolSize, SlowBufferSize: c.SlowBufferSize}
}

// AuthConfig configures bearer-token verification. At most one of
// JWTSecret and JWKSURL may be set; with neither, every request is
// anonymous.
type AuthConfig struct {
	JWTSecret string   `yaml:"jwtSecret" json:"-"`
	JWKSURL   string   `yaml:"jwksURL" json:"jwksURL"`
	Issuer    string   `yaml:"issuer" json:"issuer"`
	Audience  string   `yaml:"audience" json:"audience"`
	ClockSkew Duration `yaml:"clockSkew" json:"clockSkew"`
}

// Enabled reports whether token verification is configured.
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != "" || c.JWKSURL != ""
}

// NotifyConfig configures critical-error notification.
type NotifyConfig struct {
	Log     bool          `yaml:"log" json:"log"`
	Webhook WebhookConfig `yaml:"webhook" json:"webhook"`
}

// WebhookConfig configures the webhook notifier. An empty URL disables it.
type WebhookConfig struct {
	URL              string   `yaml:"url" json:"url"`
	Timeout          Duration `yaml:"timeout" json:"timeout"`
	RatePerSecond    float64  `yaml:"ratePerSecond" json:"ratePerSecond"`
	Burst            int      `yaml:"burst" json:"burst"`
	FailureThreshold int      `yaml:"failureThreshold" json:"failureThreshold"`
	OpenTimeout      Duration `yaml:"openTimeout" json:"openTimeout"`
}

// Notifier converts to the webhook notifier configuration.
func (c WebhookConfig) Notifier() notify.WebhookConfig {
	return notify.WebhookConfig{
		URL:              c.URL,
		Timeout:          c.Timeout.Duration(),
		RatePerSecond:    c.RatePerSecond,
		Burst:            c.Burst,
		FailureThreshold: c.FailureThreshold,
		OpenTimeout:      c.OpenTimeout.Duration(),
	}
}

// DefaultConfig returns the configuration used for omitted fields.
func DefaultConfig() *Config {
	redis := store.DefaultRedisConfig()
	thresholds := pipeline.DefaultThresholds()
	webhook := notify.DefaultWebhookConfig()

	cfg := &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			IdleTimeout:     Duration(120 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Log: LogConfig{Level: "info", Format: "json", Output: "stdout"},
		Tracing: TracingConfig{
			ServiceName:  "avaforum",
			SamplingRate: 1.0,
		},
		Store: StoreConfig{
			Backend:    store.BackendMemory,
			MaxEntries: store.DefaultMaxEntries,
			Redis: RedisConfig{
				URL:               redis.URL,
				KeyPrefix:         redis.KeyPrefix,
				PoolSize:          redis.PoolSize,
				DialTimeout:       Duration(redis.DialTimeout),
				ReadTimeout:       Duration(redis.ReadTimeout),
				WriteTimeout:      Duration(redis.WriteTimeout),
				ConnectionRetries: redis.ConnectionRetries,
			},
		},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			Mode:           string(ratelimit.ModeCalendar),
			PerMinute:      ratelimit.DefaultPerMinute,
			PerHour:        ratelimit.DefaultPerHour,
			BypassPrefixes: middleware.DefaultBypassPrefixes(),
		},
		Cache: CacheConfig{
			Enabled:      true,
			DefaultTTL:   Duration(cache.DefaultTTL),
			MaxTTL:       Duration(cache.MaxTTL),
			MaxBodyBytes: cache.MaxBodySize,
		},
		Pipeline: PipelineConfig{
			QueryThreshold:   Duration(thresholds.Query),
			CommandThreshold: Duration(thresholds.Command),
			OtherThreshold:   Duration(thresholds.Other),
			DefaultCacheTTL:  Duration(pipeline.DefaultCacheTTL),
			NotifyTimeout:    Duration(pipeline.DefaultNotifyTimeout),
			LatencyPoolSize:  aggregator.DefaultLatencyPoolSize,
			SlowBufferSize:   aggregator.DefaultSlowBufferSize,
		},
		Notify: NotifyConfig{
			Log: true,
			Webhook: WebhookConfig{
				Timeout:          Duration(webhook.Timeout),
				RatePerSecond:    webhook.RatePerSecond,
				Burst:            webhook.Burst,
				FailureThreshold: webhook.FailureThreshold,
				OpenTimeout:      Duration(webhook.OpenTimeout),
			},
		},
	}
	for _, pt := range cache.DefaultPathTTLs() {
		cfg.Cache.PathTTLs = append(cfg.Cache.PathTTLs, PathTTLConfig{Prefix: pt.Prefix, TTL: Duration(pt.TTL)})
	}
	return cfg
}
