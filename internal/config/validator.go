package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vyrodovalexey/avaforum/internal/ratelimit"
	"github.com/vyrodovalexey/avaforum/internal/store"
	"github.com/vyrodovalexey/avaforum/internal/util"
)

var validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

var validLogFormats = map[string]bool{"json": true, "console": true}

// ValidationErrors collects every problem found in a configuration.
type ValidationErrors []*util.ConfigError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// Unwrap exposes the individual errors to errors.Is and errors.As.
func (e ValidationErrors) Unwrap() []error {
	out := make([]error, len(e))
	for i, err := range e {
		out[i] = err
	}
	return out
}

type validator struct {
	errs ValidationErrors
}

func (v *validator) add(field, format string, args ...any) {
	v.errs = append(v.errs, util.NewConfigError(field, fmt.Sprintf(format, args...)))
}

// ValidateConfig checks cfg and returns ValidationErrors listing every
// problem, or nil.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return ValidationErrors{util.NewConfigError("", "configuration is nil")}
	}

	v := &validator{}
	v.validateServer(&cfg.Server)
	v.validateLog(&cfg.Log)
	v.validateTracing(&cfg.Tracing)
	v.validateStore(&cfg.Store)
	v.validateRateLimit(&cfg.RateLimit)
	v.validateCache(&cfg.Cache)
	v.validatePipeline(&cfg.Pipeline)
	v.validateAuth(&cfg.Auth)
	v.validateNotify(&cfg.Notify)

	if len(v.errs) > 0 {
		return v.errs
	}
	return nil
}

func (v *validator) validateServer(c *ServerConfig) {
	if c.Address == "" {
		v.add("server.address", "is required")
	}
	if c.ShutdownTimeout < 0 {
		v.add("server.shutdownTimeout", "must not be negative")
	}
}

func (v *validator) validateLog(c *LogConfig) {
	if c.Level != "" && !validLogLevels[strings.ToLower(c.Level)] {
		v.add("log.level", "unknown level %q", c.Level)
	}
	if c.Format != "" && !validLogFormats[strings.ToLower(c.Format)] {
		v.add("log.format", "unknown format %q", c.Format)
	}
}

func (v *validator) validateTracing(c *TracingConfig) {
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		v.add("tracing.samplingRate", "must be between 0 and 1")
	}
	if c.Enabled && c.OTLPEndpoint == "" {
		v.add("tracing.otlpEndpoint", "is required when tracing is enabled")
	}
}

func (v *validator) validateStore(c *StoreConfig) {
	switch c.Backend {
	case "", store.BackendMemory:
		if c.MaxEntries < 0 {
			v.add("store.maxEntries", "must not be negative")
		}
	case store.BackendRedis:
		if c.Redis.URL == "" {
			v.add("store.redis.url", "is required for the redis backend")
		} else if u, err := url.Parse(c.Redis.URL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			v.add("store.redis.url", "must be a redis:// or rediss:// URL")
		}
	default:
		v.add("store.backend", "unknown backend %q", c.Backend)
	}
}

func (v *validator) validateRateLimit(c *RateLimitConfig) {
	if !c.Enabled {
		return
	}
	switch ratelimit.Mode(c.Mode) {
	case "", ratelimit.ModeCalendar, ratelimit.ModeRolling:
	default:
		v.add("rateLimit.mode", "unknown mode %q", c.Mode)
	}
	if err := c.Limits().Validate(); err != nil {
		v.add("rateLimit", "%s", err.Error())
	}
	for i, p := range c.BypassPrefixes {
		if !strings.HasPrefix(p, "/") {
			v.add(fmt.Sprintf("rateLimit.bypassPrefixes[%d]", i), "must start with /")
		}
	}
}

func (v *validator) validateCache(c *CacheConfig) {
	if !c.Enabled {
		return
	}
	if c.DefaultTTL < 0 {
		v.add("cache.defaultTTL", "must not be negative")
	}
	if c.MaxTTL <= 0 {
		v.add("cache.maxTTL", "must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		v.add("cache.maxBodyBytes", "must be positive")
	}
	for i, pt := range c.PathTTLs {
		field := fmt.Sprintf("cache.pathTTLs[%d]", i)
		if !strings.HasPrefix(pt.Prefix, "/") {
			v.add(field+".prefix", "must start with /")
		}
		if pt.TTL <= 0 {
			v.add(field+".ttl", "must be positive")
		}
	}
}

func (v *validator) validatePipeline(c *PipelineConfig) {
	if c.QueryThreshold <= 0 {
		v.add("pipeline.queryThreshold", "must be positive")
	}
	if c.CommandThreshold <= 0 {
		v.add("pipeline.commandThreshold", "must be positive")
	}
	if c.OtherThreshold <= 0 {
		v.add("pipeline.otherThreshold", "must be positive")
	}
	if c.LatencyPoolSize < 0 {
		v.add("pipeline.latencyPoolSize", "must not be negative")
	}
	if c.SlowBufferSize < 0 {
		v.add("pipeline.slowBufferSize", "must not be negative")
	}
}

func (v *validator) validateAuth(c *AuthConfig) {
	if c.JWTSecret != "" && c.JWKSURL != "" {
		v.add("auth", "jwtSecret and jwksURL are mutually exclusive")
	}
	if c.JWKSURL != "" {
		if u, err := url.Parse(c.JWKSURL); err != nil || u.Scheme == "" || u.Host == "" {
			v.add("auth.jwksURL", "must be an absolute URL")
		}
	}
	if c.ClockSkew < 0 {
		v.add("auth.clockSkew", "must not be negative")
	}
}

func (v *validator) validateNotify(c *NotifyConfig) {
	if c.Webhook.URL == "" {
		return
	}
	if u, err := url.Parse(c.Webhook.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		v.add("notify.webhook.url", "must be an http or https URL")
	}
	if c.Webhook.RatePerSecond < 0 {
		v.add("notify.webhook.ratePerSecond", "must not be negative")
	}
}
