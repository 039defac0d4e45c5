package main

import (
	"github.com/vyrodovalexey/avaforum/internal/config"
	"github.com/vyrodovalexey/avaforum/internal/observability"
)

// applyConfig applies the reloadable settings of cfg: the rate-limit caps
// and bypass prefixes. Everything else takes effect on restart.
func applyConfig(app *application, cfg *config.Config, logger observability.Logger) {
	if app.rateLimiter == nil {
		logger.Info("configuration reloaded, rate limiting disabled at startup; nothing to apply")
		return
	}
	if !cfg.RateLimit.Enabled {
		logger.Warn("disabling rate limiting requires a restart")
		return
	}

	app.rateLimiter.SetLimits(cfg.RateLimit.Limits())
	app.rateLimiter.SetBypassPrefixes(cfg.RateLimit.BypassPrefixes)

	logger.Info("configuration reloaded",
		observability.Int("per_minute", cfg.RateLimit.PerMinute),
		observability.Int("per_hour", cfg.RateLimit.PerHour),
		observability.Int("bypass_prefixes", len(cfg.RateLimit.BypassPrefixes)),
	)
}
