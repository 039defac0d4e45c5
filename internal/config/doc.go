// Package config provides the configuration model and loading for the
// forum server.
//
// # Features
//
//   - YAML configuration file loading
//   - Environment variable substitution with ${VAR:-default} syntax
//   - Defaults for every omitted field
//   - Validation with aggregated error reporting
//   - File watching for hot reload of rate-limit settings
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("avaforum.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # File Watching
//
//	watcher, err := config.NewWatcher(path, func(cfg *config.Config) {
//	    limiter.SetLimits(cfg.RateLimit.Limits())
//	}, config.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = watcher.Start(ctx)
package config
