// Package main is the entry point for the avaforum API server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/avaforum/internal/config"
	"github.com/vyrodovalexey/avaforum/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	logger := initLogger(flags, observability.DefaultLogConfig())
	cfg, configPath := loadAndValidateConfig(flags.configPath, logger)

	// Flags win over the file; the file wins over the defaults.
	logger = initLogger(flags, cfg.Log.Observability())
	defer func() { _ = logger.Sync() }()

	app, err := initApplication(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", observability.Error(err))
	}

	run(app, configPath, logger)
}

// parseFlags parses command line flags.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AVAFORUM_CONFIG_PATH", "configs/avaforum.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("AVAFORUM_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("AVAFORUM_LOG_FORMAT", ""),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("avaforum version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// logConfig overlays the non-empty flags on base.
func logConfig(flags cliFlags, base observability.LogConfig) observability.LogConfig {
	if flags.logLevel != "" {
		base.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		base.Format = flags.logFormat
	}
	return base
}

// initLogger initializes the logger.
func initLogger(flags cliFlags, base observability.LogConfig) observability.Logger {
	logger, err := observability.NewLogger(logConfig(flags, base))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

// loadConfig resolves and loads the configuration file. A missing file
// yields the defaults and an empty path, which disables hot reload.
func loadConfig(path string) (*config.Config, string, error) {
	resolved, err := config.ResolveConfigPath(path)
	if err != nil {
		return config.DefaultConfig(), "", nil //nolint:nilerr // missing file means defaults
	}

	cfg, err := config.LoadConfig(resolved)
	if err != nil {
		return nil, "", err
	}
	if err := config.ValidateConfig(cfg); err != nil {
		return nil, "", err
	}
	return cfg, resolved, nil
}

// loadAndValidateConfig loads the configuration or exits.
func loadAndValidateConfig(path string, logger observability.Logger) (*config.Config, string) {
	logger.Info("starting avaforum",
		observability.String("version", version),
		observability.String("config", path),
	)

	cfg, resolved, err := loadConfig(path)
	if err != nil {
		logger.Fatal("failed to load configuration", observability.Error(err))
	}
	if resolved == "" {
		logger.Warn("configuration file not found, using defaults",
			observability.String("config", path))
	}

	logger.Info("configuration loaded",
		observability.String("address", cfg.Server.Address),
		observability.String("store", cfg.Store.Backend),
		observability.Bool("rate_limit", cfg.RateLimit.Enabled),
		observability.Bool("response_cache", cfg.Cache.Enabled),
		observability.Bool("auth", cfg.Auth.Enabled()),
	)

	return cfg, resolved
}
