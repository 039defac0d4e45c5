package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/avaforum/internal/config"
	"github.com/vyrodovalexey/avaforum/internal/observability"
)

// run starts the server and blocks until a shutdown signal arrives.
func run(app *application, configPath string, logger observability.Logger) {
	serveErr, err := startServer(app, logger)
	if err != nil {
		fatalWithSync(logger, "failed to start server", observability.Error(err))
		return
	}

	watcher := startConfigWatcher(app, configPath, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", observability.String("signal", sig.String()))
	case err := <-serveErr:
		logger.Error("server stopped unexpectedly", observability.Error(err))
	}

	shutdown(app, watcher, logger)
}

// startServer binds the listener and serves in the background. Bind
// errors are returned synchronously; serve errors arrive on the channel.
func startServer(app *application, logger observability.Logger) (<-chan error, error) {
	if err := app.server.Listen(); err != nil {
		return nil, err
	}
	logger.Info("server listening", observability.String("address", app.server.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		if err := app.server.Serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	return serveErr, nil
}

// startConfigWatcher watches the configuration file for changes. It
// returns nil when running on defaults or when the watcher fails to start.
func startConfigWatcher(app *application, configPath string, logger observability.Logger) *config.Watcher {
	if configPath == "" {
		return nil
	}

	watcher, err := config.NewWatcher(configPath, func(cfg *config.Config) {
		applyConfig(app, cfg, logger)
	}, config.WithLogger(logger))
	if err != nil {
		logger.Warn("failed to create config watcher, hot reload disabled", observability.Error(err))
		return nil
	}

	if err := watcher.Start(context.Background()); err != nil {
		logger.Warn("failed to start config watcher, hot reload disabled", observability.Error(err))
		return nil
	}
	return watcher
}

// shutdown stops the components in dependency order: no new requests,
// then pending notifications, then the stores and the tracer.
func shutdown(app *application, watcher *config.Watcher, logger observability.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), app.config.Server.ShutdownTimeout.Duration())
	defer cancel()

	if watcher != nil {
		_ = watcher.Stop()
	}

	if err := app.server.Stop(ctx); err != nil {
		logger.Error("failed to stop server gracefully", observability.Error(err))
	}

	app.release(ctx, logger)

	logger.Info("avaforum stopped")
}

// fatalWithSync flushes the logger before exiting.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	_ = logger.Sync()
	logger.Fatal(msg, fields...)
}
