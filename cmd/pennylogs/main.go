package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"pennylogs/internal/cli"
	apphttp "pennylogs/internal/http"
	applog "pennylogs/internal/log"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentApp)
	logger.Info("Starting pennylogs", "backend", cfg.DataBackend, "policy", cfg.RollForwardPolicy)

	b := cli.InitBackend(context.Background(), logger, cfg)

	srv, err := apphttp.NewServer(":"+cfg.Port, b, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             applog.Wrap(logger, applog.ComponentHTTP),
	})
	if err != nil {
		logger.Error("Failed to configure HTTP server", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := b.Close(); err != nil {
			logger.Error("Backend close error", "error", err)
		}
	})

	logger.Info("Listening", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		_ = b.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
