package main

import (
	"context"
	"errors"
	"os"
	"time"

	"pennylogs/internal/cli"
	applog "pennylogs/internal/log"
	gsheet "pennylogs/internal/sheets/google"
	"pennylogs/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentWorker)
	if err := cfg.ValidateExport(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Starting export-worker", "spreadsheet_id", cfg.GoogleSpreadsheetID, "sheet", cfg.GoogleSheetName)

	b := cli.InitBackend(context.Background(), logger, cfg)

	exporter, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
		OAuthClientFile:    cfg.GoogleOAuthClientFile,
		OAuthTokenFile:     cfg.GoogleOAuthTokenFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets exporter", "error", err)
		_ = b.Close()
		os.Exit(1)
	}
	b.Caches.Register(exporter.Cache())

	w := worker.NewExportWorker(b.Store, exporter)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := b.Close(); err != nil {
			logger.Error("Backend close error", "error", err)
		}
	})

	// Events published while the worker was down are still queued; the sweep
	// covers expenses created before AMQP was configured.
	logger.Info("Performing startup export sweep")
	if res, err := w.ExportAll(ctx, b.Store); err != nil {
		logger.Error("Startup export sweep failed", "error", err)
	} else {
		logger.Info("Startup export sweep complete", "exported", res.Exported, "skipped", res.Skipped, "failed", res.Failed)
	}

	if err := b.AMQP.Consume(ctx, w.HandleEvent); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		_ = b.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Export-worker stopped")
}
