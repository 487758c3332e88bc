package main

import (
	"context"
	"time"

	"pennylogs/internal/cli"
	applog "pennylogs/internal/log"
)

func main() {
	cfg, logger := cli.Bootstrap(applog.ComponentRecurring)
	logger.Info("Starting recurring-worker",
		"interval", cfg.RollForwardInterval,
		"policy", cfg.RollForwardPolicy,
		"concurrency", cfg.RollForwardConcurrency)

	b := cli.InitBackend(context.Background(), logger, cfg)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(context.Context) {
		if err := b.Close(); err != nil {
			logger.Error("Backend close error", "error", err)
		}
	})

	run := func(now time.Time) {
		res, err := b.Recurring.RollForwardAll(ctx, b.Store, now, cfg.RollForwardConcurrency)
		if err != nil {
			logger.Error("Scheduled roll-forward failed", "error", err)
			return
		}
		logger.Info("Scheduled roll-forward complete",
			"checked", res.Checked,
			"created", res.Created,
			"skipped", res.Skipped,
			"failed", res.Failed,
			"gated", res.Gated,
			"next_check", now.Add(cfg.RollForwardInterval).Format(time.TimeOnly))
	}

	// Catch up on anything missed while the worker was down.
	run(b.Expenses.Now())

	ticker := time.NewTicker(cfg.RollForwardInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cli.WaitForShutdown(ctx, done)
			logger.Info("Recurring-worker stopped")
			return
		case <-ticker.C:
			run(b.Expenses.Now())
		}
	}
}
