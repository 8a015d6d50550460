package main

import (
	"context"
	"errors"
	"os"
	"time"

	"bottega/internal/aggregate"
	"bottega/internal/backend"
	"bottega/internal/cli"
	"bottega/internal/log"
	"bottega/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentWorker)
	logger.Info("Starting bottega-worker")

	cfg := cli.LoadAndValidateStorageConfig(logger)

	// The API process seeds; the worker only reads.
	result, factory := cli.OpenBackend(context.Background(), logger, cfg, func(b *backend.Config) {
		b.Seed = false
		b.RequireBroker = true
	})
	defer result.Cleanup()

	writer, err := factory.CreateSummaryWriter(context.Background(), backend.Config{SheetsEnabled: cfg.SheetsEnabled()})
	if err != nil {
		logger.Error("Failed to initialize summary exporter", "error", err)
		os.Exit(1)
	}

	exporter := worker.NewExportWorker(aggregate.New(result.Store), writer)
	reconciler := worker.NewReconciler(exporter, worker.ReconcilerConfig{
		PollInterval:    cfg.ExportRetryInterval,
		RefreshInterval: cfg.ExportRefreshInterval,
		MaxRetries:      cfg.ExportMaxRetries,
	})
	exporter.WithRetrier(reconciler)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := reconciler.Stop(ctx); err != nil {
			logger.Warn("Reconciler did not stop cleanly", "error", err)
		}
		if stats := reconciler.Stats(); stats.Pending+stats.Failed > 0 {
			logger.Warn("Unexported months left behind", "pending", stats.Pending, "failed", stats.Failed, "periods", stats.Periods)
		}
	})

	// The first pass also catches up on events missed while down.
	if err := reconciler.Start(ctx); err != nil {
		logger.Error("Failed to start export reconciler", "error", err)
		os.Exit(1)
	}

	if err := result.Broker.ConsumeLedgerChanged(ctx, exporter.HandleLedgerChanged); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
