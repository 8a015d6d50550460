package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"bottega/internal/auth"
	"bottega/internal/cache"
	"bottega/internal/cli"
	apphttp "bottega/internal/http"
	"bottega/internal/log"
	"bottega/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	result, _ := cli.OpenBackend(context.Background(), logger, cfg, nil)
	defer result.Cleanup()

	guard, err := auth.NewGuard(result.Store, auth.Config{
		Secret:       cfg.JWTSecret,
		TTL:          cfg.TokenTTL,
		RefreshAfter: cfg.TokenRefreshAfter,
	})
	if err != nil {
		logger.Error("Failed to create session guard", "error", err)
		os.Exit(1)
	}

	summaries := cache.NewSummaries(cfg.SummaryCacheSize, cfg.SummaryCacheTTL)
	opts := []services.Option{services.WithSummaryCache(summaries)}
	if result.Broker != nil {
		opts = append(opts, services.WithPublisher(result.Broker))
	}
	ledger := services.NewLedger(result.Store, opts...)

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:                   cfg.Addr(),
		RateLimitPerMinute:     cfg.RateLimitPerMinute,
		LoginAttemptsPerMinute: cfg.LoginRateLimitPerMinute,
		TrustedProxies:         cfg.TrustedProxies,
		SecureCookies:          cfg.SecureCookies,
		Ready:                  result.Ready,
	}, ledger, guard, logger)
	if err != nil {
		logger.Error("Failed to create HTTP server", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
	})
	go cache.Janitor(ctx, time.Minute, summaries)

	logger.Info("Starting bottega server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp_enabled", result.Broker != nil,
		"log_level", cfg.LogLevel)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
