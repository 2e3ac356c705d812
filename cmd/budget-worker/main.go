package main

import (
	"context"
	"os"
	"time"

	"fintrix/internal/cache"
	"fintrix/internal/cli"
	"fintrix/internal/core"
	"fintrix/internal/services"
	"fintrix/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting budget-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	result := cli.InitStore(context.Background(), logger, cfg)
	store := result.Store

	notifier, err := cli.InitNotifier(context.Background(), logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize notifier", "error", err, "notifier", cfg.Notifier)
		os.Exit(1)
	}

	users := cache.NewLRUCache[core.User](1000, cfg.UserCacheTTL)
	caches := cache.NewManager()
	caches.Register(users)
	caches.StartCleanup(cfg.UserCacheTTL)

	evaluator := services.NewBudgetAlertEvaluator(store, services.NewUserService(store, users), notifier, cfg.BudgetAlertThreshold)
	periodic := worker.NewPeriodic(worker.PeriodicConfig{
		Name:       "budget-alerts",
		Interval:   cfg.BudgetAlertInterval,
		RunOnStart: true,
	}, func(ctx context.Context) error {
		sent, err := evaluator.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info("Budget evaluation complete", "alerts_sent", sent)
		return nil
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := periodic.Stop(ctx); err != nil {
			logger.Warn("Evaluator stop error", "error", err)
		}
		caches.Stop()
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Store cleanup error", "error", err)
			}
		}
	})

	if err := periodic.Start(ctx); err != nil {
		logger.Error("Failed to start budget evaluator", "error", err)
		os.Exit(1)
	}
	logger.Info("Budget-worker running",
		"interval", cfg.BudgetAlertInterval,
		"threshold_percent", cfg.BudgetAlertThreshold,
		"notifier", cfg.Notifier)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Budget-worker stopped")
}
