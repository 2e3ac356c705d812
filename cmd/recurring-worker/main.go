package main

import (
	"context"
	"os"
	"time"

	"fintrix/internal/cli"
	"fintrix/internal/services"
	"fintrix/internal/throttle"
	"fintrix/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	logger.Info("Starting recurring-worker")
	cfg := cli.LoadAndValidateConfig(logger)

	result := cli.InitStore(context.Background(), logger, cfg)
	store := result.Store

	queue, err := cli.InitQueue(logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize queue", "error", err)
		os.Exit(1)
	}

	limiter := throttle.New(throttle.Config{
		Limit:  cfg.UserThrottleLimit,
		Window: cfg.UserThrottleWindow,
	})
	scheduler := services.NewRecurringScheduler(store, queue, cfg.RecurringBatchSize)
	handler := worker.NewRecurringHandler(services.NewRecurringProcessor(store), limiter)

	periodic := worker.NewPeriodic(worker.PeriodicConfig{
		Name:       "recurring-scheduler",
		Interval:   cfg.RecurringInterval,
		RunOnStart: true,
	}, func(ctx context.Context) error {
		n, err := scheduler.Run(ctx)
		if err != nil {
			return err
		}
		logger.Info("Recurring scan complete", "published", n, "next_scan", time.Now().Add(cfg.RecurringInterval).Format(time.RFC3339))
		return nil
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := periodic.Stop(ctx); err != nil {
			logger.Warn("Scheduler stop error", "error", err)
		}
		if err := queue.Stop(ctx); err != nil {
			logger.Warn("Queue stop error", "error", err)
		}
		if err := queue.Close(); err != nil {
			logger.Warn("Queue close error", "error", err)
		}
		limiter.Stop()
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Store cleanup error", "error", err)
			}
		}
	})

	// Both start calls return once their goroutines are running; the
	// group only collects startup errors.
	var g errgroup.Group
	g.Go(func() error {
		return queue.Start(ctx, handler.Handle)
	})
	g.Go(func() error {
		return periodic.Start(ctx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("Failed to start recurring-worker", "error", err)
		os.Exit(1)
	}

	logger.Info("Recurring-worker running",
		"interval", cfg.RecurringInterval,
		"workers", cfg.RecurringWorkers,
		"user_limit", cfg.UserThrottleLimit)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker stopped")
}
