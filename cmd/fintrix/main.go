package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"fintrix/internal/cache"
	"fintrix/internal/cli"
	"fintrix/internal/core"
	apphttp "fintrix/internal/http"
	applog "fintrix/internal/log"
	"fintrix/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	result := cli.InitStore(context.Background(), logger, cfg)
	store := result.Store

	users := cache.NewLRUCache[core.User](1000, cfg.UserCacheTTL)
	caches := cache.NewManager()
	caches.Register(users)
	caches.StartCleanup(cfg.UserCacheTTL)

	srv := apphttp.NewServer(":"+cfg.Port, store, apphttp.Services{
		Transactions: services.NewTransactionService(store),
		Accounts:     services.NewAccountService(store),
		Budgets:      services.NewBudgetService(store),
		Users:        services.NewUserService(store, users),
	}, applog.New(applog.Config{
		Level:     applog.ParseLevel(cfg.LogLevel),
		Component: applog.ComponentHTTP,
		Format:    os.Getenv("LOG_FORMAT"),
	}), apphttp.Options{})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		caches.Stop()
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("Store cleanup error", "error", err)
			}
		}
	})

	logger.Info("Starting fintrix API", "port", cfg.Port, "backend", cfg.DataBackend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
