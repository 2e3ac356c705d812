// Package cli provides common initialization shared by cmd/fintrix,
// cmd/recurring-worker and cmd/budget-worker.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fintrix/internal/amqp"
	"fintrix/internal/backend"
	"fintrix/internal/config"
	"fintrix/internal/jobs"
	"fintrix/internal/jobs/inmemory"
	applog "fintrix/internal/log"
	"fintrix/internal/notify"

	"github.com/joho/godotenv"
)

// inMemoryBuffer sizes the fallback queue. The scheduler blocks once it is
// full, which is the backpressure we want.
const inMemoryBuffer = 1000

// SetupLogger initializes structured logging at the given level and sets it
// as the default logger.
func SetupLogger(level string) *slog.Logger {
	cfg := applog.DefaultConfig()
	cfg.Level = applog.ParseLevel(level)
	if os.Getenv("LOG_FORMAT") == "json" {
		cfg.Format = "json"
	}
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger.Logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitStore opens the configured backend. Returns the result or exits the
// process on failure.
func InitStore(ctx context.Context, logger *slog.Logger, cfg *config.Config) *backend.BackendResult {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to initialize data backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}
	return result
}

// RetryPolicy builds the unit retry policy from configuration.
func RetryPolicy(cfg *config.Config) jobs.RetryPolicy {
	policy := jobs.DefaultRetryPolicy()
	if cfg.RecurringMaxAttempts > 0 {
		policy.MaxAttempts = cfg.RecurringMaxAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		policy.BaseDelay = cfg.RetryBaseDelay
	}
	return policy
}

// Queue is the fan-out transport: either the AMQP client or the in-process
// queue, which implement both sides.
type Queue interface {
	jobs.Publisher
	jobs.Consumer
}

// InitQueue selects AMQP when a URL is configured and the in-process queue
// otherwise.
func InitQueue(logger *slog.Logger, cfg *config.Config) (Queue, error) {
	policy := RetryPolicy(cfg)
	if cfg.AMQPURL == "" {
		logger.Info("AMQP not configured, using in-memory queue", "workers", cfg.RecurringWorkers)
		return inmemory.NewQueue(inMemoryBuffer, cfg.RecurringWorkers, policy, logger), nil
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, policy, cfg.RecurringWorkers)
	if err != nil {
		return nil, fmt.Errorf("connect AMQP: %w", err)
	}
	return client, nil
}

// InitNotifier builds the configured alert notifier.
func InitNotifier(ctx context.Context, logger *slog.Logger, cfg *config.Config) (notify.Notifier, error) {
	switch cfg.Notifier {
	case "gmail":
		return notify.NewGmailNotifier(ctx, notify.GmailConfig{
			Sender:     cfg.GmailSender,
			ClientJSON: cfg.GoogleOAuthClientJSON,
			ClientFile: cfg.GoogleOAuthClientFile,
			TokenJSON:  cfg.GoogleOAuthTokenJSON,
			TokenFile:  cfg.GoogleOAuthTokenFile,
		})
	case "log", "":
		return notify.NewLogNotifier(logger), nil
	default:
		return nil, fmt.Errorf("unknown notifier %q", cfg.Notifier)
	}
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has finished or timed out.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-finished:
			logger.Info("Shutdown complete")
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is done.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
