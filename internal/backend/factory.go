package backend

import (
	"context"
	"fmt"
	"log/slog"

	applog "fintrix/internal/log"
	"fintrix/internal/storage"
	"fintrix/internal/storage/postgres"
)

// DefaultFactory opens SQLite or Postgres stores, running migrations first.
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger.With(applog.FieldComponent, applog.ComponentBackend),
	}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "location", config.Location())
		return &BackendResult{Store: repo, Cleanup: repo.Close}, nil

	case PostgresBackend:
		store, err := postgres.Open(ctx, config.DatabaseURL, config.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres store: %w", err)
		}
		f.logger.Info("Initialized Postgres backend",
			"location", config.Location(),
			"max_conns", config.MaxConns)
		return &BackendResult{Store: store, Cleanup: store.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}
