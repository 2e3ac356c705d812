// Package backend opens the ledger store selected by DATA_BACKEND.
package backend

import (
	"context"
	"fmt"
	"net/url"

	"fintrix/internal/config"
	"fintrix/internal/ledger"
)

// BackendType names a store implementation.
type BackendType string

const (
	SQLiteBackend   BackendType = "sqlite"
	PostgresBackend BackendType = "postgres"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, PostgresBackend:
		return true
	default:
		return false
	}
}

// CleanupFunc releases the store's connections.
type CleanupFunc func() error

// BackendResult is an open store and the function that closes it.
type BackendResult struct {
	Store   ledger.Store
	Cleanup CleanupFunc
}

// Factory opens stores.
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config is the subset of the application config a store needs.
type Config struct {
	Type BackendType

	SQLiteDBPath string

	DatabaseURL string
	MaxConns    int32
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:         backendType,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		DatabaseURL:  appConfig.DatabaseURL,
		MaxConns:     int32(appConfig.DatabaseMaxConns),
	}, nil
}

func (c Config) Validate() error {
	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case PostgresBackend:
		if c.DatabaseURL == "" {
			return fmt.Errorf("database URL is required for postgres backend")
		}
		if _, err := url.Parse(c.DatabaseURL); err != nil {
			return fmt.Errorf("invalid database URL: %w", err)
		}
	default:
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}
	return nil
}

// Location describes where the store lives, with any password in the
// database URL masked.
func (c Config) Location() string {
	if c.Type == SQLiteBackend {
		return c.SQLiteDBPath
	}
	u, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return "<unparseable>"
	}
	return u.Redacted()
}
