// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/boardkeeper/boardkeeper/internal/clock/system"
	"github.com/boardkeeper/boardkeeper/internal/config"
	"github.com/boardkeeper/boardkeeper/internal/logging"
	"github.com/boardkeeper/boardkeeper/internal/metrics"
	"github.com/boardkeeper/boardkeeper/internal/sources"
	"github.com/boardkeeper/boardkeeper/internal/store"
	"github.com/boardkeeper/boardkeeper/internal/store/memory"
	"github.com/boardkeeper/boardkeeper/internal/store/postgres"
	"github.com/boardkeeper/boardkeeper/internal/wipe"
)

// App holds the shared, long-lived services for the application.
// It is initialized once at startup and passed to the components that need it.
type App struct {
	Config  config.Config
	Logger  *zap.Logger
	Store   store.Store
	Sources *sources.Service
	Engine  *wipe.Engine
}

// NewApp creates and initializes an App from configuration. It is the
// central point for service initialization and fails fast if any critical
// service cannot be constructed.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, "boardkeeper")
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	metrics.Init()

	var backing store.Store
	switch cfg.Store.Provider {
	case "memory":
		logger.Info("using in-memory store")
		backing = memory.New()
	case "postgres":
		logger.Info("using postgres store")
		backing, err = postgres.New(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize postgres store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown store provider: %s", cfg.Store.Provider)
	}

	return &App{
		Config:  cfg,
		Logger:  logger,
		Store:   backing,
		Sources: sources.NewService(backing, system.New(), logger),
		Engine:  wipe.NewEngine(backing, logger),
	}, nil
}

// Close gracefully shuts down the services held by the App.
func (a *App) Close() error {
	var firstErr error
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			firstErr = fmt.Errorf("failed to close store: %w", err)
			a.Logger.Error("store close failed", zap.Error(err))
		}
	}
	if a.Logger != nil {
		_ = a.Logger.Sync()
	}
	return firstErr
}
