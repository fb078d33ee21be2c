package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"questlog/internal/server/config"
	"questlog/internal/server/storage"
	"questlog/internal/server/storage/postgres"
	"questlog/internal/server/storage/sqlite"
)

// connectBackoff is the first retry delay while waiting for the database.
var connectBackoff = 500 * time.Millisecond

// OpenStore opens the configured backend, waits for it to answer a ping
// and applies migrations when DB_AUTO_MIGRATE is set.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	store, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := waitForStore(ctx, store, cfg, logger); err != nil {
		_ = store.Close()
		return nil, err
	}

	if cfg.DBAutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info("migrations applied", "driver", cfg.DBDriver)
	}
	return store, nil
}

func openBackend(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		return sqlite.Open(cfg.DBURL)
	case config.DriverPostgres:
		return postgres.Open(ctx, postgres.Options{
			DSN:                 cfg.PostgresDSN(),
			User:                cfg.DBUser,
			Password:            cfg.DBPassword,
			MaxConns:            cfg.DBMaxPoolSize,
			OverrideCredentials: !cfg.DSNHasUser(),
		})
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.DBDriver)
	}
}

func waitForStore(ctx context.Context, store storage.Store, cfg *config.Config, logger *slog.Logger) error {
	backoff := retry.WithMaxRetries(cfg.DBConnectRetries, retry.NewExponential(connectBackoff))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, cfg.DBQueryTimeout)
		defer cancel()

		if err := store.Ping(pingCtx); err != nil {
			logger.Warn("database not reachable", "driver", cfg.DBDriver, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("connect to %s after %d attempt(s): %w", cfg.DBDriver, attempt, err)
	}
	return nil
}
