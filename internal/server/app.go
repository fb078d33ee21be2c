// Package server wires configuration, storage, the service layer and the
// HTTP API into a runnable questlog server.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"questlog/internal/server/config"
	apihttp "questlog/internal/server/http"
	"questlog/internal/server/metrics"
	"questlog/internal/server/service"
	"questlog/internal/server/storage"
)

const gracefulShutdownTimeout = 5 * time.Second

// NewApp builds the fiber app over an open store. Request contexts derive
// from base.
func NewApp(base context.Context, cfg *config.Config, store storage.Store, logger *slog.Logger) *fiber.App {
	svc := service.New(store.Users(), store.Progress(), service.NewHasher(), logger, cfg.DBQueryTimeout)

	return apihttp.NewFiberApp(svc, store, metrics.New(), logger, apihttp.Options{
		Dev:               cfg.Dev,
		RegisterRateLimit: cfg.RegisterRateLimit,
		LoginRateLimit:    cfg.LoginRateLimit,
		PingTimeout:       cfg.DBQueryTimeout,
		BaseContext:       base,
	})
}

// Run serves until ctx is cancelled, then drains in-flight requests and
// closes the store.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("failed to close storage cleanly", "error", err)
		}
	}()

	// Cancelled once shutdown gives up waiting, aborting straggling queries.
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	app := NewApp(base, cfg, store, logger)

	listenErr := make(chan error, 1)
	go func() {
		logger.Info("questlog server starting",
			"addr", cfg.Addr(),
			"driver", cfg.DBDriver,
			"dev", cfg.Dev,
			"register_rate_limit", cfg.RegisterRateLimit,
			"login_rate_limit", cfg.LoginRateLimit)
		listenErr <- app.Listen(cfg.Addr())
	}()

	select {
	case err := <-listenErr:
		return fmt.Errorf("listen on %s: %w", cfg.Addr(), err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("server forced to shutdown", "error", err)
	}
	cancelBase()

	logger.Info("server exited")
	return nil
}
