// Package bootstrap holds the start-up steps shared by every binary: env
// loading, config, logging and the record store.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/donations-backend/pkg/config"
	"github.com/angelmondragon/donations-backend/pkg/db"
	"github.com/angelmondragon/donations-backend/pkg/logger"
	"github.com/angelmondragon/donations-backend/pkg/migrate"
)

// Load reads .env (when present) and the environment, then builds the
// service logger at the configured level.
func Load(service string) (*config.Config, *logger.Logger, error) {
	logg := logger.New(logger.Options{ServiceName: service})
	if err := godotenv.Load(); err != nil {
		logg.Debug(context.Background(), ".env not loaded, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, logg, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = service

	logg = logger.New(logger.Options{
		ServiceName: service,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	return cfg, logg, nil
}

// OpenStore connects the record store and, in dev, applies pending
// migrations. The returned close func logs its own failure.
func OpenStore(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*db.Client, func(), error) {
	client, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		return nil, nil, fmt.Errorf("open record store: %w", err)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			logg.Error(context.Background(), "closing record store", err)
		}
	}
	if err := migrate.MaybeRunDev(ctx, cfg, logg, client); err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("dev migrations: %w", err)
	}
	return client, closeFn, nil
}

// Fatal logs err and exits non-zero.
func Fatal(ctx context.Context, logg *logger.Logger, msg string, err error) {
	logg.Error(ctx, msg, err)
	os.Exit(1)
}
