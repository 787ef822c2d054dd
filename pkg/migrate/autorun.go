package migrate

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/angelmondragon/donations-backend/pkg/config"
	"github.com/angelmondragon/donations-backend/pkg/db"
	"github.com/angelmondragon/donations-backend/pkg/logger"
)

// MaybeRunDev brings a local record store up to date on boot. It only acts
// in dev with auto-migrate switched on; deployed environments run
// cmd/migrate as a release step instead.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || client == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	if err := ValidateFS(Embedded()); err != nil {
		return fmt.Errorf("embedded migrations invalid: %w", err)
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql handle: %w", err)
	}

	dialect := Dialect(client.Driver() == db.DriverSQLite)
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dialect": dialect})
		logg.Info(ctx, "applying pending migrations")
	}

	if err := Run(ctx, sqlDB, dialect, DefaultDir, "up"); err != nil {
		return err
	}

	version, err := goose.GetDBVersionContext(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "schema_version", version), "migrations applied")
	}
	return nil
}
