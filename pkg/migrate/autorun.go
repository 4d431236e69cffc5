package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/mesa-backend/pkg/config"
	"github.com/angelmondragon/mesa-backend/pkg/db"
	"github.com/angelmondragon/mesa-backend/pkg/logger"
)

// MaybeRunDev brings the schema up to date at boot. Postgres only runs goose
// in dev with MESA_AUTO_MIGRATE set; the sqlite driver always gets its schema.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	sqlDB, err := client.SQL()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	if cfg.DB.Driver == db.DriverSQLite {
		logg.Info(logg.WithField(ctx, "driver", cfg.DB.Driver), "applying sqlite schema")
		return ApplySQLiteSchema(ctx, sqlDB)
	}

	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": embeddedDir})
	logg.Info(ctx, "running goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "goose migrations completed")
	return nil
}
