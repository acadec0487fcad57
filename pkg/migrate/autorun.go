package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/taxcredit-backend/pkg/config"
	"github.com/angelmondragon/taxcredit-backend/pkg/logger"
)

type gormProvider interface {
	DB() *gorm.DB
}

// autoRunEnabled reports whether binaries should migrate on boot. Only dev
// environments opt in; staging and prod run cmd/migrate explicitly.
func autoRunEnabled(cfg *config.Config) bool {
	return cfg != nil && cfg.App.IsDev() && cfg.FeatureFlags.AutoMigrate
}

// MaybeRunDev brings the schema up to date from the embedded migrations when
// TAXCREDIT_AUTO_MIGRATE is set in dev.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client gormProvider) error {
	if !autoRunEnabled(cfg) {
		return nil
	}
	if client == nil || client.DB() == nil {
		return fmt.Errorf("auto-migrate: database client is required")
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return upEmbedded(logg.WithField(ctx, "source", "embedded"), logg, sqlDB)
}

func upEmbedded(ctx context.Context, logg *logger.Logger, sqlDB *sql.DB) error {
	started := time.Now()
	logg.Info(ctx, "migrate.autorun_start")
	if err := Run(ctx, sqlDB, "", "up"); err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "duration_ms", time.Since(started).Milliseconds()), "migrate.autorun_done")
	return nil
}
