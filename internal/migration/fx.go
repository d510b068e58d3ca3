package migration

import (
	"github.com/smallbiznis/creatorpay/internal/config"
	"github.com/smallbiznis/creatorpay/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}

		if err := RunMigrations(sqlDB); err != nil {
			return err
		}

		if err := seed.EnsureReferenceData(conn); err != nil {
			return err
		}
		if cfg.Bootstrap.EnsureAdminAPIKey {
			return seed.EnsureBootstrapAPIKey(conn)
		}
		return nil
	}),
)
