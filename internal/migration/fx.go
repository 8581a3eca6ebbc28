package migration

import (
	"context"

	"github.com/smallbiznis/saasops/internal/config"
	"github.com/smallbiznis/saasops/internal/seed"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, seeder *seed.Seeder, log *zap.Logger) error {
		ctx := context.Background()
		if err := Up(ctx, conn); err != nil {
			return err
		}
		if !cfg.SeedOnStart {
			return nil
		}
		result, err := seeder.Run(ctx, nil)
		if err != nil {
			return err
		}
		log.Info("fixtures seeded",
			zap.Strings("inserted", result.Inserted),
			zap.Strings("skipped", result.Skipped),
		)
		return nil
	}),
)
