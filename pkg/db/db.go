package db

import (
	"context"
	"fmt"

	"github.com/smallbiznis/saasops/internal/config"
	"github.com/smallbiznis/saasops/internal/observability/logger"
	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormprometheus "gorm.io/plugin/prometheus"
)

type Params struct {
	fx.In

	Lifecycle  fx.Lifecycle `optional:"true"`
	Config     config.Config
	Log        *zap.Logger
	GormLogger logger.GormLoggerConfig `optional:"true"`
}

// NewDB opens the ledger database and applies pool limits and plugins.
func NewDB(p Params) (*gorm.DB, error) {
	cfg := ConfigFrom(p.Config)
	gormLoggerCfg := p.GormLogger
	if gormLoggerCfg == (logger.GormLoggerConfig{}) {
		gormLoggerCfg = logger.DefaultGormLoggerConfig()
	}
	return Open(p.Lifecycle, cfg, p.Config.AppName, gormLoggerCfg, p.Log)
}

// Open connects using cfg. lc may be nil for one-shot commands.
func Open(lc fx.Lifecycle, cfg Config, appName string, gormLoggerCfg logger.GormLoggerConfig, log *zap.Logger) (*gorm.DB, error) {
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 logger.NewGormLogger(gormLoggerCfg),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Type, err)
	}

	if cfg.Tracing {
		if err := conn.Use(otelgorm.NewPlugin(otelgorm.WithDBName(cfg.Name))); err != nil {
			return nil, fmt.Errorf("register tracing plugin: %w", err)
		}
	}
	if cfg.Metrics {
		if err := conn.Use(gormprometheus.New(gormprometheus.Config{
			DBName:          cfg.Name,
			RefreshInterval: 15,
			Labels:          map[string]string{"service": appName},
		})); err != nil {
			return nil, fmt.Errorf("register metrics plugin: %w", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.Type == TypeSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return sqlDB.PingContext(ctx)
			},
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("closing database")
				}
				return sqlDB.Close()
			},
		})
	}

	if log != nil {
		log.Info("database configured",
			zap.String("type", cfg.Type),
			zap.Bool("tracing", cfg.Tracing),
			zap.Bool("metrics", cfg.Metrics),
		)
	}
	return conn, nil
}
