package cli

import (
	"context"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/saasops/internal/arr"
	arrdomain "github.com/smallbiznis/saasops/internal/arr/domain"
	"github.com/smallbiznis/saasops/internal/clock"
	"github.com/smallbiznis/saasops/internal/config"
	"github.com/smallbiznis/saasops/internal/ledger"
	"github.com/smallbiznis/saasops/internal/observability"
	"github.com/smallbiznis/saasops/internal/observability/logger"
	"github.com/smallbiznis/saasops/internal/observability/metrics"
	"github.com/smallbiznis/saasops/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

const stopTimeout = 10 * time.Second

// newApp wires the infrastructure shared by every command. Logs go to
// stderr so report output on stdout stays machine readable.
func newApp(opts ...fx.Option) *fx.App {
	base := []fx.Option{
		infraOptions(),
		fx.Decorate(decorateLoggerConfig),
		fxLogger(),
	}
	return fx.New(append(base, opts...)...)
}

func infraOptions() fx.Option {
	return fx.Options(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,
		fx.Decorate(decorateConfig),
	)
}

func decorateConfig(cfg config.Config) config.Config {
	if path := strings.TrimSpace(reportingConfig); path != "" {
		cfg.ReportingConfigPath = path
	}
	return cfg
}

func decorateLoggerConfig(cfg logger.Config) logger.Config {
	cfg.Output = "stderr"
	if !verbose {
		cfg.Level = "warn"
	}
	return cfg
}

func fxLogger() fx.Option {
	if !verbose {
		return fx.NopLogger
	}
	return fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
		return &fxevent.ZapLogger{Logger: log}
	})
}

// runApp starts an app for the duration of fn.
func runApp(ctx context.Context, app *fx.App, fn func(ctx context.Context) error) error {
	if err := app.Err(); err != nil {
		return err
	}
	if err := app.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
		defer cancel()
		_ = app.Stop(stopCtx)
	}()
	return fn(ctx)
}

// withARRService runs fn against the report service and pushes the run's
// report metrics when a push target is configured.
func withARRService(ctx context.Context, fn func(ctx context.Context, svc arrdomain.Service) error) error {
	var (
		svc    arrdomain.Service
		pusher metrics.Pusher
		log    *zap.Logger
	)
	app := newApp(
		ledger.Module,
		arr.Module,
		fx.Provide(metrics.NewPusher),
		fx.Populate(&svc, &pusher, &log),
	)
	return runApp(ctx, app, func(ctx context.Context) error {
		err := fn(ctx, svc)
		if pusher != nil {
			if pushErr := pusher.Push(context.WithoutCancel(ctx), prometheus.DefaultGatherer); pushErr != nil {
				log.Warn("push report metrics failed", zap.Error(pushErr))
			}
		}
		return err
	})
}

