package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/saasops/internal/arr"
	arrdomain "github.com/smallbiznis/saasops/internal/arr/domain"
	"github.com/smallbiznis/saasops/internal/config"
	"github.com/smallbiznis/saasops/internal/ledger"
	"github.com/smallbiznis/saasops/internal/observability"
	obslogger "github.com/smallbiznis/saasops/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/saasops/internal/observability/metrics"
	obstracing "github.com/smallbiznis/saasops/internal/observability/tracing"
	"github.com/smallbiznis/saasops/internal/ratelimit"
	"github.com/smallbiznis/saasops/internal/report"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	ledger.Module,
	arr.Module,
	report.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := strings.TrimSpace(cfg.HTTPAddr)
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Params struct {
	fx.In

	Engine     *gin.Engine
	Cfg        config.Config
	ARRSvc     arrdomain.Service
	Renderer   *report.Renderer
	Limiter    *ratelimit.ReportLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics      `optional:"true"`
}

type Server struct {
	engine     *gin.Engine
	cfg        config.Config
	arrSvc     arrdomain.Service
	renderer   *report.Renderer
	limiter    *ratelimit.ReportLimiter
	obsMetrics *obsmetrics.Metrics
}

func NewServer(p Params) *Server {
	svc := &Server{
		engine:     p.Engine,
		cfg:        p.Cfg,
		arrSvc:     p.ARRSvc,
		renderer:   p.Renderer,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}

	svc.RegisterAPIRoutes()
	return svc
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(s.ReportRateLimit())

	arrGroup := api.Group("/arr")
	{
		arrGroup.GET("/table", s.ARRTable)
		arrGroup.GET("/customers", s.CustomerARR)
		arrGroup.GET("/periods", s.CustomerARRByPeriod)
		arrGroup.GET("/new", s.NewARR)
		arrGroup.GET("/changes", s.ARRChanges)
		arrGroup.GET("/series", s.ARRSeries)
	}

	api.GET("/carr/customers", s.CustomerCARR)
	api.GET("/bookings", s.Bookings)
	api.GET("/bookings/summary", s.BookingsSummary)
	api.GET("/revenue", s.Revenue)
	api.GET("/mrr/metrics", s.MRRMetrics)
	api.GET("/retention/ttm", s.Retention)

	export := s.engine.Group("/api/v1/export")
	export.Use(s.ExportRateLimit())
	export.GET("/report.pdf", s.ExportReport)
}
