package service

import (
	"context"
	"fmt"
	"time"

	arrdomain "github.com/smallbiznis/saasops/internal/arr/domain"
	"github.com/smallbiznis/saasops/internal/arr/engine"
	"github.com/smallbiznis/saasops/internal/clock"
	"github.com/smallbiznis/saasops/internal/config"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
	"github.com/smallbiznis/saasops/internal/observability/logger"
	"github.com/smallbiznis/saasops/internal/observability/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Loader        ledgerdomain.Loader
	Log           *zap.Logger
	Reporting     *config.ReportingConfigHolder
	Clock         clock.Clock            `optional:"true"`
	Metrics       *metrics.Metrics       `optional:"true"`
	ReportMetrics *metrics.ReportMetrics `optional:"true"`
}

// Service answers report queries. Every call loads the ledger and builds a
// fresh ARR table; nothing is kept between calls.
type Service struct {
	loader        ledgerdomain.Loader
	log           *zap.Logger
	reporting     *config.ReportingConfigHolder
	clock         clock.Clock
	metrics       *metrics.Metrics
	reportMetrics *metrics.ReportMetrics
	tracer        trace.Tracer
}

func NewService(p Params) arrdomain.Service {
	c := p.Clock
	if c == nil {
		c = clock.System()
	}
	return &Service{
		loader:        p.Loader,
		log:           p.Log.Named("arr.service"),
		reporting:     p.Reporting,
		clock:         c,
		metrics:       p.Metrics,
		reportMetrics: p.ReportMetrics,
		tracer:        otel.Tracer("saasops/arr"),
	}
}

// build is one loaded ledger and the ARR table derived from it.
type build struct {
	table       *engine.Table
	feed        ledgerdomain.Feed
	report      arrdomain.BuildReport
	cfg         config.ReportingConfig
	ignoreZeros bool
}

func (b *build) meta(extra ...arrdomain.Anomaly) arrdomain.Meta {
	anomalies := make([]arrdomain.Anomaly, 0, len(b.report.Anomalies)+len(extra))
	anomalies = append(anomalies, b.report.Anomalies...)
	anomalies = append(anomalies, extra...)
	if len(anomalies) == 0 {
		anomalies = nil
	}
	return arrdomain.Meta{
		RunID:          b.report.RunID,
		Currency:       b.cfg.Currency,
		ExclusionScope: b.report.ExclusionScope,
		LoadedAt:       b.feed.LoadedAt,
		Anomalies:      anomalies,
	}
}

// run loads, builds and hands the table to fn, recording the outcome under
// the report name.
func (s *Service) run(ctx context.Context, report string, scope arrdomain.Scope, fn func(ctx context.Context, b *build) error) (err error) {
	ctx, span := s.tracer.Start(ctx, "arr."+report)
	start := time.Now()
	defer func() {
		outcome := metrics.ReportOutcomeSuccess
		if err != nil {
			outcome = metrics.ReportOutcomeError
			span.RecordError(err)
			span.SetStatus(codes.Error, metrics.ClassifyReportError(err))
		}
		s.reportMetrics.ObserveRun(report, time.Since(start), err)
		s.metrics.RecordReportRun(ctx, report, outcome)
		span.End()
	}()

	b, err := s.build(ctx, scope)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.String("run_id", b.report.RunID),
		attribute.String("exclusion_scope", string(b.report.ExclusionScope)),
		attribute.Int("arr.rows", b.report.Rows),
	)
	return fn(ctx, b)
}

func (s *Service) build(ctx context.Context, scope arrdomain.Scope) (*build, error) {
	cfg := s.reporting.Get()
	exclusion := scope.Exclusion
	if exclusion == "" {
		exclusion = arrdomain.ExclusionScope(cfg.RenewalExclusion)
	}
	if !exclusion.Valid() {
		return nil, fmt.Errorf("%w: %q", arrdomain.ErrInvalidExclusion, exclusion)
	}

	feed, err := s.loader.Load(ctx, ledgerdomain.Filter{
		CustomerID: scope.CustomerID,
		ContractID: scope.ContractID,
	})
	if err != nil {
		return nil, err
	}
	s.reportMetrics.ObserveLedger(len(feed.Segments), len(feed.Contracts))

	table, report, err := engine.Build(feed.Segments, engine.BuildOptions{
		AllowPartial: cfg.AllowPartial,
		Exclusion:    exclusion,
	})
	if err != nil {
		logger.FromContext(ctx).Error("arr table build failed",
			zap.Int("segments", len(feed.Segments)),
			zap.Error(err),
		)
		return nil, err
	}
	s.reportMetrics.ObserveBuild(report)

	log := logger.WithRun(logger.WithContext(ctx, s.log), report.RunID)
	log.Debug("arr table built",
		zap.Int("rows", report.Rows),
		zap.Int("skipped_non_recurring", report.SkippedNonRecurring),
		zap.Int("adjustments", len(report.Adjustments)),
		zap.String("exclusion_scope", string(report.ExclusionScope)),
	)
	s.logAnomalies(ctx, log, report.Anomalies)

	ignoreZeros := cfg.IgnoreZeros
	if scope.IgnoreZeros != nil {
		ignoreZeros = *scope.IgnoreZeros
	}
	return &build{
		table:       table,
		feed:        feed,
		report:      report,
		cfg:         cfg,
		ignoreZeros: ignoreZeros,
	}, nil
}

func (s *Service) logAnomalies(ctx context.Context, log *zap.Logger, anomalies []arrdomain.Anomaly) {
	counts := make(map[arrdomain.AnomalyKind]int)
	for _, a := range anomalies {
		counts[a.Kind]++
		fields := []zap.Field{
			zap.String("kind", string(a.Kind)),
			zap.String("detail", a.Message),
		}
		if a.SegmentID != 0 {
			fields = append(fields, zap.Int64("segment_id", int64(a.SegmentID)))
		}
		if a.ContractID != 0 {
			fields = append(fields, zap.Int64("contract_id", int64(a.ContractID)))
		}
		if a.Date != nil {
			fields = append(fields, zap.String("date", a.Date.Format(time.DateOnly)))
		}
		log.Warn("arr anomaly", fields...)
	}
	for kind, count := range counts {
		s.metrics.RecordAnomalies(ctx, string(kind), count)
	}
}

func (s *Service) today() time.Time {
	return clock.Today(s.clock)
}

func (s *Service) pointDate(date time.Time) time.Time {
	if date.IsZero() {
		return s.today()
	}
	return engine.Date(date)
}

// rangeBounds defaults a missing end to today and a missing start to the
// first day of the twelve-month window ending at end.
func (s *Service) rangeBounds(req arrdomain.RangeRequest) (time.Time, time.Time, error) {
	end := s.pointDate(req.End)
	start := req.Start
	if start.IsZero() {
		start = time.Date(end.Year(), end.Month()-11, 1, 0, 0, 0, 0, time.UTC)
	} else {
		start = engine.Date(start)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %s before start %s",
			arrdomain.ErrInvalidRange, end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	return start, end, nil
}

func (s *Service) timeframe(tf arrdomain.Timeframe, cfg config.ReportingConfig) (arrdomain.Timeframe, error) {
	if tf == "" {
		tf = arrdomain.Timeframe(cfg.DefaultTimeframe)
	}
	return engine.ParseTimeframe(string(tf))
}

func (s *Service) sample(sample arrdomain.SampleDay, cfg config.ReportingConfig) (arrdomain.SampleDay, error) {
	if sample == "" {
		sample = arrdomain.SampleDay(cfg.RevenueSampleDay)
	}
	return engine.ParseSampleDay(string(sample))
}

func (s *Service) periods(req arrdomain.RangeRequest, cfg config.ReportingConfig) (arrdomain.Timeframe, []arrdomain.Period, error) {
	tf, err := s.timeframe(req.Timeframe, cfg)
	if err != nil {
		return "", nil, err
	}
	start, end, err := s.rangeBounds(req)
	if err != nil {
		return "", nil, err
	}
	periods, err := engine.GeneratePeriods(start, end, tf)
	if err != nil {
		return "", nil, err
	}
	return tf, periods, nil
}

func (s *Service) Table(ctx context.Context, scope arrdomain.Scope) (arrdomain.TableResponse, error) {
	var resp arrdomain.TableResponse
	err := s.run(ctx, "arr_table", scope, func(_ context.Context, b *build) error {
		resp = arrdomain.TableResponse{
			Meta:        b.meta(),
			Rows:        b.table.Rows(),
			Adjustments: b.report.Adjustments,
			Skipped:     b.report.SkippedNonRecurring,
		}
		return nil
	})
	return resp, err
}

func (s *Service) CustomerARR(ctx context.Context, req arrdomain.PointRequest) (arrdomain.CustomerTableResponse, error) {
	var resp arrdomain.CustomerTableResponse
	err := s.run(ctx, "customer_arr", req.Scope, func(_ context.Context, b *build) error {
		resp = arrdomain.CustomerTableResponse{
			Meta:  b.meta(),
			Table: engine.CustomerARR(b.table, s.pointDate(req.Date), b.ignoreZeros),
		}
		return nil
	})
	return resp, err
}

func (s *Service) CustomerCARR(ctx context.Context, req arrdomain.PointRequest) (arrdomain.CustomerTableResponse, error) {
	var resp arrdomain.CustomerTableResponse
	err := s.run(ctx, "customer_carr", req.Scope, func(_ context.Context, b *build) error {
		resp = arrdomain.CustomerTableResponse{
			Meta:  b.meta(),
			Table: engine.CustomerCARR(b.table, s.pointDate(req.Date), b.ignoreZeros),
		}
		return nil
	})
	return resp, err
}

func (s *Service) CustomerARRByPeriod(ctx context.Context, req arrdomain.RangeRequest) (arrdomain.MatrixResponse, error) {
	var resp arrdomain.MatrixResponse
	err := s.run(ctx, "customer_arr_by_period", req.Scope, func(_ context.Context, b *build) error {
		tf, periods, err := s.periods(req, b.cfg)
		if err != nil {
			return err
		}
		resp = arrdomain.MatrixResponse{
			Meta:      b.meta(),
			Timeframe: tf,
			Matrix:    engine.CustomerARRByPeriod(b.table, periods, b.ignoreZeros),
		}
		return nil
	})
	return resp, err
}

func (s *Service) NewARR(ctx context.Context, req arrdomain.PointRequest) (arrdomain.CustomerTableResponse, error) {
	var resp arrdomain.CustomerTableResponse
	err := s.run(ctx, "new_arr", req.Scope, func(_ context.Context, b *build) error {
		tf, err := s.timeframe(req.Timeframe, b.cfg)
		if err != nil {
			return err
		}
		table, err := engine.NewARRByTimeframe(b.table, s.pointDate(req.Date), tf, b.ignoreZeros)
		if err != nil {
			return err
		}
		resp = arrdomain.CustomerTableResponse{Meta: b.meta(), Table: table}
		return nil
	})
	return resp, err
}

func (s *Service) Changes(ctx context.Context, req arrdomain.RangeRequest) (arrdomain.ChangeTableResponse, error) {
	var resp arrdomain.ChangeTableResponse
	err := s.run(ctx, "arr_changes", req.Scope, func(ctx context.Context, b *build) error {
		changes, err := s.changeTable(ctx, b, req)
		if err != nil {
			return err
		}
		resp = arrdomain.ChangeTableResponse{Meta: b.meta(changes.Anomalies...), Changes: changes}
		return nil
	})
	return resp, err
}

func (s *Service) changeTable(ctx context.Context, b *build, req arrdomain.RangeRequest) (arrdomain.ChangeTable, error) {
	tf, periods, err := s.periods(req, b.cfg)
	if err != nil {
		return arrdomain.ChangeTable{}, err
	}
	changes, err := engine.BuildChangeTable(b.table, periods)
	if err != nil {
		return arrdomain.ChangeTable{}, err
	}
	changes.Timeframe = tf
	s.logAnomalies(ctx, logger.WithRun(logger.WithContext(ctx, s.log), b.report.RunID), changes.Anomalies)
	return changes, nil
}

func (s *Service) Bookings(ctx context.Context, req arrdomain.RangeRequest) (arrdomain.MatrixResponse, error) {
	var resp arrdomain.MatrixResponse
	err := s.run(ctx, "bookings", req.Scope, func(_ context.Context, b *build) error {
		tf, periods, err := s.periods(req, b.cfg)
		if err != nil {
			return err
		}
		resp = arrdomain.MatrixResponse{
			Meta:      b.meta(),
			Timeframe: tf,
			Matrix:    engine.BookingsByPeriod(b.feed.Contracts, periods, b.ignoreZeros),
		}
		return nil
	})
	return resp, err
}

func (s *Service) BookingsSummary(ctx context.Context, req arrdomain.RangeRequest) (arrdomain.CustomerTableResponse, error) {
	var resp arrdomain.CustomerTableResponse
	err := s.run(ctx, "bookings_summary", req.Scope, func(_ context.Context, b *build) error {
		start, end, err := s.rangeBounds(req)
		if err != nil {
			return err
		}
		resp = arrdomain.CustomerTableResponse{
			Meta:  b.meta(),
			Table: engine.Bookings(b.feed.Contracts, start, end, b.ignoreZeros),
		}
		return nil
	})
	return resp, err
}

func (s *Service) Series(ctx context.Context, req arrdomain.RangeRequest) (arrdomain.SeriesResponse, error) {
	var resp arrdomain.SeriesResponse
	err := s.run(ctx, "series", req.Scope, func(_ context.Context, b *build) error {
		start, end, err := s.rangeBounds(req)
		if err != nil {
			return err
		}
		resp = arrdomain.SeriesResponse{
			Meta:   b.meta(),
			Points: engine.MonthlySeries(b.table, b.feed.Contracts, start, end),
		}
		return nil
	})
	return resp, err
}

func (s *Service) Revenue(ctx context.Context, req arrdomain.RangeRequest) (arrdomain.MatrixResponse, error) {
	var resp arrdomain.MatrixResponse
	err := s.run(ctx, "revenue", req.Scope, func(_ context.Context, b *build) error {
		sample, err := s.sample(req.Sample, b.cfg)
		if err != nil {
			return err
		}
		start, end, err := s.rangeBounds(req)
		if err != nil {
			return err
		}
		resp = arrdomain.MatrixResponse{
			Meta:      b.meta(),
			Timeframe: arrdomain.TimeframeMonth,
			Matrix:    engine.RevenueMatrix(b.table, start, end, sample),
		}
		return nil
	})
	return resp, err
}

func (s *Service) MRRMetrics(ctx context.Context, req arrdomain.RangeRequest) (arrdomain.MRRResponse, error) {
	var resp arrdomain.MRRResponse
	err := s.run(ctx, "mrr_metrics", req.Scope, func(_ context.Context, b *build) error {
		sample, err := s.sample(req.Sample, b.cfg)
		if err != nil {
			return err
		}
		start, end, err := s.rangeBounds(req)
		if err != nil {
			return err
		}
		resp = arrdomain.MRRResponse{
			Meta:   b.meta(),
			Sample: sample,
			Months: engine.MRRMetrics(b.table, start, end, sample),
		}
		return nil
	})
	return resp, err
}

func (s *Service) Retention(ctx context.Context, req arrdomain.PointRequest) (arrdomain.RetentionResponse, error) {
	var resp arrdomain.RetentionResponse
	err := s.run(ctx, "retention", req.Scope, func(_ context.Context, b *build) error {
		sample, err := s.sample(req.Sample, b.cfg)
		if err != nil {
			return err
		}
		resp = arrdomain.RetentionResponse{
			Meta:      b.meta(),
			Retention: engine.TrailingRetention(b.table, s.pointDate(req.Date), sample),
		}
		return nil
	})
	return resp, err
}

// Report builds every table of the exported report from one ledger load.
func (s *Service) Report(ctx context.Context, req arrdomain.RangeRequest) (arrdomain.Report, error) {
	var resp arrdomain.Report
	err := s.run(ctx, "export", req.Scope, func(ctx context.Context, b *build) error {
		start, end, err := s.rangeBounds(req)
		if err != nil {
			return err
		}
		changes, err := s.changeTable(ctx, b, req)
		if err != nil {
			return err
		}
		_, periods, err := s.periods(req, b.cfg)
		if err != nil {
			return err
		}
		sample, err := s.sample(req.Sample, b.cfg)
		if err != nil {
			return err
		}
		resp = arrdomain.Report{
			Meta:      b.meta(changes.Anomalies...),
			Start:     start,
			End:       end,
			Changes:   changes,
			Customers: engine.CustomerARR(b.table, end, b.ignoreZeros),
			Bookings:  engine.BookingsByPeriod(b.feed.Contracts, periods, b.ignoreZeros),
			Retention: engine.TrailingRetention(b.table, end, sample),
		}
		return nil
	})
	return resp, err
}
