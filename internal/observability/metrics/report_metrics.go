package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	arrdomain "github.com/smallbiznis/saasops/internal/arr/domain"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
	"gorm.io/gorm"
)

const (
	ReportOutcomeSuccess = "success"
	ReportOutcomeError   = "error"
)

const (
	ReportErrorReasonDeadlineExceeded     = "deadline_exceeded"
	ReportErrorReasonValidation           = "validation"
	ReportErrorReasonDataIntegrity        = "data_integrity"
	ReportErrorReasonDBLockTimeout        = "db_lock_timeout"
	ReportErrorReasonSerializationFailure = "serialization_failure"
	ReportErrorReasonDB                   = "db"
	ReportErrorReasonUnknown              = "unknown"
)

// ReportMetrics captures ARR build health: how long builds take, how much
// ledger they read and what the engine flagged.
type ReportMetrics struct {
	runs          *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	errors        *prometheus.CounterVec
	ledgerRows    *prometheus.HistogramVec
	tableRows     prometheus.Observer
	adjustments   prometheus.Counter
	anomalies     *prometheus.CounterVec
	nonRecurring  prometheus.Counter
	anomalyCounts map[string]prometheus.Counter
}

var (
	reportMetricsOnce sync.Once
	reportMetrics     *ReportMetrics
)

// Reports returns the singleton report metrics registry.
func Reports() *ReportMetrics {
	return ReportsWithConfig(Config{})
}

// ReportsWithConfig returns the singleton report metrics registry using config labels.
func ReportsWithConfig(cfg Config) *ReportMetrics {
	reportMetricsOnce.Do(func() {
		reportMetrics = newReportMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return reportMetrics
}

// ResetReportMetricsForTest resets the report metrics singleton for tests.
func ResetReportMetricsForTest() {
	reportMetricsOnce = sync.Once{}
	reportMetrics = nil
}

// NewReportMetricsForTest registers report metrics on the given registry.
func NewReportMetricsForTest(registerer prometheus.Registerer) *ReportMetrics {
	return newReportMetrics(registerer, Config{ServiceName: "saasops", Environment: "test"})
}

func newReportMetrics(registerer prometheus.Registerer, cfg Config) *ReportMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "saasops"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "saasops_report_runs_total",
		Help:        "Report runs by report and outcome.",
		ConstLabels: constLabels,
	}, []string{"report", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "saasops_report_duration_seconds",
		Help:        "Time from ledger load to finished report.",
		Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	}, []string{"report"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "saasops_report_errors_total",
		Help:        "Failed report runs by reason.",
		ConstLabels: constLabels,
	}, []string{"report", "reason"})
	ledgerRows := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "saasops_ledger_rows_loaded",
		Help:        "Ledger rows read per build.",
		Buckets:     prometheus.ExponentialBuckets(1, 4, 10),
		ConstLabels: constLabels,
	}, []string{"kind"})
	tableRows := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "saasops_arr_table_rows",
		Help:        "ARR table size per build.",
		Buckets:     prometheus.ExponentialBuckets(1, 4, 10),
		ConstLabels: constLabels,
	})
	adjustments := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "saasops_arr_renewal_adjustments_total",
		Help:        "ARR end dates moved to close renewal gaps.",
		ConstLabels: constLabels,
	})
	anomalies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "saasops_arr_anomalies_total",
		Help:        "Warning-level findings by kind.",
		ConstLabels: constLabels,
	}, []string{"kind"})
	nonRecurring := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "saasops_arr_non_recurring_segments_total",
		Help:        "Segments left out of the ARR table because they do not recur.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(runs, duration, errs, ledgerRows, tableRows, adjustments, anomalies, nonRecurring)

	anomalyCounts := make(map[string]prometheus.Counter)
	for _, kind := range []arrdomain.AnomalyKind{
		arrdomain.AnomalyUnresolvedRenewal,
		arrdomain.AnomalyUnresolvedChurn,
		arrdomain.AnomalySkippedSegment,
		arrdomain.AnomalyLengthVariance,
	} {
		anomalyCounts[string(kind)] = anomalies.WithLabelValues(string(kind))
	}

	return &ReportMetrics{
		runs:          runs,
		duration:      duration,
		errors:        errs,
		ledgerRows:    ledgerRows,
		tableRows:     tableRows,
		adjustments:   adjustments,
		anomalies:     anomalies,
		nonRecurring:  nonRecurring,
		anomalyCounts: anomalyCounts,
	}
}

// ObserveRun records one finished report run.
func (m *ReportMetrics) ObserveRun(report string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	report = sanitizeLabel(report)
	if err != nil {
		m.runs.WithLabelValues(report, ReportOutcomeError).Inc()
		m.errors.WithLabelValues(report, ClassifyReportError(err)).Inc()
	} else {
		m.runs.WithLabelValues(report, ReportOutcomeSuccess).Inc()
	}
	m.duration.WithLabelValues(report).Observe(duration.Seconds())
}

// ObserveLedger records how many ledger rows one build read.
func (m *ReportMetrics) ObserveLedger(segments, contracts int) {
	if m == nil {
		return
	}
	m.ledgerRows.WithLabelValues("segments").Observe(float64(segments))
	m.ledgerRows.WithLabelValues("contracts").Observe(float64(contracts))
}

// ObserveBuild records the outcome of one ARR table build.
func (m *ReportMetrics) ObserveBuild(report arrdomain.BuildReport) {
	if m == nil {
		return
	}
	m.tableRows.Observe(float64(report.Rows))
	m.adjustments.Add(float64(len(report.Adjustments)))
	m.nonRecurring.Add(float64(report.SkippedNonRecurring))
	m.ObserveAnomalies(report.Anomalies)
}

// ObserveAnomalies counts anomalies by kind.
func (m *ReportMetrics) ObserveAnomalies(anomalies []arrdomain.Anomaly) {
	if m == nil {
		return
	}
	for _, a := range anomalies {
		counter, ok := m.anomalyCounts[string(a.Kind)]
		if !ok {
			counter = m.anomalies.WithLabelValues(sanitizeLabel(string(a.Kind)))
		}
		counter.Inc()
	}
}

// ClassifyReportError maps report errors to low-cardinality reasons.
func ClassifyReportError(err error) string {
	switch {
	case err == nil:
		return ReportErrorReasonUnknown
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled):
		return ReportErrorReasonDeadlineExceeded
	case arrdomain.IsValidationError(err):
		return ReportErrorReasonValidation
	case arrdomain.IsDataError(err):
		return ReportErrorReasonDataIntegrity
	case hasPGCode(err, "55P03"):
		return ReportErrorReasonDBLockTimeout
	case hasPGCode(err, "40001"):
		return ReportErrorReasonSerializationFailure
	case isDBError(err):
		return ReportErrorReasonDB
	default:
		return ReportErrorReasonUnknown
	}
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, ledgerdomain.ErrLoadFailed) {
		return true
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrUnsupportedDriver) ||
		errors.Is(err, gorm.ErrNotImplemented) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}

func sanitizeLabel(val string) string {
	val = strings.TrimSpace(val)
	if val == "" {
		return "unknown"
	}
	return val
}
