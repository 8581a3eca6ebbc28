package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	arrdomain "github.com/smallbiznis/saasops/internal/arr/domain"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
)

func TestClassifyReportError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  fmt.Errorf("load: %w", context.DeadlineExceeded),
			want: ReportErrorReasonDeadlineExceeded,
		},
		{
			name: "validation",
			err:  fmt.Errorf("%w: %q", arrdomain.ErrInvalidTimeframe, "W"),
			want: ReportErrorReasonValidation,
		},
		{
			name: "data_integrity",
			err:  errors.Join(fmt.Errorf("segment 4: %w", arrdomain.ErrDegenerateSegment)),
			want: ReportErrorReasonDataIntegrity,
		},
		{
			name: "db_lock_timeout",
			err:  fmt.Errorf("%w: %w", ledgerdomain.ErrLoadFailed, &pgconn.PgError{Code: "55P03"}),
			want: ReportErrorReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: ReportErrorReasonSerializationFailure,
		},
		{
			name: "load_failed",
			err:  fmt.Errorf("%w: %w", ledgerdomain.ErrLoadFailed, errors.New("connection refused")),
			want: ReportErrorReasonDB,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: ReportErrorReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyReportError(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestObserveRun(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newReportMetrics(registry, Config{ServiceName: "saasops", Environment: "test"})

	m.ObserveRun("arr_changes", 40*time.Millisecond, nil)
	m.ObserveRun("arr_changes", 10*time.Millisecond, arrdomain.ErrNoPeriods)

	if got := testutil.ToFloat64(m.runs.WithLabelValues("arr_changes", ReportOutcomeSuccess)); got != 1 {
		t.Fatalf("expected 1 successful run, got %v", got)
	}
	if got := testutil.ToFloat64(m.errors.WithLabelValues("arr_changes", ReportErrorReasonValidation)); got != 1 {
		t.Fatalf("expected 1 validation error, got %v", got)
	}
}

func TestObserveBuild(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newReportMetrics(registry, Config{})

	m.ObserveBuild(arrdomain.BuildReport{
		Rows:                3,
		SkippedNonRecurring: 2,
		Adjustments:         []arrdomain.Adjustment{{}},
		Anomalies: []arrdomain.Anomaly{
			{Kind: arrdomain.AnomalyLengthVariance},
			{Kind: arrdomain.AnomalyLengthVariance},
			{Kind: arrdomain.AnomalyUnresolvedRenewal},
		},
	})

	if got := testutil.ToFloat64(m.adjustments); got != 1 {
		t.Fatalf("expected 1 adjustment, got %v", got)
	}
	if got := testutil.ToFloat64(m.nonRecurring); got != 2 {
		t.Fatalf("expected 2 non recurring segments, got %v", got)
	}
	if got := testutil.ToFloat64(m.anomalies.WithLabelValues(string(arrdomain.AnomalyLengthVariance))); got != 2 {
		t.Fatalf("expected 2 length variance anomalies, got %v", got)
	}
}

func TestReportsSingleton(t *testing.T) {
	ResetReportMetricsForTest()
	t.Cleanup(ResetReportMetricsForTest)

	registry := prometheus.NewRegistry()
	reportMetricsOnce.Do(func() {
		reportMetrics = newReportMetrics(registry, Config{})
	})
	if Reports() != Reports() {
		t.Fatalf("expected the same registry on every call")
	}
}
