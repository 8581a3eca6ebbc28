package engine

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/saasops/internal/arr/domain"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func changeTable(t *testing.T, table *Table, start, end time.Time, tf domain.Timeframe) domain.ChangeTable {
	t.Helper()
	periods, err := GeneratePeriods(start, end, tf)
	require.NoError(t, err)
	out, err := BuildChangeTable(table, periods)
	require.NoError(t, err)
	return out
}

func column(t *testing.T, table domain.ChangeTable, label string) domain.ChangeColumn {
	t.Helper()
	for _, c := range table.Columns {
		if c.Period.Label == label {
			return c
		}
	}
	t.Fatalf("no column %q", label)
	return domain.ChangeColumn{}
}

func assertConserved(t *testing.T, table domain.ChangeTable) {
	t.Helper()
	for i, c := range table.Columns {
		assert.Equal(t, c.Beginning+c.New+c.Expansion-c.Contraction-c.Churn, c.Ending, c.Period.Label)
		if i > 0 {
			assert.Equal(t, table.Columns[i-1].Ending, c.Beginning, c.Period.Label)
		}
	}
}

func TestChangeTable_NewThenDeferredChurn(t *testing.T) {
	table, _ := mustBuild(t, caseOneSegments(), domain.ExclusionGlobal)
	changes := changeTable(t, table, d(2022, 5, 1), d(2023, 7, 31), domain.TimeframeMonth)

	require.Len(t, changes.Columns, 15)
	assertConserved(t, changes)
	assert.Empty(t, changes.Anomalies)

	first := column(t, changes, "May 2022")
	assert.Equal(t, int64(0), first.Beginning)
	assert.Equal(t, int64(120000), first.New)
	assert.Equal(t, int64(120000), first.Ending)

	// Ends on the last day of May, so the churn decision waits a period.
	may := column(t, changes, "May 2023")
	assert.Zero(t, may.Churn)
	assert.Equal(t, int64(120000), may.Ending)

	june := column(t, changes, "Jun 2023")
	assert.Equal(t, int64(120000), june.Churn)
	assert.Equal(t, int64(0), june.Ending)

	var totalNew int64
	for _, c := range changes.Columns {
		totalNew += c.New
		assert.Zero(t, c.Expansion)
		assert.Zero(t, c.Contraction)
	}
	assert.Equal(t, int64(120000), totalNew)
}

func TestChangeTable_UnresolvedChurnAtRangeEnd(t *testing.T) {
	table, _ := mustBuild(t, caseOneSegments(), domain.ExclusionGlobal)
	changes := changeTable(t, table, d(2022, 5, 1), d(2023, 5, 31), domain.TimeframeMonth)

	require.Len(t, changes.Anomalies, 1)
	anomaly := changes.Anomalies[0]
	assert.Equal(t, domain.AnomalyUnresolvedChurn, anomaly.Kind)
	assert.Equal(t, snowflake.ID(1), anomaly.ContractID)
	require.NotNil(t, anomaly.Date)
	assert.Equal(t, d(2023, 5, 31), *anomaly.Date)
}

func TestChangeTable_RenewalExpansion(t *testing.T) {
	table, _ := mustBuild(t, caseTwoSegments(), domain.ExclusionActive)
	changes := changeTable(t, table, d(2022, 5, 1), d(2023, 6, 30), domain.TimeframeMonth)
	assertConserved(t, changes)

	may := column(t, changes, "May 2023")
	assert.Equal(t, int64(120000), may.Expansion)
	assert.Zero(t, may.New)
	assert.Zero(t, may.Churn)

	last := changes.Columns[len(changes.Columns)-1]
	assert.Equal(t, int64(240000), last.Ending)
	assert.Equal(t, sumARR(table.ActiveAt(d(2023, 6, 30))), last.Ending)
}

func TestChangeTable_BeginningFollowsExclusionScope(t *testing.T) {
	t.Run("global leaves a renewed predecessor out of Beginning", func(t *testing.T) {
		table, _ := mustBuild(t, caseTwoSegments(), domain.ExclusionGlobal)
		changes := changeTable(t, table, d(2022, 7, 1), d(2023, 6, 30), domain.TimeframeMonth)
		assertConserved(t, changes)

		assert.Zero(t, changes.Columns[0].Beginning)
		assert.Equal(t, int64(120000), column(t, changes, "May 2023").Expansion)
		last := changes.Columns[len(changes.Columns)-1]
		assert.Equal(t, int64(120000), last.Ending)
		assert.Equal(t, int64(240000), sumARR(table.ActiveAt(d(2023, 6, 30))))
	})

	t.Run("active counts it until the renewal starts", func(t *testing.T) {
		table, _ := mustBuild(t, caseTwoSegments(), domain.ExclusionActive)
		changes := changeTable(t, table, d(2022, 7, 1), d(2023, 6, 30), domain.TimeframeMonth)
		assertConserved(t, changes)

		assert.Equal(t, int64(120000), changes.Columns[0].Beginning)
		last := changes.Columns[len(changes.Columns)-1]
		assert.Equal(t, int64(240000), last.Ending)
		assert.Equal(t, sumARR(table.ActiveAt(d(2023, 6, 30))), last.Ending)
	})
}

func TestChangeTable_RenewalContractionAfterGap(t *testing.T) {
	table, _ := mustBuild(t, caseThreeSegments(), domain.ExclusionActive)
	changes := changeTable(t, table, d(2022, 5, 1), d(2023, 6, 30), domain.TimeframeMonth)
	assertConserved(t, changes)

	june := column(t, changes, "Jun 2023")
	assert.Equal(t, int64(20000), june.Contraction)
	assert.Zero(t, june.Churn)
	assert.Equal(t, int64(100000), june.Ending)
	assert.Empty(t, changes.Anomalies)
}

func TestChangeTable_Quarterly(t *testing.T) {
	table, _ := mustBuild(t, caseOneSegments(), domain.ExclusionGlobal)
	changes := changeTable(t, table, d(2022, 4, 1), d(2023, 9, 30), domain.TimeframeQuarter)
	assertConserved(t, changes)

	require.Len(t, changes.Columns, 6)
	assert.Equal(t, int64(120000), column(t, changes, "Q2 2022").New)
	// Ends mid-quarter, so churn is immediate.
	assert.Equal(t, int64(120000), column(t, changes, "Q2 2023").Churn)
	assert.Empty(t, changes.Anomalies)
}

func TestChangeTable_NewCustomersNeverExpand(t *testing.T) {
	segments := []ledgerdomain.SegmentRow{
		subscription(11, 1, "Acme", d(2022, 1, 1), d(2022, 1, 1), d(2022, 12, 31), 120000),
		subscription(12, 1, "Acme", d(2022, 1, 1), d(2022, 7, 1), d(2023, 6, 30), 240000),
		subscription(41, 4, "Beta", d(2022, 3, 15), d(2022, 3, 15), d(2023, 3, 14), 60000),
	}
	table, _ := mustBuild(t, segments, domain.ExclusionGlobal)
	changes := changeTable(t, table, d(2022, 1, 1), d(2023, 12, 31), domain.TimeframeMonth)
	assertConserved(t, changes)

	var totalNew int64
	for _, c := range changes.Columns {
		assert.Zero(t, c.Expansion, c.Period.Label)
		assert.Zero(t, c.Contraction, c.Period.Label)
		totalNew += c.New
	}
	assert.Equal(t, int64(120000+240000+60000), totalNew)
	assert.Equal(t, int64(0), changes.Columns[len(changes.Columns)-1].Ending)
}

func TestChangeTable_UnknownPredecessorCountsAsNew(t *testing.T) {
	orphan := renewing(subscription(61, 6, "Delta", d(2023, 1, 1), d(2023, 1, 1), d(2023, 12, 31), 50000), 999)
	table, _ := mustBuild(t, []ledgerdomain.SegmentRow{orphan}, domain.ExclusionGlobal)
	changes := changeTable(t, table, d(2023, 1, 1), d(2023, 1, 31), domain.TimeframeMonth)

	assert.Equal(t, int64(50000), changes.Columns[0].New)
	require.Len(t, changes.Anomalies, 1)
	assert.Equal(t, domain.AnomalyUnresolvedRenewal, changes.Anomalies[0].Kind)
}

func TestClassifyPeriod_CarryForwardIsOwned(t *testing.T) {
	table, _ := mustBuild(t, caseOneSegments(), domain.ExclusionGlobal)
	may, _ := PeriodContaining(d(2023, 5, 10), domain.TimeframeMonth)
	june, _ := PeriodContaining(d(2023, 6, 10), domain.TimeframeMonth)

	var empty CarryForward
	res, carry := ClassifyPeriod(table, may, empty)
	assert.Zero(t, res.Movement.Churn)
	assert.Equal(t, 0, empty.Len())
	require.Equal(t, []snowflake.ID{1}, carry.ContractIDs())

	res, next := ClassifyPeriod(table, june, carry)
	assert.Equal(t, int64(120000), res.Movement.Churn)
	assert.Equal(t, 0, next.Len())
	assert.True(t, carry.Contains(snowflake.ID(1)))

	// Without the carried state June sees nothing to churn.
	res, _ = ClassifyPeriod(table, june, CarryForward{})
	assert.Zero(t, res.Movement.Churn)
}

func TestBuildChangeTable_RejectsGaps(t *testing.T) {
	table, _ := mustBuild(t, caseOneSegments(), domain.ExclusionGlobal)
	jan, _ := PeriodContaining(d(2023, 1, 1), domain.TimeframeMonth)
	mar, _ := PeriodContaining(d(2023, 3, 1), domain.TimeframeMonth)

	_, err := BuildChangeTable(table, []domain.Period{jan, mar})
	require.ErrorIs(t, err, domain.ErrPeriodOutOfSequence)

	_, err = BuildChangeTable(table, nil)
	require.ErrorIs(t, err, domain.ErrNoPeriods)
}
