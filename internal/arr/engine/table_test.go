package engine

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/saasops/internal/arr/domain"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_SingleContract(t *testing.T) {
	table, report := mustBuild(t, caseOneSegments(), domain.ExclusionGlobal)

	assert.Equal(t, 1, report.Rows)
	assert.NotEmpty(t, report.RunID)
	assert.Empty(t, report.Adjustments)

	assert.Equal(t, int64(120000), sumARR(table.ActiveAt(d(2022, 9, 15))))
	assert.Equal(t, int64(0), sumARR(table.ActiveAt(d(2023, 6, 15))))
	assert.Len(t, table.Overlapping(d(2023, 5, 1), d(2023, 5, 31)), 1)
	assert.Empty(t, table.Overlapping(d(2023, 6, 1), d(2023, 6, 30)))
}

func TestBuild_SkipsNonRecurring(t *testing.T) {
	services := subscription(12, 1, "Acme", d(2022, 5, 1), d(2022, 6, 1), d(2022, 6, 30), 15000)
	services.Type = ledgerdomain.SegmentTypeOneTime

	table, report := mustBuild(t, append(caseOneSegments(), services), domain.ExclusionGlobal)
	assert.Equal(t, 1, table.Len())
	assert.Equal(t, 1, report.SkippedNonRecurring)
	_, ok := table.Row(snowflake.ID(12))
	assert.False(t, ok)
}

func TestBuild_FailurePolicy(t *testing.T) {
	bad := subscription(40, 4, "Beta", d(2022, 1, 1), d(2022, 1, 1), d(2022, 1, 5), 1000)
	segments := append(caseOneSegments(), bad)

	t.Run("aborts by default", func(t *testing.T) {
		table, _, err := Build(segments, BuildOptions{})
		require.ErrorIs(t, err, domain.ErrDegenerateSegment)
		assert.Nil(t, table)
	})

	t.Run("partial mode records the skipped segment", func(t *testing.T) {
		table, report, err := Build(segments, BuildOptions{AllowPartial: true})
		require.NoError(t, err)
		assert.Equal(t, 1, table.Len())
		require.Len(t, report.Anomalies, 1)
		assert.Equal(t, domain.AnomalySkippedSegment, report.Anomalies[0].Kind)
		assert.Equal(t, snowflake.ID(40), report.Anomalies[0].SegmentID)
	})

	t.Run("duplicate segment ids", func(t *testing.T) {
		_, _, err := Build(append(caseOneSegments(), caseOneSegments()...), BuildOptions{})
		require.ErrorIs(t, err, domain.ErrDuplicateSegment)
	})

	t.Run("every failing segment is reported", func(t *testing.T) {
		other := subscription(41, 4, "Beta", d(2022, 3, 1), d(2022, 3, 1), d(2022, 2, 1), 1000)
		_, _, err := Build(append(segments, other), BuildOptions{})
		require.ErrorIs(t, err, domain.ErrDegenerateSegment)
		require.ErrorIs(t, err, domain.ErrDataIntegrity)
	})

	t.Run("unknown exclusion scope", func(t *testing.T) {
		_, _, err := Build(caseOneSegments(), BuildOptions{Exclusion: "sometimes"})
		require.ErrorIs(t, err, domain.ErrInvalidExclusion)
	})
}

func TestBuild_LengthVarianceAnomaly(t *testing.T) {
	odd := subscription(50, 5, "Gamma", d(2022, 1, 1), d(2022, 1, 1), d(2022, 2, 15), 5000)
	_, report := mustBuild(t, []ledgerdomain.SegmentRow{odd}, domain.ExclusionGlobal)

	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, domain.AnomalyLengthVariance, report.Anomalies[0].Kind)
}

func TestActiveAt_ExclusionScopes(t *testing.T) {
	t.Run("global drops a renewed contract on every date", func(t *testing.T) {
		table, _ := mustBuild(t, caseTwoSegments(), domain.ExclusionGlobal)
		assert.Equal(t, int64(0), sumARR(table.ActiveAt(d(2022, 9, 15))))
		assert.Equal(t, int64(240000), sumARR(table.ActiveAt(d(2023, 6, 15))))
	})

	t.Run("active drops it only while the renewal is live", func(t *testing.T) {
		table, _ := mustBuild(t, caseTwoSegments(), domain.ExclusionActive)
		assert.Equal(t, int64(120000), sumARR(table.ActiveAt(d(2022, 9, 15))))
		assert.Equal(t, int64(240000), sumARR(table.ActiveAt(d(2023, 5, 15))))
		assert.Equal(t, int64(240000), sumARR(table.ActiveAt(d(2023, 6, 15))))
	})
}

func TestContractedAt(t *testing.T) {
	t.Run("counts from booking through the ARR end", func(t *testing.T) {
		table, _ := mustBuild(t, caseOneSegments(), domain.ExclusionGlobal)
		assert.Equal(t, int64(0), sumARR(table.ContractedAt(d(2022, 4, 30))))
		assert.Equal(t, int64(120000), sumARR(table.ContractedAt(d(2022, 5, 1))))
		assert.Equal(t, int64(120000), sumARR(table.ContractedAt(d(2023, 5, 31))))
		assert.Equal(t, int64(0), sumARR(table.ContractedAt(d(2023, 6, 1))))
	})

	t.Run("renewal replaces the predecessor once booked", func(t *testing.T) {
		table, _ := mustBuild(t, caseTwoSegments(), domain.ExclusionGlobal)
		assert.Equal(t, int64(120000), sumARR(table.ContractedAt(d(2023, 4, 30))))
		assert.Equal(t, int64(240000), sumARR(table.ContractedAt(d(2023, 5, 31))))
		assert.Equal(t, int64(240000), sumARR(table.ContractedAt(d(2023, 6, 15))))
	})
}

func TestTable_Indexes(t *testing.T) {
	table, _ := mustBuild(t, caseTwoSegments(), domain.ExclusionGlobal)

	assert.Equal(t, []string{"Acme"}, table.Customers())
	assert.Len(t, table.CustomerRows("Acme"), 2)
	assert.Len(t, table.ContractRows(snowflake.ID(2)), 1)
	assert.True(t, table.IsRenewed(snowflake.ID(1)))
	assert.False(t, table.IsRenewed(snowflake.ID(2)))
	assert.Equal(t, []snowflake.ID{2}, table.RenewedBy(snowflake.ID(1)))

	err := table.AddRow(domain.Row{SegmentID: snowflake.ID(11)})
	require.ErrorIs(t, err, domain.ErrDuplicateSegment)
}

func TestBuild_SelfRenewalIsIgnored(t *testing.T) {
	self := renewing(subscription(71, 7, "Echo", d(2022, 1, 1), d(2022, 1, 1), d(2022, 12, 31), 120000), 7)
	table, report := mustBuild(t, []ledgerdomain.SegmentRow{self}, domain.ExclusionGlobal)

	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, domain.AnomalyUnresolvedRenewal, report.Anomalies[0].Kind)
	assert.Equal(t, snowflake.ID(71), report.Anomalies[0].SegmentID)

	assert.False(t, table.IsRenewed(snowflake.ID(7)))
	row, ok := table.Row(snowflake.ID(71))
	require.True(t, ok)
	assert.False(t, row.IsRenewal())
	assert.Equal(t, int64(120000), sumARR(table.ActiveAt(d(2022, 6, 15))))

	changes := changeTable(t, table, d(2022, 1, 1), d(2023, 3, 31), domain.TimeframeMonth)
	assertConserved(t, changes)
	assert.Equal(t, int64(120000), column(t, changes, "Jan 2022").New)
	assert.Equal(t, int64(120000), column(t, changes, "Jan 2023").Churn)
	assert.Zero(t, changes.Columns[len(changes.Columns)-1].Ending)
	assert.Empty(t, changes.Anomalies)
}
