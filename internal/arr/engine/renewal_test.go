package engine

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/saasops/internal/arr/domain"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdjustRenewals_ContiguousRenewalUntouched(t *testing.T) {
	table, report := mustBuild(t, caseTwoSegments(), domain.ExclusionGlobal)

	assert.Empty(t, report.Adjustments)
	row, ok := table.Row(snowflake.ID(11))
	require.True(t, ok)
	assert.Equal(t, d(2023, 5, 31), row.ARREndDate)
}

func TestAdjustRenewals_ClosesGap(t *testing.T) {
	table, report := mustBuild(t, caseThreeSegments(), domain.ExclusionGlobal)

	require.Len(t, report.Adjustments, 1)
	adj := report.Adjustments[0]
	assert.Equal(t, snowflake.ID(11), adj.SegmentID)
	assert.Equal(t, d(2023, 5, 31), adj.PreviousEndDate)
	assert.Equal(t, d(2023, 6, 4), adj.AdjustedEndDate)
	assert.Equal(t, []snowflake.ID{3}, adj.RenewingContractIDs)

	row, _ := table.Row(snowflake.ID(11))
	assert.Equal(t, d(2023, 6, 4), row.ARREndDate)
	assert.Equal(t, d(2023, 5, 31), row.SegmentEndDate)
}

func TestAdjustRenewals_Idempotent(t *testing.T) {
	table, _ := mustBuild(t, caseThreeSegments(), domain.ExclusionGlobal)
	before := table.Rows()

	adjustments, anomalies := AdjustRenewals(table)
	assert.Empty(t, adjustments)
	assert.Empty(t, anomalies)
	assert.Equal(t, before, table.Rows())
}

func TestAdjustRenewals_ChainOrderIndependent(t *testing.T) {
	chain := []ledgerdomain.SegmentRow{
		subscription(11, 1, "Acme", d(2021, 1, 1), d(2021, 1, 1), d(2021, 12, 31), 100000),
		renewing(subscription(21, 2, "Acme", d(2022, 1, 10), d(2022, 1, 10), d(2023, 1, 9), 110000), 1),
		renewing(subscription(31, 3, "Acme", d(2023, 1, 20), d(2023, 1, 20), d(2024, 1, 19), 120000), 2),
	}
	reversed := []ledgerdomain.SegmentRow{chain[2], chain[1], chain[0]}

	forward, _ := mustBuild(t, chain, domain.ExclusionGlobal)
	backward, _ := mustBuild(t, reversed, domain.ExclusionGlobal)

	for _, id := range []snowflake.ID{11, 21, 31} {
		a, _ := forward.Row(id)
		b, _ := backward.Row(id)
		assert.Equal(t, a.ARREndDate, b.ARREndDate, "segment %d", id)
	}

	first, _ := forward.Row(snowflake.ID(11))
	second, _ := forward.Row(snowflake.ID(21))
	assert.Equal(t, d(2022, 1, 9), first.ARREndDate)
	assert.Equal(t, d(2023, 1, 19), second.ARREndDate)

	// After adjustment no day is covered by two links of the chain.
	rows := forward.Rows()
	for day := d(2021, 1, 1); !day.After(d(2024, 1, 19)); day = day.AddDate(0, 0, 1) {
		active := 0
		for _, r := range rows {
			if r.ActiveOn(day) {
				active++
			}
		}
		require.LessOrEqual(t, active, 1, day.Format("2006-01-02"))
	}
}

func TestAdjustRenewals_UnknownPredecessor(t *testing.T) {
	orphan := renewing(subscription(61, 6, "Delta", d(2023, 1, 1), d(2023, 1, 1), d(2023, 12, 31), 50000), 999)

	table, report := mustBuild(t, []ledgerdomain.SegmentRow{orphan}, domain.ExclusionGlobal)
	assert.Equal(t, 1, table.Len())
	require.Len(t, report.Anomalies, 1)
	assert.Equal(t, domain.AnomalyUnresolvedRenewal, report.Anomalies[0].Kind)
	assert.Equal(t, snowflake.ID(6), report.Anomalies[0].ContractID)
}
