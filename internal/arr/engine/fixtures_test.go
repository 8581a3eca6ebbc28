package engine

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/saasops/internal/arr/domain"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
	"github.com/stretchr/testify/require"
)

func d(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func parseDay(t *testing.T, raw string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.DateOnly, raw)
	require.NoError(t, err)
	return parsed
}

func subscription(segmentID, contractID int64, customer string, booked, start, end time.Time, value int64) ledgerdomain.SegmentRow {
	return ledgerdomain.SegmentRow{
		SegmentID:        snowflake.ID(segmentID),
		ContractID:       snowflake.ID(contractID),
		CustomerName:     customer,
		ContractDate:     booked,
		SegmentStartDate: start,
		SegmentEndDate:   end,
		Title:            "Platform subscription",
		Type:             ledgerdomain.SegmentTypeSubscription,
		SegmentValue:     value,
	}
}

func renewing(seg ledgerdomain.SegmentRow, predecessor int64) ledgerdomain.SegmentRow {
	id := snowflake.ID(predecessor)
	seg.RenewalFromContractID = &id
	return seg
}

func contract(contractID int64, customer string, booked time.Time, total int64) ledgerdomain.ContractRow {
	return ledgerdomain.ContractRow{
		ContractID:   snowflake.ID(contractID),
		CustomerName: customer,
		ContractDate: booked,
		TotalValue:   total,
	}
}

// case one: a single year contract booked a month before service starts.
func caseOneSegments() []ledgerdomain.SegmentRow {
	return []ledgerdomain.SegmentRow{
		subscription(11, 1, "Acme", d(2022, 5, 1), d(2022, 6, 1), d(2023, 5, 31), 120000),
	}
}

// case two: case one renewed at double the value, booked before the
// original ends.
func caseTwoSegments() []ledgerdomain.SegmentRow {
	return append(caseOneSegments(),
		renewing(subscription(21, 2, "Acme", d(2023, 5, 1), d(2023, 6, 1), d(2024, 5, 31), 240000), 1),
	)
}

// case three: case one renewed at a lower value after a four day gap.
func caseThreeSegments() []ledgerdomain.SegmentRow {
	return append(caseOneSegments(),
		renewing(subscription(31, 3, "Acme", d(2023, 6, 5), d(2023, 6, 5), d(2024, 6, 4), 100000), 1),
	)
}

func mustBuild(t *testing.T, segments []ledgerdomain.SegmentRow, scope domain.ExclusionScope) (*Table, domain.BuildReport) {
	t.Helper()
	table, report, err := Build(segments, BuildOptions{Exclusion: scope})
	require.NoError(t, err)
	return table, report
}
