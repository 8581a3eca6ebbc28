package engine

import (
	"testing"

	"github.com/smallbiznis/saasops/internal/arr/domain"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoCustomerSegments() []ledgerdomain.SegmentRow {
	return append(caseOneSegments(),
		subscription(41, 4, "Beta", d(2021, 12, 15), d(2022, 1, 1), d(2022, 6, 30), 60000),
	)
}

func caseTwoContracts() []ledgerdomain.ContractRow {
	return []ledgerdomain.ContractRow{
		contract(1, "Acme", d(2022, 5, 1), 120000),
		contract(2, "Acme", d(2023, 5, 1), 240000),
	}
}

func TestCustomerARR(t *testing.T) {
	table, _ := mustBuild(t, twoCustomerSegments(), domain.ExclusionGlobal)

	both := CustomerARR(table, d(2022, 5, 15), false)
	assert.Equal(t, []domain.CustomerAmount{
		{Customer: "Acme", Amount: 120000},
		{Customer: "Beta", Amount: 120000},
	}, both.Rows)
	assert.Equal(t, int64(240000), both.Total)

	later := CustomerARR(table, d(2022, 9, 15), false)
	require.Len(t, later.Rows, 2)
	assert.Equal(t, int64(0), later.Rows[1].Amount)
	assert.Equal(t, int64(120000), later.Total)

	nonZero := CustomerARR(table, d(2022, 9, 15), true)
	require.Len(t, nonZero.Rows, 1)
	assert.Equal(t, "Acme", nonZero.Rows[0].Customer)
}

func TestCustomerCARR(t *testing.T) {
	table, _ := mustBuild(t, caseTwoSegments(), domain.ExclusionGlobal)

	carr := CustomerCARR(table, d(2023, 6, 15), true)
	require.Len(t, carr.Rows, 1)
	assert.Equal(t, int64(240000), carr.Total)
}

func TestCustomerARRByPeriod(t *testing.T) {
	table, _ := mustBuild(t, twoCustomerSegments(), domain.ExclusionGlobal)
	periods, err := GeneratePeriods(d(2022, 4, 1), d(2022, 9, 30), domain.TimeframeQuarter)
	require.NoError(t, err)

	m := CustomerARRByPeriod(table, periods, false)
	assert.Equal(t, []string{"Q2 2022", "Q3 2022"}, m.Columns)
	require.Len(t, m.Rows, 2)
	assert.Equal(t, []int64{120000, 120000}, m.Rows[0].Values)
	assert.Equal(t, []int64{120000, 0}, m.Rows[1].Values)
	assert.Equal(t, []int64{240000, 120000}, m.Totals)
}

func TestNewARRByTimeframe(t *testing.T) {
	table, _ := mustBuild(t, caseTwoSegments(), domain.ExclusionGlobal)

	booked, err := NewARRByTimeframe(table, d(2022, 5, 20), domain.TimeframeMonth, true)
	require.NoError(t, err)
	assert.Equal(t, "May 2022", booked.Label)
	assert.Equal(t, int64(120000), booked.Total)

	renewal, err := NewARRByTimeframe(table, d(2023, 5, 20), domain.TimeframeMonth, true)
	require.NoError(t, err)
	assert.Empty(t, renewal.Rows)
	assert.Zero(t, renewal.Total)

	_, err = NewARRByTimeframe(table, d(2023, 5, 20), "W", true)
	require.ErrorIs(t, err, domain.ErrInvalidTimeframe)
}

func TestBookings(t *testing.T) {
	contracts := caseTwoContracts()

	may := Bookings(contracts, d(2022, 5, 1), d(2022, 5, 31), false)
	assert.Equal(t, int64(120000), may.Total)

	june := Bookings(contracts, d(2022, 6, 1), d(2022, 6, 30), false)
	require.Len(t, june.Rows, 1)
	assert.Zero(t, june.Total)
	assert.Empty(t, Bookings(contracts, d(2022, 6, 1), d(2022, 6, 30), true).Rows)

	periods, err := GeneratePeriods(d(2022, 4, 1), d(2023, 6, 30), domain.TimeframeQuarter)
	require.NoError(t, err)
	m := BookingsByPeriod(contracts, periods, false)
	require.Len(t, m.Rows, 1)
	assert.Equal(t, []int64{120000, 0, 0, 0, 240000}, m.Totals)
}

func TestMonthlySeries_SingleContract(t *testing.T) {
	table, _ := mustBuild(t, caseOneSegments(), domain.ExclusionGlobal)
	contracts := caseTwoContracts()[:1]

	series := MonthlySeries(table, contracts, d(2022, 5, 1), d(2023, 6, 30))
	require.Len(t, series, 14)

	for i, p := range series[:13] {
		assert.Equal(t, int64(120000), p.CARR, p.Date.Format("2006-01-02"))
		assert.Equal(t, int64(120000), p.ARR, p.Date.Format("2006-01-02"))
		if i == 0 {
			assert.Equal(t, int64(120000), p.Bookings)
		} else {
			assert.Zero(t, p.Bookings)
		}
	}
	assert.Equal(t, domain.SeriesPoint{Date: d(2023, 6, 30)}, series[13])
}

func TestMonthlySeries_Renewal(t *testing.T) {
	table, _ := mustBuild(t, caseTwoSegments(), domain.ExclusionActive)
	series := MonthlySeries(table, caseTwoContracts(), d(2023, 4, 1), d(2023, 6, 30))
	require.Len(t, series, 3)

	assert.Equal(t, int64(120000), series[0].CARR)
	assert.Equal(t, int64(120000), series[0].ARR)

	assert.Equal(t, int64(240000), series[1].Bookings)
	assert.Equal(t, int64(240000), series[1].CARR)
	assert.Equal(t, int64(240000), series[1].ARR)

	assert.Equal(t, int64(240000), series[2].CARR)
}

func TestRevenueMatrix(t *testing.T) {
	table, _ := mustBuild(t, caseOneSegments(), domain.ExclusionGlobal)

	m := RevenueMatrix(table, d(2022, 5, 1), d(2022, 6, 30), domain.SampleMid)
	assert.Equal(t, []string{"May 2022", "Jun 2022"}, m.Columns)
	assert.Equal(t, d(2022, 5, 15), m.Dates[0])
	require.Len(t, m.Rows, 1)
	assert.Equal(t, []int64{10000, 10000}, m.Rows[0].Values)

	empty := RevenueMatrix(table, d(2023, 7, 1), d(2023, 8, 31), domain.SampleEnd)
	assert.Empty(t, empty.Rows)
	assert.Equal(t, []int64{0, 0}, empty.Totals)
}

func TestParseSampleDay(t *testing.T) {
	sample, err := ParseSampleDay("end")
	require.NoError(t, err)
	assert.Equal(t, domain.SampleEnd, sample)

	_, err = ParseSampleDay("first")
	require.ErrorIs(t, err, domain.ErrInvalidSampleDay)
}

func TestMRRMetrics(t *testing.T) {
	table, _ := mustBuild(t, caseTwoSegments(), domain.ExclusionActive)

	months := MRRMetrics(table, d(2023, 4, 1), d(2023, 6, 30), domain.SampleEnd)
	require.Len(t, months, 3)

	assert.Equal(t, int64(10000), months[0].Starting)
	assert.Equal(t, int64(10000), months[0].Ending)
	assert.Equal(t, int64(10000), months[1].Expansion)
	assert.Equal(t, int64(20000), months[1].Ending)
	assert.Equal(t, months[1].Ending, months[2].Starting)
	assert.Zero(t, months[2].Churn)
}

func TestTrailingRetention(t *testing.T) {
	t.Run("churned customer", func(t *testing.T) {
		table, _ := mustBuild(t, caseOneSegments(), domain.ExclusionGlobal)
		r := TrailingRetention(table, d(2023, 6, 30), domain.SampleEnd)

		assert.Equal(t, d(2022, 7, 1), r.WindowStart)
		assert.Equal(t, int64(120000), r.BeginningARR)
		assert.Equal(t, int64(120000), r.Churn)
		assert.Zero(t, r.GrossDollarRetention)
		assert.Zero(t, r.NetDollarRetention)
		require.NotNil(t, r.GrossRetentionRate)
		assert.InDelta(t, 0.0, *r.GrossRetentionRate, 1e-9)
	})

	t.Run("expanded customer", func(t *testing.T) {
		table, _ := mustBuild(t, caseTwoSegments(), domain.ExclusionActive)
		r := TrailingRetention(table, d(2023, 12, 31), domain.SampleEnd)

		assert.Equal(t, int64(120000), r.BeginningARR)
		assert.Equal(t, int64(120000), r.Expansion)
		assert.Equal(t, int64(120000), r.GrossDollarRetention)
		assert.Equal(t, int64(240000), r.NetDollarRetention)
		require.NotNil(t, r.NetRetentionRate)
		assert.InDelta(t, 2.0, *r.NetRetentionRate, 1e-9)
	})

	t.Run("no revenue at window start", func(t *testing.T) {
		table, _ := mustBuild(t, caseOneSegments(), domain.ExclusionGlobal)
		r := TrailingRetention(table, d(2022, 3, 31), domain.SampleEnd)
		assert.Zero(t, r.BeginningARR)
		assert.Nil(t, r.GrossRetentionRate)
	})
}
