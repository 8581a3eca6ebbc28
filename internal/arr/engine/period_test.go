package engine

import (
	"testing"

	"github.com/smallbiznis/saasops/internal/arr/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("q")
	require.NoError(t, err)
	assert.Equal(t, domain.TimeframeQuarter, tf)

	tf, err = ParseTimeframe(" M ")
	require.NoError(t, err)
	assert.Equal(t, domain.TimeframeMonth, tf)

	_, err = ParseTimeframe("W")
	require.ErrorIs(t, err, domain.ErrInvalidTimeframe)
}

func TestTimeframeBounds(t *testing.T) {
	cases := []struct {
		tf         domain.Timeframe
		date       string
		start, end string
	}{
		{domain.TimeframeMonth, "2024-02-10", "2024-02-01", "2024-02-29"},
		{domain.TimeframeMonth, "2023-12-31", "2023-12-01", "2023-12-31"},
		{domain.TimeframeQuarter, "2024-02-10", "2024-01-01", "2024-03-31"},
		{domain.TimeframeQuarter, "2024-06-30", "2024-04-01", "2024-06-30"},
		{domain.TimeframeQuarter, "2024-11-01", "2024-10-01", "2024-12-31"},
	}
	for _, tc := range cases {
		t.Run(string(tc.tf)+" "+tc.date, func(t *testing.T) {
			start, end, err := TimeframeBounds(parseDay(t, tc.date), tc.tf)
			require.NoError(t, err)
			assert.Equal(t, tc.start, start.Format("2006-01-02"))
			assert.Equal(t, tc.end, end.Format("2006-01-02"))
		})
	}
}

func TestGeneratePeriods(t *testing.T) {
	t.Run("starts with the period containing start", func(t *testing.T) {
		periods, err := GeneratePeriods(d(2022, 1, 15), d(2022, 3, 31), domain.TimeframeMonth)
		require.NoError(t, err)
		require.Len(t, periods, 3)
		assert.Equal(t, d(2022, 1, 1), periods[0].Start)
		assert.Equal(t, "Mar 2022", periods[2].Label)
	})

	t.Run("drops a trailing partial period", func(t *testing.T) {
		periods, err := GeneratePeriods(d(2022, 1, 1), d(2022, 3, 30), domain.TimeframeMonth)
		require.NoError(t, err)
		require.Len(t, periods, 2)
		assert.Equal(t, d(2022, 2, 28), periods[1].End)
	})

	t.Run("quarters", func(t *testing.T) {
		periods, err := GeneratePeriods(d(2023, 2, 1), d(2023, 12, 31), domain.TimeframeQuarter)
		require.NoError(t, err)
		labels := make([]string, 0, len(periods))
		for _, p := range periods {
			labels = append(labels, p.Label)
		}
		assert.Equal(t, []string{"Q1 2023", "Q2 2023", "Q3 2023", "Q4 2023"}, labels)
	})

	t.Run("range shorter than one period", func(t *testing.T) {
		_, err := GeneratePeriods(d(2022, 1, 1), d(2022, 1, 15), domain.TimeframeMonth)
		require.ErrorIs(t, err, domain.ErrNoPeriods)
	})

	t.Run("end before start", func(t *testing.T) {
		_, err := GeneratePeriods(d(2022, 2, 1), d(2022, 1, 1), domain.TimeframeMonth)
		require.ErrorIs(t, err, domain.ErrInvalidRange)
	})
}

func TestLabelAndTitle(t *testing.T) {
	assert.Equal(t, "Jan 2024", Label(d(2024, 1, 5), domain.TimeframeMonth))
	assert.Equal(t, "January 2024", Title(d(2024, 1, 5), domain.TimeframeMonth))
	assert.Equal(t, "Q3 2024", Label(d(2024, 9, 30), domain.TimeframeQuarter))
	assert.Equal(t, "Q3 2024", Title(d(2024, 9, 30), domain.TimeframeQuarter))
}

func TestMonthEnds(t *testing.T) {
	ends := MonthEnds(d(2023, 11, 20), d(2024, 2, 1))
	require.Len(t, ends, 4)
	assert.Equal(t, d(2023, 11, 30), ends[0])
	assert.Equal(t, d(2024, 2, 29), ends[3])
}
