package engine

import (
	"fmt"
	"math"
	"time"

	"github.com/smallbiznis/saasops/internal/arr/domain"
)

const (
	// Average month length used to turn a day count into contract months.
	daysPerMonth = 30.42
	// A segment further than this from a whole number of months (about six
	// days) raises a length variance alert.
	lengthVarianceTolerance = 0.2
)

// Value is the annualized run rate of one segment.
type Value struct {
	ARR                 int64
	ContractMonths      int
	Months              float64
	LengthVarianceAlert bool
	EndDate             time.Time
}

// CalculateValue annualizes segmentValue over the segment's service dates.
// The month count uses a fixed average month, not calendar months.
func CalculateValue(segmentValue int64, start, end time.Time) (Value, error) {
	days := daysBetween(start, end)
	months := float64(days) / daysPerMonth
	rounded := math.Round(months)
	if rounded < 1 {
		return Value{}, fmt.Errorf("%w: %d days rounds to zero months", domain.ErrDegenerateSegment, days)
	}

	contractMonths := int(rounded)
	return Value{
		ARR:                 divRound(segmentValue*12, int64(contractMonths)),
		ContractMonths:      contractMonths,
		Months:              months,
		LengthVarianceAlert: math.Abs(months-rounded) > lengthVarianceTolerance,
		EndDate:             Date(end),
	}, nil
}

// divRound divides with rounding half away from zero. den must be positive.
func divRound(num, den int64) int64 {
	q := num / den
	r := num % den
	if r < 0 {
		r = -r
	}
	if 2*r >= den {
		if num < 0 {
			q--
		} else {
			q++
		}
	}
	return q
}
