package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/saasops/internal/arr/domain"
)

// ParseTimeframe accepts "M" or "Q" in either case.
func ParseTimeframe(raw string) (domain.Timeframe, error) {
	switch domain.Timeframe(strings.ToUpper(strings.TrimSpace(raw))) {
	case domain.TimeframeMonth:
		return domain.TimeframeMonth, nil
	case domain.TimeframeQuarter:
		return domain.TimeframeQuarter, nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidTimeframe, raw)
	}
}

// TimeframeBounds returns the first and last day of the month or quarter
// containing date.
func TimeframeBounds(date time.Time, tf domain.Timeframe) (time.Time, time.Time, error) {
	date = Date(date)
	switch tf {
	case domain.TimeframeMonth:
		return startOfMonth(date), endOfMonth(date), nil
	case domain.TimeframeQuarter:
		firstMonth := time.Month((int(date.Month())-1)/3*3 + 1)
		start := time.Date(date.Year(), firstMonth, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, -1), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", domain.ErrInvalidTimeframe, tf)
	}
}

// PeriodContaining returns the labelled period that contains date.
func PeriodContaining(date time.Time, tf domain.Timeframe) (domain.Period, error) {
	start, end, err := TimeframeBounds(date, tf)
	if err != nil {
		return domain.Period{}, err
	}
	return domain.Period{Start: start, End: end, Label: Label(start, tf)}, nil
}

// GeneratePeriods lists consecutive periods from the one containing start
// up to the last one that ends on or before end.
func GeneratePeriods(start, end time.Time, tf domain.Timeframe) ([]domain.Period, error) {
	start, end = Date(start), Date(end)
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s is after %s", domain.ErrInvalidRange,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}

	p, err := PeriodContaining(start, tf)
	if err != nil {
		return nil, err
	}
	var periods []domain.Period
	for !p.End.After(end) {
		periods = append(periods, p)
		p, _ = PeriodContaining(p.End.AddDate(0, 0, 1), tf)
	}
	if len(periods) == 0 {
		return nil, fmt.Errorf("%w: %s to %s", domain.ErrNoPeriods,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return periods, nil
}

// Label is the short column label of a period, "Jan 2024" or "Q1 2024".
func Label(date time.Time, tf domain.Timeframe) string {
	if tf == domain.TimeframeQuarter {
		return fmt.Sprintf("Q%d %d", (int(date.Month())-1)/3+1, date.Year())
	}
	return date.Format("Jan 2006")
}

// Title is the long form used in report headings.
func Title(date time.Time, tf domain.Timeframe) string {
	if tf == domain.TimeframeQuarter {
		return Label(date, tf)
	}
	return date.Format("January 2006")
}

// MonthEnds lists the last day of every month from start's month through
// end's month.
func MonthEnds(start, end time.Time) []time.Time {
	var out []time.Time
	for m := startOfMonth(Date(start)); !m.After(Date(end)); m = m.AddDate(0, 1, 0) {
		out = append(out, endOfMonth(m))
	}
	return out
}
