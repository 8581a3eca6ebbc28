package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/smallbiznis/saasops/internal/arr/domain"
	ledgerdomain "github.com/smallbiznis/saasops/internal/ledger/domain"
)

// CustomerARR is point-in-time ARR per customer on date.
func CustomerARR(t *Table, date time.Time, ignoreZeros bool) domain.CustomerTable {
	date = Date(date)
	return customerTable(t.Customers(), t.ActiveAt(date), date, ignoreZeros)
}

// CustomerCARR is contracted ARR per customer on date.
func CustomerCARR(t *Table, date time.Time, ignoreZeros bool) domain.CustomerTable {
	date = Date(date)
	return customerTable(t.Customers(), t.ContractedAt(date), date, ignoreZeros)
}

func customerTable(customers []string, rows []domain.Row, date time.Time, ignoreZeros bool) domain.CustomerTable {
	amounts := groupByCustomer(rows)
	out := domain.CustomerTable{
		Date:  date,
		Label: date.Format(time.DateOnly),
		Rows:  make([]domain.CustomerAmount, 0, len(customers)),
	}
	for _, name := range customers {
		amount := amounts[name]
		if ignoreZeros && amount == 0 {
			continue
		}
		out.Rows = append(out.Rows, domain.CustomerAmount{Customer: name, Amount: amount})
		out.Total += amount
	}
	return out
}

// CustomerARRByPeriod samples point-in-time ARR on the last day of each
// period.
func CustomerARRByPeriod(t *Table, periods []domain.Period, ignoreZeros bool) domain.Matrix {
	samples := make([]map[string]int64, len(periods))
	for i, p := range periods {
		samples[i] = groupByCustomer(t.ActiveAt(p.End))
	}
	return buildMatrix(t.Customers(), periods, samples, ignoreZeros)
}

// NewARRByTimeframe is the ARR of non-renewal rows whose recognition starts
// in the period containing date.
func NewARRByTimeframe(t *Table, date time.Time, tf domain.Timeframe, ignoreZeros bool) (domain.CustomerTable, error) {
	p, err := PeriodContaining(date, tf)
	if err != nil {
		return domain.CustomerTable{}, err
	}
	var rows []domain.Row
	for _, r := range t.rows {
		if r.IsRenewal() || r.ARRStartDate.Before(p.Start) || r.ARRStartDate.After(p.End) {
			continue
		}
		rows = append(rows, *r)
	}
	out := customerTable(t.Customers(), rows, p.End, ignoreZeros)
	out.Label = p.Label
	return out, nil
}

// Bookings sums contract total values booked in [start, end] per customer.
func Bookings(contracts []ledgerdomain.ContractRow, start, end time.Time, ignoreZeros bool) domain.CustomerTable {
	start, end = Date(start), Date(end)
	amounts := bookingsBetween(contracts, start, end)
	out := domain.CustomerTable{
		Date:  end,
		Label: fmt.Sprintf("%s to %s", start.Format(time.DateOnly), end.Format(time.DateOnly)),
	}
	for _, name := range contractCustomers(contracts) {
		amount := amounts[name]
		if ignoreZeros && amount == 0 {
			continue
		}
		out.Rows = append(out.Rows, domain.CustomerAmount{Customer: name, Amount: amount})
		out.Total += amount
	}
	return out
}

// BookingsByPeriod is the customer by period bookings matrix.
func BookingsByPeriod(contracts []ledgerdomain.ContractRow, periods []domain.Period, ignoreZeros bool) domain.Matrix {
	samples := make([]map[string]int64, len(periods))
	for i, p := range periods {
		samples[i] = bookingsBetween(contracts, Date(p.Start), Date(p.End))
	}
	return buildMatrix(contractCustomers(contracts), periods, samples, ignoreZeros)
}

// MonthlySeries reports bookings, ARR and CARR at every month end in range.
func MonthlySeries(t *Table, contracts []ledgerdomain.ContractRow, start, end time.Time) []domain.SeriesPoint {
	ends := MonthEnds(start, end)
	out := make([]domain.SeriesPoint, 0, len(ends))
	for _, monthEnd := range ends {
		var booked int64
		for _, amount := range bookingsBetween(contracts, startOfMonth(monthEnd), monthEnd) {
			booked += amount
		}
		out = append(out, domain.SeriesPoint{
			Date:     monthEnd,
			Bookings: booked,
			ARR:      sumARR(t.ActiveAt(monthEnd)),
			CARR:     sumARR(t.ContractedAt(monthEnd)),
		})
	}
	return out
}

// ParseSampleDay accepts "mid" or "end".
func ParseSampleDay(raw string) (domain.SampleDay, error) {
	switch domain.SampleDay(raw) {
	case domain.SampleMid, domain.SampleEnd:
		return domain.SampleDay(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidSampleDay, raw)
	}
}

func sampleDate(month time.Time, sample domain.SampleDay) time.Time {
	if sample == domain.SampleMid {
		return startOfMonth(month).AddDate(0, 0, 14)
	}
	return endOfMonth(month)
}

// customerMRR is monthly revenue per customer from rows active on date.
func customerMRR(t *Table, date time.Time) map[string]int64 {
	arr := groupByCustomer(t.ActiveAt(date))
	out := make(map[string]int64, len(arr))
	for name, amount := range arr {
		out[name] = divRound(amount, 12)
	}
	return out
}

// RevenueMatrix is monthly revenue per customer, one column per month in
// range, each sampled on the configured day of the month.
func RevenueMatrix(t *Table, start, end time.Time, sample domain.SampleDay) domain.Matrix {
	ends := MonthEnds(start, end)
	periods := make([]domain.Period, len(ends))
	samples := make([]map[string]int64, len(ends))
	for i, monthEnd := range ends {
		at := sampleDate(monthEnd, sample)
		periods[i] = domain.Period{Start: at, End: at, Label: Label(at, domain.TimeframeMonth)}
		samples[i] = customerMRR(t, at)
	}
	return buildMatrix(t.Customers(), periods, samples, true)
}

// MRRMetrics breaks month-over-month MRR changes into new, churned,
// expanded and contracted customers. The first month compares against the
// month before start.
func MRRMetrics(t *Table, start, end time.Time, sample domain.SampleDay) []domain.MRRMovement {
	ends := MonthEnds(start, end)
	out := make([]domain.MRRMovement, 0, len(ends))
	if len(ends) == 0 {
		return out
	}

	prev := customerMRR(t, sampleDate(startOfMonth(ends[0]).AddDate(0, -1, 0), sample))
	for _, monthEnd := range ends {
		at := sampleDate(monthEnd, sample)
		cur := customerMRR(t, at)
		m := domain.MRRMovement{Date: at, Starting: sumAmounts(prev)}
		for _, name := range t.Customers() {
			before, after := prev[name], cur[name]
			switch {
			case before == 0 && after > 0:
				m.New += after
			case before > 0 && after == 0:
				m.Churn += before
			case after > before && before > 0:
				m.Expansion += after - before
			case after < before && after > 0:
				m.Contraction += before - after
			}
		}
		m.Ending = m.Starting + m.New + m.Expansion - m.Contraction - m.Churn
		out = append(out, m)
		prev = cur
	}
	return out
}

// TrailingRetention summarizes the twelve months ending with date's month.
func TrailingRetention(t *Table, date time.Time, sample domain.SampleDay) domain.Retention {
	date = Date(date)
	first := startOfMonth(date).AddDate(0, -11, 0)
	movements := MRRMetrics(t, first, endOfMonth(date), sample)

	r := domain.Retention{Date: date, WindowStart: first}
	if len(movements) > 0 {
		r.BeginningARR = movements[0].Starting * 12
	}
	for _, m := range movements {
		r.Churn += m.Churn * 12
		r.Contraction += m.Contraction * 12
		r.Expansion += m.Expansion * 12
	}
	r.GrossDollarRetention = r.BeginningARR - r.Churn - r.Contraction
	r.NetDollarRetention = r.GrossDollarRetention + r.Expansion
	if r.BeginningARR > 0 {
		gross := float64(r.GrossDollarRetention) / float64(r.BeginningARR)
		net := float64(r.NetDollarRetention) / float64(r.BeginningARR)
		r.GrossRetentionRate = &gross
		r.NetRetentionRate = &net
	}
	return r
}

func groupByCustomer(rows []domain.Row) map[string]int64 {
	out := make(map[string]int64)
	for _, r := range rows {
		out[r.CustomerName] += r.ARR
	}
	return out
}

func bookingsBetween(contracts []ledgerdomain.ContractRow, start, end time.Time) map[string]int64 {
	out := make(map[string]int64)
	for _, c := range contracts {
		booked := Date(c.ContractDate)
		if booked.Before(start) || booked.After(end) {
			continue
		}
		out[c.CustomerName] += c.TotalValue
	}
	return out
}

func contractCustomers(contracts []ledgerdomain.ContractRow) []string {
	seen := make(map[string]struct{}, len(contracts))
	names := make([]string, 0, len(contracts))
	for _, c := range contracts {
		if _, ok := seen[c.CustomerName]; ok {
			continue
		}
		seen[c.CustomerName] = struct{}{}
		names = append(names, c.CustomerName)
	}
	sort.Strings(names)
	return names
}

func buildMatrix(customers []string, periods []domain.Period, samples []map[string]int64, ignoreZeros bool) domain.Matrix {
	m := domain.Matrix{
		Columns: make([]string, len(periods)),
		Dates:   make([]time.Time, len(periods)),
		Rows:    make([]domain.MatrixRow, 0, len(customers)),
		Totals:  make([]int64, len(periods)),
	}
	for i, p := range periods {
		m.Columns[i] = p.Label
		m.Dates[i] = Date(p.End)
	}
	for _, name := range customers {
		row := domain.MatrixRow{Customer: name, Values: make([]int64, len(periods))}
		nonZero := false
		for i := range periods {
			row.Values[i] = samples[i][name]
			if row.Values[i] != 0 {
				nonZero = true
			}
		}
		if ignoreZeros && !nonZero {
			continue
		}
		for i, v := range row.Values {
			m.Totals[i] += v
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

func sumAmounts(amounts map[string]int64) int64 {
	var total int64
	for _, v := range amounts {
		total += v
	}
	return total
}
