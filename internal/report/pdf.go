package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/orientation"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	arrdomain "github.com/smallbiznis/saasops/internal/arr/domain"
)

// maxMatrixColumns keeps the bookings matrix readable on a landscape page.
const maxMatrixColumns = 8

var (
	headerText = props.Text{Style: fontstyle.Bold, Size: 9}
	cellText   = props.Text{Size: 9}
	numberHead = props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}
	numberCell = props.Text{Size: 9, Align: align.Right}
)

type Renderer struct{}

func NewRenderer() *Renderer {
	return &Renderer{}
}

// FileName is the download name of the report for its date range.
func FileName(r arrdomain.Report) string {
	return slug.Make(fmt.Sprintf("arr report %s %s",
		r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))) + ".pdf"
}

// Render lays out the ARR report and returns the PDF bytes.
func (r *Renderer) Render(ctx context.Context, report arrdomain.Report) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg := config.NewBuilder().
		WithOrientation(orientation.Horizontal).
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()
	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "ARR Report", props.Text{Size: 18, Style: fontstyle.Bold}),
	)
	m.AddRow(10,
		col.New(12).Add(
			text.New(fmt.Sprintf("%s to %s", report.Start.Format(time.DateOnly), report.End.Format(time.DateOnly)), props.Text{Size: 10}),
			text.New(fmt.Sprintf("Run %s, renewal exclusion %s", report.RunID, report.ExclusionScope), props.Text{Size: 8, Top: 5}),
		),
	)

	addChanges(m, report)
	addCustomers(m, report)
	addBookings(m, report)
	addRetention(m, report)
	addAnomalies(m, report.Anomalies)

	doc, err := m.Generate()
	if err != nil {
		return nil, fmt.Errorf("generate report pdf: %w", err)
	}
	return doc.GetBytes(), nil
}

func section(m core.Maroto, title string) {
	m.AddRow(12, text.NewCol(12, title, props.Text{Size: 12, Style: fontstyle.Bold, Top: 4}))
	m.AddRow(2, line.NewCol(12))
}

func addChanges(m core.Maroto, report arrdomain.Report) {
	section(m, "ARR changes")
	columns := report.Changes.Columns
	if len(columns) > maxMatrixColumns {
		columns = columns[len(columns)-maxMatrixColumns:]
	}
	if len(columns) == 0 {
		m.AddRow(8, text.NewCol(12, "No periods in range", cellText))
		return
	}

	width := (12 - 3) / len(columns)
	if width < 1 {
		width = 1
	}
	header := []core.Col{text.NewCol(3, "", headerText)}
	for _, c := range columns {
		header = append(header, text.NewCol(width, c.Period.Label, numberHead))
	}
	m.AddRow(7, header...)

	lines := []struct {
		label string
		value func(arrdomain.ChangeColumn) int64
	}{
		{"Beginning ARR", func(c arrdomain.ChangeColumn) int64 { return c.Beginning }},
		{"New", func(c arrdomain.ChangeColumn) int64 { return c.New }},
		{"Expansion", func(c arrdomain.ChangeColumn) int64 { return c.Expansion }},
		{"Contraction", func(c arrdomain.ChangeColumn) int64 { return -c.Contraction }},
		{"Churn", func(c arrdomain.ChangeColumn) int64 { return -c.Churn }},
		{"Ending ARR", func(c arrdomain.ChangeColumn) int64 { return c.Ending }},
	}
	for _, l := range lines {
		cols := []core.Col{text.NewCol(3, l.label, cellText)}
		for _, c := range columns {
			cols = append(cols, text.NewCol(width, FormatAmount(l.value(c)), numberCell))
		}
		m.AddRow(6, cols...)
	}
}

func addCustomers(m core.Maroto, report arrdomain.Report) {
	section(m, "Customer ARR at "+report.Customers.Date.Format(time.DateOnly))
	m.AddRow(7,
		text.NewCol(8, "Customer", headerText),
		text.NewCol(4, "ARR ("+report.Currency+")", numberHead),
	)
	for _, row := range report.Customers.Rows {
		m.AddRow(6,
			text.NewCol(8, row.Customer, cellText),
			text.NewCol(4, FormatAmount(row.Amount), numberCell),
		)
	}
	m.AddRow(7,
		text.NewCol(8, "Total", headerText),
		text.NewCol(4, FormatAmount(report.Customers.Total), numberHead),
	)
}

func addBookings(m core.Maroto, report arrdomain.Report) {
	section(m, "Bookings")
	matrix := report.Bookings
	start := 0
	if len(matrix.Columns) > maxMatrixColumns {
		start = len(matrix.Columns) - maxMatrixColumns
	}
	labels := matrix.Columns[start:]
	if len(labels) == 0 {
		m.AddRow(8, text.NewCol(12, "No bookings", cellText))
		return
	}
	width := (12 - 3) / len(labels)
	if width < 1 {
		width = 1
	}

	header := []core.Col{text.NewCol(3, "Customer", headerText)}
	for _, label := range labels {
		header = append(header, text.NewCol(width, label, numberHead))
	}
	m.AddRow(7, header...)
	for _, row := range matrix.Rows {
		cols := []core.Col{text.NewCol(3, row.Customer, cellText)}
		for _, v := range row.Values[start:] {
			cols = append(cols, text.NewCol(width, FormatAmount(v), numberCell))
		}
		m.AddRow(6, cols...)
	}
	totals := []core.Col{text.NewCol(3, "Total", headerText)}
	for _, v := range matrix.Totals[start:] {
		totals = append(totals, text.NewCol(width, FormatAmount(v), numberHead))
	}
	m.AddRow(7, totals...)
}

func addRetention(m core.Maroto, report arrdomain.Report) {
	r := report.Retention
	section(m, fmt.Sprintf("Trailing twelve months %s to %s", r.WindowStart.Format(time.DateOnly), r.Date.Format(time.DateOnly)))
	rows := []struct {
		label string
		value string
	}{
		{"Beginning ARR", FormatAmount(r.BeginningARR)},
		{"Churn", FormatAmount(-r.Churn)},
		{"Contraction", FormatAmount(-r.Contraction)},
		{"Gross dollar retention", FormatAmount(r.GrossDollarRetention)},
		{"Expansion", FormatAmount(r.Expansion)},
		{"Net dollar retention", FormatAmount(r.NetDollarRetention)},
		{"Gross retention rate", FormatRate(r.GrossRetentionRate)},
		{"Net retention rate", FormatRate(r.NetRetentionRate)},
	}
	for _, row := range rows {
		m.AddRow(6,
			text.NewCol(8, row.label, cellText),
			text.NewCol(4, row.value, numberCell),
		)
	}
}

func addAnomalies(m core.Maroto, anomalies []arrdomain.Anomaly) {
	if len(anomalies) == 0 {
		return
	}
	section(m, "Warnings")
	for _, a := range anomalies {
		m.AddRow(6,
			text.NewCol(3, string(a.Kind), cellText),
			text.NewCol(9, a.Message, cellText),
		)
	}
}

// FormatAmount renders minor units with thousands separators, e.g.
// 12000000 as "120,000.00".
func FormatAmount(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	whole := fmt.Sprintf("%d", minor/100)
	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return fmt.Sprintf("%s%s.%02d", sign, b.String(), minor%100)
}

func FormatRate(rate *float64) string {
	if rate == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f%%", *rate*100)
}
