package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	arrdomain "github.com/smallbiznis/saasops/internal/arr/domain"
	"github.com/smallbiznis/saasops/internal/report"
	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	numberStyle  = cellStyle.Align(lipgloss.Right)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F4D03F"))
)

// view is a report flattened into rows of text.
type view struct {
	title   string
	headers []string
	rows    [][]string
	// numeric marks columns rendered right aligned.
	numeric map[int]bool
	meta    arrdomain.Meta
}

func render(out, errOut io.Writer, format string, resp any) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case formatYAML:
		body, err := toYAML(resp)
		if err != nil {
			return err
		}
		_, err = out.Write(body)
		return err
	case formatTable:
		v, err := tableView(resp)
		if err != nil {
			return err
		}
		printAnomalies(errOut, v.meta.Anomalies)
		return writeTable(out, v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

// toYAML goes through JSON so field names match the API payloads.
func toYAML(resp any) ([]byte, error) {
	body, err := json.Marshal(resp)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		return nil, err
	}
	return yaml.Marshal(generic)
}

func writeTable(out io.Writer, v view) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(v.headers...).
		Rows(v.rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case v.numeric[col]:
				return numberStyle
			default:
				return cellStyle
			}
		})

	if v.title != "" {
		if _, err := fmt.Fprintln(out, titleStyle.Render(v.title)); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(out, t.Render())
	return err
}

func printAnomalies(out io.Writer, anomalies []arrdomain.Anomaly) {
	for _, a := range anomalies {
		fmt.Fprintln(out, warningStyle.Render("warning: "+string(a.Kind)+": "+a.Message))
	}
}

func tableView(resp any) (view, error) {
	switch r := resp.(type) {
	case arrdomain.TableResponse:
		return arrTableView(r), nil
	case arrdomain.CustomerTableResponse:
		return customerTableView(r), nil
	case arrdomain.MatrixResponse:
		return matrixView(r), nil
	case arrdomain.ChangeTableResponse:
		return changesView(r), nil
	case arrdomain.SeriesResponse:
		return seriesView(r), nil
	case arrdomain.MRRResponse:
		return mrrView(r), nil
	case arrdomain.RetentionResponse:
		return retentionView(r), nil
	default:
		return view{}, fmt.Errorf("no table layout for %T", resp)
	}
}

func arrTableView(r arrdomain.TableResponse) view {
	v := view{
		title:   fmt.Sprintf("ARR table (%s, %d non-recurring skipped)", r.Currency, r.Skipped),
		headers: []string{"Segment", "Contract", "Customer", "ARR start", "ARR end", "ARR", "Months", "Start rule"},
		numeric: map[int]bool{5: true, 6: true},
		meta:    r.Meta,
	}
	for _, row := range r.Rows {
		v.rows = append(v.rows, []string{
			row.SegmentID.String(),
			row.ContractID.String(),
			row.CustomerName,
			day(row.ARRStartDate),
			day(row.ARREndDate),
			report.FormatAmount(row.ARR),
			strconv.Itoa(row.ContractMonths),
			string(row.StartRule),
		})
	}
	return v
}

func customerTableView(r arrdomain.CustomerTableResponse) view {
	title := "As of " + day(r.Table.Date)
	if r.Table.Label != "" {
		title = r.Table.Label
	}
	v := view{
		title:   fmt.Sprintf("%s (%s)", title, r.Currency),
		headers: []string{"Customer", "Amount"},
		numeric: map[int]bool{1: true},
		meta:    r.Meta,
	}
	for _, row := range r.Table.Rows {
		v.rows = append(v.rows, []string{row.Customer, report.FormatAmount(row.Amount)})
	}
	v.rows = append(v.rows, []string{"Total", report.FormatAmount(r.Table.Total)})
	return v
}

func matrixView(r arrdomain.MatrixResponse) view {
	v := view{
		headers: append([]string{"Customer"}, r.Matrix.Columns...),
		numeric: map[int]bool{},
		meta:    r.Meta,
	}
	if r.Currency != "" {
		v.title = "Amounts in " + r.Currency
	}
	for i := range r.Matrix.Columns {
		v.numeric[i+1] = true
	}
	for _, row := range r.Matrix.Rows {
		v.rows = append(v.rows, append([]string{row.Customer}, amounts(row.Values)...))
	}
	v.rows = append(v.rows, append([]string{"Total"}, amounts(r.Matrix.Totals)...))
	return v
}

func changesView(r arrdomain.ChangeTableResponse) view {
	v := view{
		title:   fmt.Sprintf("ARR changes (%s)", r.Currency),
		headers: []string{""},
		numeric: map[int]bool{},
		meta:    r.Meta,
	}
	for i, c := range r.Changes.Columns {
		v.headers = append(v.headers, c.Period.Label)
		v.numeric[i+1] = true
	}
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
		row := []string{l.label}
		for _, c := range r.Changes.Columns {
			row = append(row, report.FormatAmount(l.value(c)))
		}
		v.rows = append(v.rows, row)
	}
	return v
}

func seriesView(r arrdomain.SeriesResponse) view {
	v := view{
		headers: []string{"Month end", "Bookings", "ARR", "CARR"},
		numeric: map[int]bool{1: true, 2: true, 3: true},
		meta:    r.Meta,
	}
	for _, p := range r.Points {
		v.rows = append(v.rows, []string{
			day(p.Date),
			report.FormatAmount(p.Bookings),
			report.FormatAmount(p.ARR),
			report.FormatAmount(p.CARR),
		})
	}
	return v
}

func mrrView(r arrdomain.MRRResponse) view {
	v := view{
		title:   fmt.Sprintf("MRR sampled at month %s", r.Sample),
		headers: []string{"Month", "Starting", "New", "Expansion", "Contraction", "Churn", "Ending"},
		numeric: map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true},
		meta:    r.Meta,
	}
	for _, m := range r.Months {
		v.rows = append(v.rows, []string{
			m.Date.Format("Jan 2006"),
			report.FormatAmount(m.Starting),
			report.FormatAmount(m.New),
			report.FormatAmount(m.Expansion),
			report.FormatAmount(-m.Contraction),
			report.FormatAmount(-m.Churn),
			report.FormatAmount(m.Ending),
		})
	}
	return v
}

func retentionView(r arrdomain.RetentionResponse) view {
	ret := r.Retention
	return view{
		title:   fmt.Sprintf("Trailing twelve months %s to %s", day(ret.WindowStart), day(ret.Date)),
		headers: []string{"Metric", "Value"},
		numeric: map[int]bool{1: true},
		meta:    r.Meta,
		rows: [][]string{
			{"Beginning ARR", report.FormatAmount(ret.BeginningARR)},
			{"Churn", report.FormatAmount(-ret.Churn)},
			{"Contraction", report.FormatAmount(-ret.Contraction)},
			{"Gross dollar retention", report.FormatAmount(ret.GrossDollarRetention)},
			{"Expansion", report.FormatAmount(ret.Expansion)},
			{"Net dollar retention", report.FormatAmount(ret.NetDollarRetention)},
			{"Gross retention rate", report.FormatRate(ret.GrossRetentionRate)},
			{"Net retention rate", report.FormatRate(ret.NetRetentionRate)},
		},
	}
}

func amounts(values []int64) []string {
	out := make([]string, len(values))
	for i, value := range values {
		out[i] = report.FormatAmount(value)
	}
	return out
}

func day(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.DateOnly)
}
