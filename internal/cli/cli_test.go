package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	arrdomain "github.com/smallbiznis/saasops/internal/arr/domain"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCustomers() arrdomain.CustomerTableResponse {
	return arrdomain.CustomerTableResponse{
		Meta: arrdomain.Meta{
			RunID:    "run-1",
			Currency: "USD",
			Anomalies: []arrdomain.Anomaly{
				{Kind: arrdomain.AnomalyUnresolvedRenewal, Message: "contract 9 renews unknown contract 8"},
			},
		},
		Table: arrdomain.CustomerTable{
			Date: time.Date(2022, 7, 15, 0, 0, 0, 0, time.UTC),
			Rows: []arrdomain.CustomerAmount{
				{Customer: "Acme", Amount: 12000000},
				{Customer: "Beta", Amount: 0},
			},
			Total: 12000000,
		},
	}
}

func TestRenderTable(t *testing.T) {
	var out, errOut bytes.Buffer
	require.NoError(t, render(&out, &errOut, formatTable, sampleCustomers()))

	text := out.String()
	assert.Contains(t, text, "As of 2022-07-15 (USD)")
	assert.Contains(t, text, "Acme")
	assert.Contains(t, text, "120,000.00")
	assert.Contains(t, text, "Total")
	assert.Contains(t, errOut.String(), "unresolved_renewal")
}

func TestRenderJSONAndYAML(t *testing.T) {
	var out, errOut bytes.Buffer
	require.NoError(t, render(&out, &errOut, formatJSON, sampleCustomers()))

	var decoded arrdomain.CustomerTableResponse
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, int64(12000000), decoded.Table.Total)

	out.Reset()
	require.NoError(t, render(&out, &errOut, formatYAML, sampleCustomers()))
	assert.Contains(t, out.String(), "run_id: run-1")
	assert.Contains(t, out.String(), "customer: Acme")

	require.Error(t, render(&out, &errOut, "xml", sampleCustomers()))
}

func TestChangesView(t *testing.T) {
	v, err := tableView(arrdomain.ChangeTableResponse{
		Changes: arrdomain.ChangeTable{
			Columns: []arrdomain.ChangeColumn{{
				Period:    arrdomain.Period{Label: "Q2 2023"},
				Beginning: 12000000,
				Movement:  arrdomain.Movement{Expansion: 12000000, Churn: 500},
				Ending:    23999500,
			}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"", "Q2 2023"}, v.headers)
	require.Len(t, v.rows, 6)
	assert.Equal(t, []string{"Expansion", "120,000.00"}, v.rows[2])
	assert.Equal(t, []string{"Churn", "-5.00"}, v.rows[4])
	assert.True(t, v.numeric[1])

	_, err = tableView(struct{}{})
	require.Error(t, err)
}

func TestReportFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	flags := &reportFlags{}
	flags.bindRange(cmd)

	require.NoError(t, cmd.Flags().Parse([]string{
		"--start", "2023-01-01", "--end", "2023-12-31",
		"--timeframe", "q", "--sample", "END",
		"--customer", "42", "--exclusion", "Active",
	}))
	req, err := flags.rangeRequest()
	require.NoError(t, err)
	assert.Equal(t, arrdomain.TimeframeQuarter, req.Timeframe)
	assert.Equal(t, arrdomain.SampleEnd, req.Sample)
	assert.Equal(t, arrdomain.ExclusionActive, req.Exclusion)
	assert.EqualValues(t, 42, req.CustomerID)
	assert.Nil(t, req.IgnoreZeros)
	assert.Equal(t, time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC), req.End)

	require.NoError(t, cmd.Flags().Parse([]string{"--ignore-zeros=false"}))
	req, err = flags.rangeRequest()
	require.NoError(t, err)
	require.NotNil(t, req.IgnoreZeros)
	assert.False(t, *req.IgnoreZeros)
}

func TestReportFlagsRejectBadInput(t *testing.T) {
	_, err := parseDate("date", "2023-02-30")
	require.ErrorIs(t, err, arrdomain.ErrInvalidDate)

	_, err = parseID("customer", "acme")
	require.Error(t, err)

	flags := &reportFlags{timeframe: "W"}
	_, err = flags.rangeRequest()
	require.ErrorIs(t, err, arrdomain.ErrInvalidTimeframe)
}

func TestExportPath(t *testing.T) {
	rep := arrdomain.Report{
		Start: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC),
	}
	dir := t.TempDir()

	assert.Equal(t, "arr-report-2023-01-01-2023-12-31.pdf", exportPath("", rep))
	assert.Equal(t, filepath.Join(dir, "arr-report-2023-01-01-2023-12-31.pdf"), exportPath(dir, rep))
	assert.Equal(t, filepath.Join(dir, "q4.pdf"), exportPath(filepath.Join(dir, "q4.pdf"), rep))
	assert.Equal(t, filepath.Join(dir, "new", "arr-report-2023-01-01-2023-12-31.pdf"),
		exportPath(filepath.Join(dir, "new")+string(os.PathSeparator), rep))
}

func TestCommandTree(t *testing.T) {
	names := map[string]bool{}
	for _, cmd := range rootCmd.Commands() {
		names[strings.Fields(cmd.Use)[0]] = true
	}
	for _, want := range []string{"serve", "migrate", "seed", "table", "arr", "carr", "new-arr", "periods", "changes", "bookings", "bookings-summary", "series", "revenue", "mrr", "retention", "export", "version"} {
		assert.True(t, names[want], want)
	}
}
