package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	arrdomain "github.com/smallbiznis/saasops/internal/arr/domain"
	"github.com/smallbiznis/saasops/internal/report"
	"github.com/spf13/cobra"
)

func newExportCommand() *cobra.Command {
	var (
		flags reportFlags
		out   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the ARR report as a PDF",
		Long: `Export builds the ARR change table, customer ARR at the range end,
the bookings matrix and trailing retention, and writes them to one PDF.

Example:
  saasops export --start 2023-01-01 --end 2023-12-31 --timeframe Q
  saasops export --out reports/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := flags.rangeRequest()
			if err != nil {
				return err
			}
			return withARRService(cmd.Context(), func(ctx context.Context, svc arrdomain.Service) error {
				rep, err := svc.Report(ctx, req)
				if err != nil {
					return err
				}
				body, err := report.NewRenderer().Render(ctx, rep)
				if err != nil {
					return err
				}
				path := exportPath(out, rep)
				if err := os.WriteFile(path, body, 0o644); err != nil {
					return err
				}
				printAnomalies(cmd.ErrOrStderr(), rep.Anomalies)
				cmd.PrintErrln("wrote " + path)
				return nil
			})
		},
	}
	flags.bindRange(cmd)
	cmd.Flags().StringVar(&out, "out", "", "output file or directory (default: slugged name in the working directory)")
	return cmd
}

// exportPath treats an existing directory or a trailing separator as a
// directory for the default file name.
func exportPath(out string, rep arrdomain.Report) string {
	name := report.FileName(rep)
	out = strings.TrimSpace(out)
	if out == "" {
		return name
	}
	if strings.HasSuffix(out, string(os.PathSeparator)) {
		return filepath.Join(out, name)
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, name)
	}
	return out
}

func init() {
	rootCmd.AddCommand(newExportCommand())
}
