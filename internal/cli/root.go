package cli

import (
	"context"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var (
	outputFormat    string
	verbose         bool
	reportingConfig string
)

var rootCmd = &cobra.Command{
	Use:   "saasops",
	Short: "SaaS ARR attribution and reporting",
	Long: `saasops turns a contract and segment ledger into an ARR table and
derives customer ARR, ARR change, bookings, revenue, MRR and retention
reports from it.

Reports read the ledger from the configured database on every run.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("saasops " + version())
	},
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "", "output format: table, json or yaml (default table on a terminal, json otherwise)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at info level and show dependency wiring")
	rootCmd.PersistentFlags().StringVar(&reportingConfig, "reporting-config", "", "extra directory searched for reporting.yml")

	rootCmd.AddCommand(versionCmd)
}

func version() string {
	if v := strings.TrimSpace(os.Getenv("APP_VERSION")); v != "" {
		return v
	}
	return "dev"
}

func resolvedFormat() string {
	format := strings.ToLower(strings.TrimSpace(outputFormat))
	if format != "" {
		return format
	}
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return formatTable
	}
	return formatJSON
}
