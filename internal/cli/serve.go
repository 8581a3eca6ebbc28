package cli

import (
	"github.com/smallbiznis/saasops/internal/migration"
	"github.com/smallbiznis/saasops/internal/seed"
	"github.com/smallbiznis/saasops/internal/server"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve migrates the database, optionally seeds the fixture ledger
(SEED_ON_START=true) and serves the report API on HTTP_ADDR.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := fx.New(
			serverOptions()...,
		)
		if err := app.Err(); err != nil {
			return err
		}
		app.Run()
		return nil
	},
}

// serverOptions keeps logs on stdout; only the CLI reports move them aside.
func serverOptions() []fx.Option {
	return []fx.Option{
		infraOptions(),
		server.Module,
		seed.Module,
		migration.Module,
		fxLogger(),
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
