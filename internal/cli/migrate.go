package cli

import (
	"context"

	"github.com/smallbiznis/saasops/internal/migration"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var downSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the ledger schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, conn *gorm.DB) error {
			if err := migration.Up(ctx, conn); err != nil {
				return err
			}
			cmd.PrintErrln("schema is up to date")
			return nil
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations (postgres only)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDB(cmd.Context(), func(ctx context.Context, conn *gorm.DB) error {
			if err := migration.Down(conn, downSteps); err != nil {
				return err
			}
			cmd.PrintErrf("rolled back %d migration(s)\n", downSteps)
			return nil
		})
	},
}

func withDB(ctx context.Context, fn func(ctx context.Context, conn *gorm.DB) error) error {
	var conn *gorm.DB
	app := newApp(fx.Populate(&conn))
	return runApp(ctx, app, func(ctx context.Context) error {
		return fn(ctx, conn)
	})
}

func init() {
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to roll back")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}
