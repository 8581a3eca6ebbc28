package cli

import (
	"context"
	"strings"

	"github.com/smallbiznis/saasops/internal/ledger"
	"github.com/smallbiznis/saasops/internal/migration"
	"github.com/smallbiznis/saasops/internal/seed"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var (
	seedList    bool
	seedMigrate bool
)

var seedCmd = &cobra.Command{
	Use:   "seed [fixture...]",
	Short: "Load the fixture ledger",
	Long: `Seed inserts the fixture customers, contracts and segments.
Without arguments every fixture is loaded. Fixtures whose customer already
exists are skipped.

Example:
  saasops seed
  saasops seed case2 case3
  saasops seed --list`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().BoolVar(&seedList, "list", false, "list fixture names and exit")
	seedCmd.Flags().BoolVar(&seedMigrate, "migrate", true, "apply migrations before seeding")
	rootCmd.AddCommand(seedCmd)
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedList {
		cmd.Println(strings.Join(seed.Names(), "\n"))
		return nil
	}

	var (
		seeder *seed.Seeder
		conn   *gorm.DB
	)
	app := newApp(
		ledger.Module,
		seed.Module,
		fx.Populate(&seeder, &conn),
	)
	return runApp(cmd.Context(), app, func(ctx context.Context) error {
		if seedMigrate {
			if err := migration.Up(ctx, conn); err != nil {
				return err
			}
		}
		result, err := seeder.Run(ctx, args)
		if err != nil {
			return err
		}
		for _, name := range result.Inserted {
			cmd.PrintErrln("seeded " + name)
		}
		for _, name := range result.Skipped {
			cmd.PrintErrln("skipped " + name + " (already present)")
		}
		return nil
	})
}
