package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pressmetrics/metrictask/internal/actions"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply warehouse schema migrations",
	Long: `Ensure the warehouse database exists and apply pending DDL migrations
from the migrations directory.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := actions.Migrate(false, true); err != nil {
			return fmt.Errorf("migrate failed: %w", err)
		}
		return nil
	},
}

var migrateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current migration version",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := actions.MigrationStatus(); err != nil {
			return fmt.Errorf("migrate status failed: %w", err)
		}
		return nil
	},
}

var migrateTeardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Truncate all warehouse data tables",
	Long: `Truncate every data table in the warehouse database. The schema and the
migration history stay in place; only the rows are deleted.`,
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := actions.Teardown(false, true); err != nil {
			return fmt.Errorf("teardown failed: %w", err)
		}
		return nil
	},
}

func init() {
	migrateCmd.AddCommand(migrateStatusCmd)
	migrateCmd.AddCommand(migrateTeardownCmd)
	rootCmd.AddCommand(migrateCmd)
}
