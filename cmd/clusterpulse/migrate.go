package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/rbias/clusterpulse/internal/storage"
)

var (
	migrateSteps int
	migrateAll   bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := storage.RunMigrations(migrationConfig(cfg)); err != nil {
			return err
		}
		return printMigrationVersion(cmd)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := migrateSteps
		if migrateAll {
			steps = 0
		} else if steps < 1 {
			return fmt.Errorf("--steps must be >= 1, got %d", steps)
		}
		if err := storage.RollbackMigrations(migrationConfig(cfg), steps); err != nil {
			return err
		}
		slog.Info("migrations rolled back", "steps", steps, "all", migrateAll)
		return printMigrationVersion(cmd)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(cmd *cobra.Command, args []string) error {
		return printMigrationVersion(cmd)
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&migrateSteps, "steps", 1, "Number of migrations to roll back")
	migrateDownCmd.Flags().BoolVar(&migrateAll, "all", false, "Roll back every migration")
	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd, migrateVersionCmd)
}

func printMigrationVersion(cmd *cobra.Command) error {
	version, dirty, err := storage.GetMigrationVersion(migrationConfig(cfg))
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s schema version %d (%s)\n", cfg.Database.Type, version, state)
	return nil
}
