package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/inferchain/inferchain/internal/migrate"
)

var downSteps int

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply or revert database migrations",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRunner(cmd, func(r *migrate.Runner) (bool, error) {
			return r.Up()
		})
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down",
	Short: "Revert the most recent migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if downSteps <= 0 {
			return fmt.Errorf("--steps must be positive")
		}
		return withRunner(cmd, func(r *migrate.Runner) (bool, error) {
			return r.Down(downSteps)
		})
	},
}

func init() {
	migrateDownCmd.Flags().IntVar(&downSteps, "steps", 1, "number of migrations to revert")

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)
	rootCmd.AddCommand(migrateCmd)
}

// withRunner opens a migration runner, applies fn and prints the resulting version.
func withRunner(cmd *cobra.Command, fn func(*migrate.Runner) (bool, error)) error {
	if err := requireDatabase(); err != nil {
		return err
	}
	r, err := migrate.New(cfg.DatabaseURL, logger)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	changed, err := fn(r)
	if err != nil {
		return err
	}
	version, dirty, err := r.Version()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case dirty:
		return fmt.Errorf("schema is dirty at version %d", version)
	case !changed:
		fmt.Fprintf(out, "no change, schema at version %d\n", version)
	default:
		fmt.Fprintf(out, "schema at version %d\n", version)
	}
	return nil
}
