package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nerrad567/smartpot-core/internal/infrastructure/config"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/logging"
)

func newMigrateCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
		Long: `Apply, roll back or inspect the embedded SQLite migrations.

serve applies pending migrations on startup; these commands exist for
operators who want to do it by hand.`,
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := openForMigrate(cmd, opts)
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck // process exits next

				if err := db.Migrate(cmd.Context()); err != nil {
					return fmt.Errorf("applying migrations: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := openForMigrate(cmd, opts)
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck // process exits next

				if err := db.MigrateDown(cmd.Context()); err != nil {
					return fmt.Errorf("rolling back migration: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "last migration rolled back")
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				db, err := openForMigrate(cmd, opts)
				if err != nil {
					return err
				}
				defer db.Close() //nolint:errcheck // process exits next

				applied, pending, err := db.GetMigrationStatus(cmd.Context())
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "VERSION\tSTATUS\tDETAIL")
				for _, r := range applied {
					fmt.Fprintf(w, "%s\tapplied\t%s\n", r.Version, r.AppliedAt.Format("2006-01-02 15:04:05"))
				}
				for _, m := range pending {
					fmt.Fprintf(w, "%s\tpending\t%s\n", m.Version, m.Name)
				}
				return w.Flush()
			},
		},
	)
	return cmd
}

// openForMigrate opens the configured database without migrating it.
func openForMigrate(cmd *cobra.Command, opts *globalOptions) (*database.DB, error) {
	log := logging.NewWithWriter(config.LoggingConfig{Level: "warn", Format: "text"}, version, cmd.ErrOrStderr())
	cfg, err := loadConfig(opts, log)
	if err != nil {
		return nil, err
	}
	db, err := database.Open(cmd.Context(), database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}
