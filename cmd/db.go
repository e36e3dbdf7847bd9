package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/minuteworks/scribe/config"
	"github.com/minuteworks/scribe/pkg/db"
)

// Database command flags
var (
	dbDryRun       bool
	dbOutput       string
	dbMigrationDir string
	dbYes          bool
)

// NewDbCommand creates the root db command with all subcommands.
func NewDbCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database management commands",
		Long: `Database management commands for scribe.

Manage database schema migrations and view migration status.

Migration files are SQL files in the migrations directory, named with
numeric prefixes (e.g., 001_init.sql, 002_add_indexes.sql). Migrations
are applied in alphabetical order and tracked in the schema_migrations
table.

Examples:
  # Show migration status
  scribe db status

  # Apply all pending migrations
  scribe db migrate

  # Preview migrations without applying
  scribe db migrate --dry-run`,
		Aliases: []string{"database", "migrations"},
	}

	cmd.PersistentFlags().StringVarP(&dbMigrationDir, "migrations", "m", "", "Path to migrations directory (default from config)")

	cmd.AddCommand(newDbMigrateCommand())
	cmd.AddCommand(newDbStatusCommand())

	return cmd
}

// newDbMigrateCommand creates the 'db migrate' subcommand.
func newDbMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long: `Apply pending database migrations.

Migrations are executed in alphabetical order based on their filename
prefix. Each migration runs in a transaction and is recorded in the
schema_migrations table. If a migration fails, its transaction is
rolled back and no further migrations are attempted.

Examples:
  scribe db migrate
  scribe db migrate --dry-run
  scribe db migrate --yes`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbMigrate(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&dbDryRun, "dry-run", false, "Show what would be applied without executing")
	cmd.Flags().BoolVarP(&dbYes, "yes", "y", false, "Apply without interactive confirmation")

	return cmd
}

// newDbStatusCommand creates the 'db status' subcommand.
func newDbStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show database migration status",
		Long: `Show the current state of database migrations.

Displays three categories:
  - Applied: migrations applied with corresponding files present
  - Pending: migration files not yet applied
  - Drift: migrations applied whose files no longer exist

Examples:
  scribe db status
  scribe db status --output json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDbStatus(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&dbOutput, "output", "o", "text", "Output format: text, json, yaml")

	return cmd
}

// dbSetup loads config and connects to the database.
func dbSetup(ctx context.Context) (*config.Config, *pgxpool.Pool, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, "", fmt.Errorf("loading configuration: %w", err)
	}

	dir := dbMigrationDir
	if dir == "" {
		dir, err = cfg.MigrationsPath()
		if err != nil {
			return nil, nil, "", err
		}
	}

	pool, err := db.Connect(ctx, cfg.DB)
	if err != nil {
		return nil, nil, "", fmt.Errorf("connecting to database: %w", err)
	}
	return cfg, pool, dir, nil
}

// runDbMigrate executes the db migrate command.
func runDbMigrate(ctx context.Context) error {
	_, pool, dir, err := dbSetup(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	status, err := db.GetMigrationStatus(ctx, pool, dir)
	if err != nil {
		return fmt.Errorf("getting migration status: %w", err)
	}

	if len(status.Pending) == 0 {
		fmt.Println("No pending migrations.")
		return nil
	}

	fmt.Printf("Pending migrations (%d):\n", len(status.Pending))
	for _, m := range status.Pending {
		fmt.Printf("  %s - %s\n", m.Version, m.Name)
	}
	fmt.Println()

	if dbDryRun {
		fmt.Println("Dry run mode: no migrations applied.")
		return nil
	}

	if !dbYes {
		fmt.Print("Apply these migrations? (y/N): ")
		var response string
		fmt.Scanln(&response)
		if strings.ToLower(response) != "y" {
			fmt.Println("Migration cancelled.")
			return nil
		}
	}

	result, err := db.RunMigrations(ctx, pool, dir)
	if err != nil {
		fmt.Printf("\nMigration failed: %v\n", err)
		if result != nil && len(result.Applied) > 0 {
			fmt.Println("\nSuccessfully applied before failure:")
			for _, v := range result.Applied {
				fmt.Printf("  %s\n", v)
			}
		}
		return err
	}

	if len(result.Applied) > 0 {
		fmt.Printf("\nApplied %d migration(s):\n", len(result.Applied))
		for _, v := range result.Applied {
			fmt.Printf("  %s\n", v)
		}
	}
	if len(result.Skipped) > 0 {
		fmt.Printf("\nSkipped %d migration(s) (already applied).\n", len(result.Skipped))
	}

	fmt.Println("\nMigrations completed successfully.")
	return nil
}

// runDbStatus executes the db status command.
func runDbStatus(ctx context.Context) error {
	_, pool, dir, err := dbSetup(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	status, err := db.GetMigrationStatus(ctx, pool, dir)
	if err != nil {
		return fmt.Errorf("getting migration status: %w", err)
	}

	switch dbOutput {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		return enc.Encode(status)
	default:
		return printMigrationStatus(status)
	}
}

// printMigrationStatus formats migration status for terminal display.
func printMigrationStatus(status *db.MigrationStatus) error {
	if len(status.Applied) > 0 {
		fmt.Printf("Applied migrations (%d):\n", len(status.Applied))
		for _, m := range status.Applied {
			appliedAt := "-"
			if m.AppliedAt != nil {
				appliedAt = m.AppliedAt.Format("2006-01-02 15:04:05")
			}
			fmt.Printf("  %-10s %-40s %s\n", m.Version, m.Name, appliedAt)
		}
		fmt.Println()
	}

	if len(status.Pending) > 0 {
		fmt.Printf("Pending migrations (%d):\n", len(status.Pending))
		for _, m := range status.Pending {
			fmt.Printf("  %-10s %s\n", m.Version, m.Name)
		}
		fmt.Println()
	}

	if len(status.Drift) > 0 {
		fmt.Printf("Drift (%d) - applied but file missing:\n", len(status.Drift))
		for _, m := range status.Drift {
			fmt.Printf("  %-10s %s\n", m.Version, m.Name)
		}
		fmt.Println()
	}

	if len(status.Applied) == 0 && len(status.Pending) == 0 && len(status.Drift) == 0 {
		fmt.Println("No migrations found.")
		return nil
	}

	fmt.Printf("Summary: %d applied, %d pending", len(status.Applied), len(status.Pending))
	if len(status.Drift) > 0 {
		fmt.Printf(", %d drift", len(status.Drift))
	}
	fmt.Println()
	return nil
}
