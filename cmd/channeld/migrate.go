package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rwa-platform/channel-service/internal/database"
)

var migrateStatus bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	Long: `Apply the embedded goose migrations to the configured Postgres database.

Examples:
  channeld migrate --config configs/channeld.yaml
  channeld migrate --status`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateStatus, "status", false, "print migration status without applying")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if migrateStatus {
		return database.MigrationStatus(ctx, cfg.Database.Postgres)
	}

	logger.Info("applying migrations",
		"host", cfg.Database.Postgres.Host,
		"database", cfg.Database.Postgres.Name,
	)
	if err := database.Migrate(ctx, cfg.Database.Postgres); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	logger.Info("migrations applied")
	return nil
}
