package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diviner-ai/diviner/internal/config"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Long:  "Apply pending database migrations to the configured database and exit",
		RunE:  runMigrate,
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	return runMigrations(cfg.DatabaseURL)
}
