package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zulandar/signoff/internal/config"
	"github.com/zulandar/signoff/internal/db"
	"github.com/zulandar/signoff/internal/docstore"
)

func newMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Upgrade the documents file and database schema",
		Long: `Brings on-disk state up to date.

Steps performed:
  1. Rewrite a legacy documents file into the current shape (a .bak copy is kept)
  2. Create or update the database tables

Safe to run multiple times (idempotent).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.OutOrStdout(), configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "signoff.yaml", "path to Signoff config file")
	return cmd
}

func runMigrate(out io.Writer, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Fprintf(out, "Checking %s...\n", cfg.DocumentsPath())
	report, err := docstore.Migrate(cfg.DocumentsPath())
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if report.Migrated {
		fmt.Fprintf(out, "  migrated %d documents (backup: %s)\n", report.Documents, report.Backup)
	} else {
		fmt.Fprintf(out, "  skipped: %s\n", report.Skipped)
	}

	fmt.Fprintf(out, "Migrating %s database...\n", cfg.Database.Driver)
	gormDB, err := db.Connect(cfg.Database)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			sqlDB.Close()
		}
	}()
	if err := db.AutoMigrate(gormDB); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	fmt.Fprintln(out, "Migration complete.")
	return nil
}
