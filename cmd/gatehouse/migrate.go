// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/store"
)

// migrateConfig holds configuration for the migrate command.
type migrateConfig struct {
	down  bool
	steps int
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cfg := &migrateConfig{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long: `Apply the embedded schema migrations against the PostgreSQL
database. Without flags all pending migrations are applied; --down rolls
everything back; --steps N applies N migrations (negative rolls back).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, cfg)
		},
	}

	cmd.Flags().BoolVar(&cfg.down, "down", false, "roll back all migrations")
	cmd.Flags().IntVar(&cfg.steps, "steps", 0, "apply exactly N migrations (negative rolls back)")
	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")

	return cmd
}

func runMigrate(cmd *cobra.Command, migrateCfg *migrateConfig) error {
	if migrateCfg.down && migrateCfg.steps != 0 {
		return oops.Code("CONFIG_INVALID").Errorf("--down and --steps are mutually exclusive")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}

	migrator, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "create migrator").Wrap(err)
	}
	defer func() { _ = migrator.Close() }()

	switch {
	case migrateCfg.down:
		cmd.Println("Rolling back all migrations...")
		if err := migrator.Down(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "roll back migrations").Wrap(err)
		}
		cmd.Println("Rollback completed successfully")
	case migrateCfg.steps != 0:
		cmd.Printf("Applying %d migration step(s)...\n", migrateCfg.steps)
		if err := migrator.Steps(migrateCfg.steps); err != nil {
			return oops.Code("MIGRATION_FAILED").
				With("operation", "apply migration steps").
				With("steps", migrateCfg.steps).
				Wrap(err)
		}
		cmd.Println("Migration steps completed successfully")
	default:
		cmd.Println("Running migrations...")
		if err := migrator.Up(); err != nil {
			return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
		}
		cmd.Println("Migrations completed successfully")
	}

	return nil
}
