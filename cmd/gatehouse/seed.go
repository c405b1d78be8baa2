// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/seed"
	"github.com/gatehouse/gatehouse/internal/store"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	file    string
	timeout time.Duration
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Apply a role/grant seed file",
		Long: `Validates a seed file and applies its roles and grants inside
one transaction. Without --file the embedded default seed is applied.
This command is idempotent - re-applying the same file changes nothing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.file, "file", "", "seed file path (default: embedded seed)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")

	return cmd
}

func runSeed(cmd *cobra.Command, seedCfg *seedConfig) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}

	f, err := loadSeedFile(seedCfg.file)
	if err != nil {
		return err
	}

	// Use cmd.Context() to respect SIGINT/SIGTERM signals
	ctx, cancel := context.WithTimeout(cmd.Context(), seedCfg.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	pool, err := store.Connect(ctx, store.ConnectOptions{
		URL:              cfg.Database.URL,
		ConnectTimeout:   seedCfg.timeout,
		MinServerVersion: cfg.Database.MinServerVersion,
		Logger:           slog.Default(),
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer pool.Close()

	cmd.Println("Applying seed...")
	if err := seed.Apply(ctx, authpg.NewStore(pool), f); err != nil {
		return err
	}

	cmd.Printf("Seed applied: %d role(s), %d grant(s)\n", len(f.Roles), len(f.Grants))
	slog.Info("seed applied", "roles", len(f.Roles), "grants", len(f.Grants))
	return nil
}

// loadSeedFile parses the file at path, or the embedded default when
// path is empty.
func loadSeedFile(path string) (*seed.File, error) {
	data := seed.Default()
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, oops.Code("SEED_INVALID").With("path", path).Wrap(err)
		}
	}
	return seed.Parse(data)
}
