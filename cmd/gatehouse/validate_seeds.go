// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/seed"
)

// NewValidateSeedsCmd creates the validate-seeds subcommand.
func NewValidateSeedsCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate-seeds",
		Short: "Validate a seed file without touching the database",
		Long: `Validates a seed file against the JSON schema and the semantic
rules (role tree shape, grant references). Does NOT require a database
connection. Exits with code 0 on success, non-zero on failure.

Useful in CI pipelines to catch seed errors early:
  gatehouse validate-seeds --file seeds/roles.yaml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidateSeeds(cmd, file)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "seed file path (default: embedded seed)")

	return cmd
}

func runValidateSeeds(cmd *cobra.Command, file string) error {
	f, err := loadSeedFile(file)
	if err != nil {
		slog.Error("seed validation failed", "detail", seed.FormatSchemaError(err))
		return err
	}

	cmd.Printf("Seed valid: %d role(s), %d grant(s)\n", len(f.Roles), len(f.Grants))
	slog.Info("seed file valid", "roles", len(f.Roles), "grants", len(f.Grants))
	return nil
}
