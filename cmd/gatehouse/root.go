// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/gatehouse/gatehouse/internal/config"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the gatehouse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gatehouse",
		Short: "Gatehouse - credential and access-control service",
		Long: `Gatehouse manages account registration, activation, login
throttling, sessions, and role-based authorization over a JSON API.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())
	cmd.AddCommand(NewValidateSeedsCmd())
	cmd.AddCommand(NewStatusCmd())

	return cmd
}

// loadConfig merges defaults, the config file, and the command's flags.
// Flags named with dotted koanf keys override file values when set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if configFile != "" {
		return config.Load(configFile, cmd.Flags())
	}
	return config.LoadDefaultFile(cmd.Flags())
}
