// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/identityd/identityd/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration that serve would use, after merging the
config file, IDENTITYD_* environment variables and flags. Secrets and
database passwords are redacted. Exits non-zero if the result is invalid.`,
		Args: cobra.NoArgs,
		RunE: runConfig,
	}
}

func runConfig(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath(), cmd.Flags())
	if err != nil {
		return err
	}

	out, err := cfg.YAML()
	if err != nil {
		return err
	}
	cmd.Print(string(out))

	return cfg.Validate()
}
