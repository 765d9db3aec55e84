// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/identityd/identityd/internal/config"
	"github.com/identityd/identityd/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the identityd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "identityd",
		Short: "identityd - account registration and token service",
		Long: `identityd registers accounts, checks passwords and issues
short-lived access tokens with rotating, single-use refresh tokens.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/identityd/config.yaml if present)")
	config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewUserCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// configPath returns the --config value, or the XDG config file when the
// flag is unset.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	return xdg.ConfigFile()
}

// loadConfig merges the config file, environment and flags of cmd, and
// validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath(), cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewVersionCmd creates the version subcommand.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("identityd " + versionString())
		},
	}
}
