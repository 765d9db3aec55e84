// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 identityd Contributors

package main

import (
	"strconv"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/identityd/identityd/internal/store"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the user store schema",
		Long: `Apply, roll back or inspect schema migrations on the configured
postgres or sqlite store.`,
	}

	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateDownCmd())
	cmd.AddCommand(newMigrateVersionCmd())
	cmd.AddCommand(newMigrateForceCmd())

	return cmd
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					cmd.Println("Schema is up to date")
					return nil
				}
				if err := m.Up(); err != nil {
					return err
				}
				for _, v := range pending {
					name, _ := store.MigrationName(m.Dialect(), v)
					cmd.Printf("Applied %s\n", name)
				}
				return nil
			})
		},
	}
}

func newMigrateDownCmd() *cobra.Command {
	var (
		steps int
		yes   bool
	)
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Long: `Roll back the last --steps migrations, or all of them with --steps=0.
Rolling back drops tables and their data, so --yes is required.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return oops.Code("CONFIRMATION_REQUIRED").Errorf("rolling back drops data; pass --yes to continue")
			}
			if steps < 0 {
				return oops.Code("INVALID_STEPS").Errorf("steps must be non-negative, got %d", steps)
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if steps == 0 {
					if err := m.Down(); err != nil {
						return err
					}
					cmd.Println("Rolled back all migrations")
					return nil
				}
				if err := m.Steps(-steps); err != nil {
					return err
				}
				cmd.Printf("Rolled back %d migration(s)\n", steps)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back (0 = all)")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the rollback")
	return cmd
}

func newMigrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, func(m *store.Migrator) error {
				version, dirty, err := m.Version()
				if err != nil {
					return err
				}
				pending, err := m.PendingMigrations()
				if err != nil {
					return err
				}
				cmd.Printf("version: %d\ndirty: %t\npending: %d\n", version, dirty, len(pending))
				return nil
			})
		},
	}
}

func newMigrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force VERSION",
		Short: "Set the schema version without running migrations",
		Long: `Mark the schema as being at VERSION and clear the dirty flag. Use
only after repairing a failed migration by hand.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return oops.Code("INVALID_VERSION").With("value", args[0]).Wrap(err)
			}
			return withMigrator(cmd, func(m *store.Migrator) error {
				if err := m.Force(version); err != nil {
					return err
				}
				cmd.Printf("Forced schema version to %d\n", version)
				return nil
			})
		},
	}
}

// withMigrator runs fn on a migrator for the configured store and closes it.
func withMigrator(cmd *cobra.Command, fn func(m *store.Migrator) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	m, err := newMigrator(cfg.Store)
	if err != nil {
		return err
	}

	runErr := fn(m)
	if closeErr := m.Close(); closeErr != nil && runErr == nil {
		return closeErr
	}
	return runErr
}
