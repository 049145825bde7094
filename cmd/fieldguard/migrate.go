// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package main

import (
	"fmt"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/fieldguard/fieldguard/internal/store"
	"github.com/fieldguard/fieldguard/pkg/errutil"
)

// NewMigrateCmd creates the migrate command group.
func NewMigrateCmd(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the profile and identity database schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateUpWithDeps(cmd, deps.withDefaults())
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the applied and pending migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrateStatusWithDeps(cmd, deps.withDefaults())
		},
	})
	return cmd
}

func openMigrator(cmd *cobra.Command, deps *Deps) (Migrator, func(), error) {
	cfg, logger, err := prepare(cmd, deps)
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, oops.Code("CONFIG_INVALID").With("key", "database_url").
			Errorf("database_url is required (flag, config file or %s)", envDatabaseURL)
	}
	m, err := deps.MigratorFactory(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	return m, func() {
		if err := m.Close(); err != nil {
			errutil.LogError(logger, "closing migrator", err)
		}
	}, nil
}

func runMigrateUpWithDeps(cmd *cobra.Command, deps *Deps) error {
	m, closeFn, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeFn()

	cmd.Println("Running migrations...")
	if err := m.Up(); err != nil {
		return oops.Code("MIGRATION_FAILED").With("operation", "run migrations").Wrap(err)
	}
	cmd.Println("Migrations completed successfully")
	return nil
}

func runMigrateStatusWithDeps(cmd *cobra.Command, deps *Deps) error {
	m, closeFn, err := openMigrator(cmd, deps)
	if err != nil {
		return err
	}
	defer closeFn()

	st, err := m.Status()
	if err != nil {
		return oops.Code("MIGRATION_STATUS_FAILED").Wrap(err)
	}

	cmd.Printf("Current version: %d\n", st.Version)
	if st.Dirty {
		cmd.Println("WARNING: database is dirty; fix the failed migration and force the version")
	}
	printVersions(cmd, "Applied", st.Applied)
	printVersions(cmd, "Pending", st.Pending)
	return nil
}

func printVersions(cmd *cobra.Command, label string, versions []uint) {
	cmd.Printf("%s (%d):\n", label, len(versions))
	for _, v := range versions {
		name, err := store.MigrationName(v)
		if err != nil || name == "" {
			name = fmt.Sprintf("%06d", v)
		}
		cmd.Printf("  %s\n", name)
	}
}
