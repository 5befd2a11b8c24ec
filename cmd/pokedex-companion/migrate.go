package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/Pokedex-Companion/internal/daemon"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage"
)

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	withManager := func(fn func(cmd *cobra.Command, mm *storage.MigrationManager, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			mm, err := storage.NewMigrationManager(daemon.StorageConfig(opts.cfg, opts.DBPath).Path, storage.WithMigrationLogger(opts.logger))
			if err != nil {
				return err
			}
			defer func() { _ = mm.Close() }()
			return fn(cmd, mm, args)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: withManager(func(cmd *cobra.Command, mm *storage.MigrationManager, _ []string) error {
			if err := mm.Up(); err != nil {
				return err
			}
			return printVersion(cmd, mm)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration",
		Args:  cobra.NoArgs,
		RunE: withManager(func(cmd *cobra.Command, mm *storage.MigrationManager, _ []string) error {
			if err := mm.Down(); err != nil {
				return err
			}
			return printVersion(cmd, mm)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the schema version",
		Args:  cobra.NoArgs,
		RunE: withManager(func(cmd *cobra.Command, mm *storage.MigrationManager, _ []string) error {
			return printVersion(cmd, mm)
		}),
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force <version>",
		Short: "Mark the schema as being at version without running migrations",
		Args:  cobra.ExactArgs(1),
		RunE: withManager(func(cmd *cobra.Command, mm *storage.MigrationManager, args []string) error {
			v, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			if err := mm.Force(v); err != nil {
				return err
			}
			return printVersion(cmd, mm)
		}),
	})

	return cmd
}

func printVersion(cmd *cobra.Command, mm *storage.MigrationManager) error {
	v, dirty, err := mm.Version()
	if err != nil {
		return err
	}
	suffix := ""
	if dirty {
		suffix = " (dirty)"
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d%s\n", v, suffix)
	return err
}
