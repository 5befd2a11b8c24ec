package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/Pokedex-Companion/internal/daemon"
	"github.com/ramonehamilton/Pokedex-Companion/internal/storage"
)

func newBackupCommand(opts *rootOptions) *cobra.Command {
	var (
		name string
		list bool
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot the database to the backup store",
		Long: `Snapshot the database to the configured backup store (filesystem or S3).

The snapshot is encrypted when the variable named by backup.password_env is
set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := daemon.OpenBackupStore(ctx, opts.cfg)
			if err != nil {
				return err
			}

			db, err := storage.Open(daemon.StorageConfig(opts.cfg, opts.DBPath))
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			mgr := storage.NewBackupManager(db, store)

			if list {
				backups, err := mgr.List(ctx)
				if err != nil {
					return err
				}
				for _, b := range backups {
					if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\t%s\n", b.Key, b.Size, b.LastModified.Format("2006-01-02 15:04:05")); err != nil {
						return err
					}
				}
				return nil
			}

			info, err := mgr.Backup(ctx, &storage.BackupConfig{Name: name, Encryption: daemon.BackupEncryption(opts.cfg)})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", info.Key, info.Size)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "backup name (default timestamped)")
	cmd.Flags().BoolVar(&list, "list", false, "list stored backups instead")
	return cmd
}

func newRestoreCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <key>",
		Short: "Replace the database with a stored backup",
		Long: `Replace the database with a stored backup. The current file is kept
next to it with a .old.<timestamp> suffix. Stop any running engine first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := daemon.OpenBackupStore(ctx, opts.cfg)
			if err != nil {
				return err
			}

			dest := daemon.StorageConfig(opts.cfg, opts.DBPath).Path
			if err := storage.Restore(ctx, store, args[0], dest, daemon.BackupEncryption(opts.cfg)); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "restored %s to %s\n", args[0], dest)
			return err
		},
	}
}
