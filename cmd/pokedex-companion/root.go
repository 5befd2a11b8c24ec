package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/Pokedex-Companion/internal/config"
	"github.com/ramonehamilton/Pokedex-Companion/internal/version"
)

// rootOptions holds the global flags shared by every command.
type rootOptions struct {
	ConfigPath string
	DBPath     string
	Verbose    bool

	cfg    *config.Config
	logger *slog.Logger
	logOut io.Writer
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{logOut: os.Stderr}

	cmd := &cobra.Command{
		Use:           "pokedex-companion",
		Short:         "Local-first Pokédex collection sync engine",
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.pokedex-companion/config.toml)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db-path", "", "database path (overrides storage.path)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newRefreshCommand(opts))
	cmd.AddCommand(newFlushCommand(opts))
	cmd.AddCommand(newPullCommand(opts))
	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newBackupCommand(opts))
	cmd.AddCommand(newRestoreCommand(opts))
	cmd.AddCommand(newWatchCommand(opts))

	return cmd
}

// load reads and validates the config and installs the default logger.
func (o *rootOptions) load() error {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	o.cfg = cfg

	level := slog.LevelInfo
	if o.Verbose || cfg.App.DebugMode {
		level = slog.LevelDebug
	}
	o.logger = slog.New(slog.NewTextHandler(o.logOut, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(o.logger)
	return nil
}

// configPath returns the file the config was loaded from.
func (o *rootOptions) configPath() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	p, err := config.DefaultPath()
	if err != nil {
		return ""
	}
	return p
}
