package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/Pokedex-Companion/internal/daemon"
)

// openEngine builds a sync engine for a one-shot command. Background loops
// are not started.
func openEngine(opts *rootOptions) (*daemon.Service, error) {
	return daemon.New(opts.cfg, daemon.Options{Logger: opts.logger, DBPath: opts.DBPath})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newRefreshCommand(opts *rootOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the variant catalog",
		Long: `Refresh the variant catalog from the remote authority.

Without --force the catalog is fetched only when its freshness window has
passed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Stop() }()

			outcome := svc.Refresh(cmd.Context(), force)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d variants\n", outcome, svc.Variants().Len())
			return err
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "ignore freshness and fetch now")
	return cmd
}

func newFlushCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Send pending edits to the remote authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Stop() }()

			report, err := svc.Flush(cmd.Context())
			if err != nil {
				return err
			}
			out := map[string]any{
				"attempted":  report.Attempted,
				"succeeded":  report.Succeeded,
				"failed":     report.Failed,
				"superseded": report.Superseded,
				"remaining":  report.Remaining,
				"skipped":    report.Skipped,
			}
			if report.TransportErr != nil {
				out["error"] = report.TransportErr.Error()
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func newPullCommand(opts *rootOptions) *cobra.Command {
	var foreign string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pull the collection and trades from the remote authority",
		Long: `Pull the signed-in trainer's collection and trades and merge them
into the local store. Local edits that are newer than the remote copy are
kept.

With --user, another trainer's collection is fetched instead and reported
without being stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := openEngine(opts)
			if err != nil {
				return err
			}
			defer func() { _ = svc.Stop() }()

			svc.Variants().HydrateFromCache(ctx)
			if err := svc.Instances().Bootstrap(ctx); err != nil {
				return err
			}

			if foreign != "" {
				n, err := svc.FetchForeign(ctx, foreign)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d instances\n", foreign, n)
				return err
			}

			if err := svc.Trades().Hydrate(ctx); err != nil {
				return err
			}
			result, err := svc.Pull(ctx)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"instances":    result.Instances,
				"trades":       result.Trades,
				"not_modified": result.NotModified,
				"skipped":      result.Skipped,
				"duration_ms":  result.Duration.Milliseconds(),
			})
		},
	}
	cmd.Flags().StringVar(&foreign, "user", "", "fetch another trainer's collection")
	return cmd
}
