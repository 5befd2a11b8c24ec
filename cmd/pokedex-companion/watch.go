package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ramonehamilton/Pokedex-Companion/internal/ipc"
)

func newWatchCommand(opts *rootOptions) *cobra.Command {
	var (
		url    string
		topics []string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print events from a running engine",
		Long: `Connect to the WebSocket endpoint of a running engine and print each
event as one JSON line. Reconnects until interrupted.

Example:
  pokedex-companion watch
  pokedex-companion watch --topic tags:rebuilt --topic batch:flushed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if url == "" {
				url = fmt.Sprintf("ws://localhost:%d/ws", opts.cfg.API.Port)
			}
			client := ipc.NewClient(url, ipc.ClientConfig{
				Origin:         fmt.Sprintf("http://localhost:%d", opts.cfg.API.Port),
				ReconnectDelay: 2 * time.Second,
				Topics:         topics,
				Logger:         opts.logger,
			})

			out := cmd.OutOrStdout()
			client.On(ipc.AnyEvent, func(e ipc.Event) {
				_, _ = fmt.Fprintf(out, "{\"type\":%q,\"data\":%s}\n", e.Type, orNull(e.Data))
			})
			return client.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "WebSocket URL (default ws://localhost:<api.port>/ws)")
	cmd.Flags().StringSliceVar(&topics, "topic", nil, "only print these event types")
	return cmd
}

func orNull(b []byte) []byte {
	if len(b) == 0 {
		return []byte("null")
	}
	return b
}
