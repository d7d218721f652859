package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ping-mem/pingmem/internal/ui"
	"github.com/ping-mem/pingmem/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-index a project whenever its files change",
		Long: `Perform an initial ingestion, then watch the directory tree and
re-ingest after each burst of filesystem changes. Stops on Ctrl-C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, dir)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.pipeline.Ingest(ctx, dir, false); err != nil {
				return err
			}

			w, err := watcher.New(dir, a.cfg.Ingest.WatchDebounce, a.logger)
			if err != nil {
				return err
			}
			defer w.Close()

			styles := ui.AutoStyles()
			fmt.Fprintln(cmd.OutOrStdout(), styles.Header.Render("Watching "+dir))
			return w.Run(ctx, func(ctx context.Context) error {
				_, err := a.pipeline.Ingest(ctx, dir, false)
				return err
			})
		},
	}
}
