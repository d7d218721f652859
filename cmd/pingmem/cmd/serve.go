package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ping-mem/pingmem/internal/mcp"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server over stdio",
		Long: `Start the PingMem MCP server. The transport owns stdout, so all
diagnostics go to the log file; use --debug to mirror them to stderr.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, "")
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := mcp.NewServer(mcp.Deps{
		Engine:   a.engine,
		Vectors:  a.vectors,
		Graph:    a.graph,
		Embedder: a.embedder,
		Pipeline: a.pipeline,
		Sessions: a.sessions,
		Config:   a.cfg,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}
