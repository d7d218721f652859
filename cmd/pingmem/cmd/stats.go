package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ping-mem/pingmem/internal/embed"
	"github.com/ping-mem/pingmem/internal/graph"
	"github.com/ping-mem/pingmem/internal/store"
	"github.com/ping-mem/pingmem/internal/ui"
)

// statsReport aggregates the state of every backend.
type statsReport struct {
	Vectors  *store.VectorStats `json:"vectors"`
	Keywords store.BM25Stats    `json:"keywords"`
	Graph    *graph.Stats       `json:"graph"`
	Cache    embed.CacheStats   `json:"embedding_cache"`
	Sessions int                `json:"sessions"`
}

func newStatsCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show storage and cache statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			vs, err := a.vectors.Stats(ctx)
			if err != nil {
				return err
			}
			gs, err := a.graph.Stats(ctx)
			if err != nil {
				return err
			}
			sessions, err := a.sessions.List()
			if err != nil {
				return err
			}
			report := statsReport{
				Vectors:  vs,
				Keywords: a.bm25.Stats(),
				Graph:    gs,
				Cache:    a.embedder.Stats(),
				Sessions: len(sessions),
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			styles := ui.AutoStyles()
			fmt.Fprintln(out, styles.Header.Render("PingMem statistics"))
			backend := "qdrant"
			if report.Vectors.UsingFallback {
				backend = "embedded"
			}
			fmt.Fprintf(out, "  %s %d vectors, %d dims (%s)\n",
				styles.Label.Render("Vectors:"), report.Vectors.Count, report.Vectors.Dims, backend)
			fmt.Fprintf(out, "  %s %d docs, %d terms\n",
				styles.Label.Render("Keywords:"), report.Keywords.Docs, report.Keywords.Terms)
			fmt.Fprintf(out, "  %s %d entities, %d relationships\n",
				styles.Label.Render("Graph:"), report.Graph.Entities, report.Graph.Relationships)
			fmt.Fprintf(out, "  %s %d entries, %.0f%% hit rate\n",
				styles.Label.Render("Embed cache:"), report.Cache.Entries, report.Cache.HitRate*100)
			fmt.Fprintf(out, "  %s %d\n", styles.Label.Render("Sessions:"), report.Sessions)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
