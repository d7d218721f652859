package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ping-mem/pingmem/internal/ui"
)

func newIngestCmd() *cobra.Command {
	var (
		force      bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "ingest [dir]",
		Short: "Index a project source tree",
		Long: `Scan a project directory, chunk its source files, embed the chunks,
and store them in the vector and graph backends. Unchanged trees are
skipped unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, dir)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.pipeline.Ingest(ctx, dir, force)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if res == nil {
					return enc.Encode(map[string]any{"hadChanges": false})
				}
				return enc.Encode(res)
			}
			styles := ui.AutoStyles()
			if res == nil {
				fmt.Fprintln(out, styles.Dim.Render("No changes since last ingestion."))
				return nil
			}
			fmt.Fprintln(out, styles.Header.Render("Ingestion complete"))
			fmt.Fprintf(out, "  %s %s\n", styles.Label.Render("Project:"), res.ProjectID)
			fmt.Fprintf(out, "  %s %s\n", styles.Label.Render("Tree hash:"), res.TreeHash)
			fmt.Fprintf(out, "  %s %d\n", styles.Label.Render("Files:"), res.FilesIndexed)
			fmt.Fprintf(out, "  %s %d\n", styles.Label.Render("Chunks:"), res.ChunksIndexed)
			fmt.Fprintf(out, "  %s %d\n", styles.Label.Render("Commits:"), res.CommitsIndexed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Re-index even when the tree hash is unchanged")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
