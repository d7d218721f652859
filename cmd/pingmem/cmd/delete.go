package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ping-mem/pingmem/internal/ui"
)

func newDeleteCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "delete [dir]",
		Short: "Remove all indexed data for a project",
		Long: `Delete every vector, entity, and relationship derived from the
project, along with its on-disk manifest. Saved memories from other
projects are untouched.`,
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

			res, err := a.pipeline.Delete(ctx, dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			styles := ui.AutoStyles()
			fmt.Fprintln(out, styles.Success.Render("Project index deleted"))
			fmt.Fprintf(out, "  %s %s\n", styles.Label.Render("Project:"), res.ProjectID)
			fmt.Fprintf(out, "  %s %d\n", styles.Label.Render("Vectors:"), res.VectorsDeleted)
			fmt.Fprintf(out, "  %s %d\n", styles.Label.Render("Entities:"), res.EntitiesDeleted)
			fmt.Fprintf(out, "  %s %d\n", styles.Label.Render("Relationships:"), res.RelationshipsDeleted)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
