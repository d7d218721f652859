package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ping-mem/pingmem/internal/ui"
)

func newVerifyCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "verify [dir]",
		Short: "Check whether the stored index matches the working tree",
		Args:  cobra.MaximumNArgs(1),
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

			res, err := a.pipeline.Verify(ctx, dir)
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
			if res.Valid {
				fmt.Fprintln(out, styles.Success.Render("Index is up to date."))
			} else {
				fmt.Fprintln(out, styles.Warning.Render(res.Message))
			}
			fmt.Fprintf(out, "  %s %s\n", styles.Label.Render("Project:"), res.ProjectID)
			fmt.Fprintf(out, "  %s %s\n", styles.Label.Render("Indexed tree:"), res.ManifestTreeHash)
			fmt.Fprintf(out, "  %s %s\n", styles.Label.Render("Current tree:"), res.CurrentTreeHash)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
