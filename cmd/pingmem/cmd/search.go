package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ping-mem/pingmem/internal/search"
	"github.com/ping-mem/pingmem/internal/ui"
)

func newSearchCmd() *cobra.Command {
	var (
		limit      int
		sessionID  string
		category   string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid search over saved memories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			ctx := cmd.Context()
			a, err := newApp(ctx, "")
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := a.engine.Search(ctx, query, search.Options{
				Limit:     limit,
				SessionID: sessionID,
				Category:  category,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(results)
			}
			styles := ui.AutoStyles()
			if len(results) == 0 {
				fmt.Fprintln(out, styles.Dim.Render("No results."))
				return nil
			}
			fmt.Fprintln(out, styles.Header.Render(fmt.Sprintf("%d results for %q", len(results), query)))
			for i, r := range results {
				modes := make([]string, len(r.SearchModes))
				for j, m := range r.SearchModes {
					modes[j] = string(m)
				}
				fmt.Fprintf(out, "%2d. %s %s\n", i+1,
					styles.Score.Render(fmt.Sprintf("%.4f", r.HybridScore)),
					styles.Dim.Render("["+strings.Join(modes, ",")+"]"))
				fmt.Fprintf(out, "    %s\n", r.Content)
				if r.SessionID != "" {
					fmt.Fprintf(out, "    %s %s\n", styles.Label.Render("session:"), r.SessionID)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum number of results")
	cmd.Flags().StringVar(&sessionID, "session", "", "Restrict to one session")
	cmd.Flags().StringVar(&category, "category", "", "Restrict to one category")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
