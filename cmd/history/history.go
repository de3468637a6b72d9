package history

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/cropdx/leafscan/internal/aggregate"
	runtimectx "github.com/cropdx/leafscan/internal/runtime"
)

// Command creates a new cobra.Command for listing past analyses.
func Command(rt runtimectx.Provider) *cobra.Command {
	var (
		search  string
		limit   int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past analyses",
		Long:  "Fetch the analysis history from the service, newest first, optionally filtered by diagnosis or filename.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := rt()
			records, err := r.History.Refresh(cmd.Context())
			if err != nil {
				return err
			}

			records = aggregate.FilterBySubstring(records, search)
			if limit > 0 && len(records) > limit {
				records = records[:limit]
			}

			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(records)
			}
			return r.Printer(cmd.OutOrStdout()).History(records)
		},
	}

	cmd.Flags().StringVarP(&search, "search", "s", "", "Only show records whose diagnosis or filename contains this text")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Show at most this many records (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print records as JSON")

	return cmd
}
