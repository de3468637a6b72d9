package dashboard

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/cropdx/leafscan/internal/aggregate"
	"github.com/cropdx/leafscan/internal/diagnosis"
	runtimectx "github.com/cropdx/leafscan/internal/runtime"
)

const recentCount = 5

// Command creates a new cobra.Command for the statistics dashboard.
func Command(rt runtimectx.Provider) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show statistics over all past analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := rt()
			records, err := r.History.Refresh(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOut {
				split := aggregate.HealthSplit(records)
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(struct {
					Stats  diagnosis.AggregatedStats `json:"stats"`
					Labels []aggregate.SeriesPoint   `json:"labels"`
					Health []aggregate.SeriesPoint   `json:"health"`
					Recent []diagnosis.HistoryRecord `json:"recent"`
				}{
					Stats:  aggregate.Stats(records),
					Labels: aggregate.LabelSeries(aggregate.CountsByLabel(records)),
					Health: aggregate.HealthSeries(split),
					Recent: aggregate.Recent(records, recentCount),
				})
			}
			return r.Printer(cmd.OutOrStdout()).Dashboard(records)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Print statistics and chart series as JSON")

	return cmd
}
