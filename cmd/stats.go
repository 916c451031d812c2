package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AbdallahZerfaoui/apec-observer/internal/store"
)

// newStatsCmd creates the 'stats' subcommand for inspecting the store.
func newStatsCmd() *cobra.Command {
	var presetName string
	var limit int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the latest run and metric observations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st := appInstance.Store()
			out := cmd.OutOrStdout()

			uniqueAds, err := st.CountAds(ctx)
			if err != nil {
				return fmt.Errorf("count ads: %w", err)
			}
			fmt.Fprintf(out, "unique ads: %d\n", uniqueAds)

			run, err := st.LastRun(ctx)
			switch {
			case errors.Is(err, store.ErrNotFound):
				fmt.Fprintln(out, "no runs recorded yet")
			case err != nil:
				return fmt.Errorf("last run: %w", err)
			default:
				ended := "still open (abandoned or in progress)"
				if run.EndedAt != nil {
					ended = *run.EndedAt
				}
				fmt.Fprintf(out, "last run %s\n  started:  %s\n  ended:    %s\n  ads:      %d\n  pages:    %d\n",
					run.RunID, run.StartedAt, ended, run.AdsFetched, run.PagesFetched)
			}

			if presetName == "" {
				return nil
			}
			series, err := st.MetricSeries(ctx, presetName, limit)
			if err != nil {
				return fmt.Errorf("metric series: %w", err)
			}
			if len(series) == 0 {
				fmt.Fprintf(out, "no metrics recorded for preset %s\n", presetName)
				return nil
			}
			fmt.Fprintf(out, "metrics for %s (newest first):\n", presetName)
			for _, m := range series {
				fmt.Fprintf(out, "  %s  %d\n", m.RetrievedAt, m.Value)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&presetName, "preset", "", "also show the metric series for this preset")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum metric observations to show")

	return cmd
}
