package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AbdallahZerfaoui/apec-observer/internal/apec"
	"github.com/AbdallahZerfaoui/apec-observer/internal/clock/system"
	"github.com/AbdallahZerfaoui/apec-observer/internal/snapshot"
)

// newSnapshotCmd creates the 'snapshot' subcommand: the metrics-only
// ingestion path recording one total-count observation per preset.
func newSnapshotCmd() *cobra.Command {
	var presetNames []string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Record the total offer count for filter presets",
		Long: `Issues one minimal search per preset and records the reported total
offer count: one append-only row in the metrics table plus a
timestamped JSON artifact under the data directory.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			if len(presetNames) == 0 {
				presetNames = apec.PresetNames()
			}

			runner := snapshot.New(
				appInstance.Client(),
				appInstance.Store(),
				system.New(),
				appInstance.Config().Data.Dir,
				appInstance.Logger(),
			)
			artifacts, err := runner.Run(cmd.Context(), presetNames)
			if err != nil {
				return err
			}

			appInstance.Logger().Info("snapshot completed",
				zap.Int("presets", len(artifacts)))
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&presetNames, "preset", nil, "presets to snapshot (defaults to the whole catalog)")

	return cmd
}
