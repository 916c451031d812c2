package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AbdallahZerfaoui/apec-observer/internal/apec"
	"github.com/AbdallahZerfaoui/apec-observer/internal/clock/system"
	"github.com/AbdallahZerfaoui/apec-observer/internal/crawler"
	"github.com/AbdallahZerfaoui/apec-observer/internal/id/uuid"
)

// newCrawlCmd creates and configures the 'crawl' subcommand: a full
// paginated crawl of every offer matching a filter preset.
func newCrawlCmd() *cobra.Command {
	var presetName string
	var maxPages int

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl all job offers for a preset into the local store",
		Long: `Paginates through the APEC search endpoint for one filter preset,
upserting every ad into the ads table and recording the execution in
the runs table. Interrupted or failed runs keep their committed pages;
rerunning resumes naturally via the keyed upsert.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()

			if presetName == "" {
				presetName = cfg.Crawl.Preset
			}
			preset, err := apec.PresetByName(presetName)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-pages") {
				maxPages = cfg.Crawl.MaxPages
			}

			engine := crawler.New(
				appInstance.Client(),
				appInstance.Store(),
				system.New(),
				uuid.NewGenerator(),
				crawler.TimerPause{},
				crawler.Config{
					Preset:       preset,
					PageSize:     cfg.Crawl.PageSize,
					MaxPages:     maxPages,
					RequestDelay: cfg.RequestDelay(),
				},
				appInstance.Logger(),
			)

			summary, err := engine.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("crawl run %s: %w", summary.RunID, err)
			}

			uniqueAds, err := appInstance.Store().CountAds(cmd.Context())
			if err != nil {
				return fmt.Errorf("count ads: %w", err)
			}
			appInstance.Logger().Info("crawl completed",
				zap.String("run_id", summary.RunID),
				zap.Int("ads_fetched", summary.AdsFetched()),
				zap.Int("new", summary.NewAds),
				zap.Int("updated", summary.UpdatedAds),
				zap.Int("skipped", summary.SkippedAds),
				zap.Int("pages_fetched", summary.PagesFetched),
				zap.Int64("unique_ads_in_db", uniqueAds))
			return nil
		},
	}

	cmd.Flags().StringVar(&presetName, "preset", "", "filter preset to crawl (defaults to crawl.preset)")
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "safety cap on pages fetched (0 = unlimited)")

	return cmd
}
