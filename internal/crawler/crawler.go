// Package crawler drives paginated crawls of the APEC search endpoint
// and tracks each execution as a run record.
package crawler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/AbdallahZerfaoui/apec-observer/internal/apec"
	"github.com/AbdallahZerfaoui/apec-observer/internal/store"
)

// Searcher fetches one page of search results.
type Searcher interface {
	Search(ctx context.Context, req apec.SearchRequest) (apec.SearchResponse, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Config controls Engine behavior.
type Config struct {
	Preset       apec.Preset
	PageSize     int
	MaxPages     int // 0 means no cap
	RequestDelay time.Duration
}

// Summary is what one crawl run accomplished.
type Summary struct {
	RunID          string
	NewAds         int
	UpdatedAds     int
	SkippedAds     int
	PagesFetched   int
	TotalAvailable int
}

// AdsFetched is the run counter persisted on finalization: every ad
// processed, whether new or refreshed.
func (s Summary) AdsFetched() int {
	return s.NewAds + s.UpdatedAds
}

// Engine runs the crawl loop: fetch a page, commit it, advance the
// offset, pause, repeat until the server reports exhaustion. One page
// fetch then one transaction, in strict sequence.
type Engine struct {
	client Searcher
	store  store.Store
	clock  Clock
	ids    IDGenerator
	pause  Pauser
	cfg    Config
	logger *zap.Logger
}

// New constructs an Engine.
func New(client Searcher, st store.Store, clock Clock, ids IDGenerator, pause Pauser, cfg Config, logger *zap.Logger) *Engine {
	if pause == nil {
		pause = TimerPause{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	return &Engine{
		client: client,
		store:  st,
		clock:  clock,
		ids:    ids,
		pause:  pause,
		cfg:    cfg,
		logger: logger,
	}
}

// Run executes one crawl run. The run row is created before the first
// fetch and finalized on exhaustion, page cap, or an exhausted-retries
// fetch failure; authentication failures, interrupts, and persistence
// errors propagate without finalizing, leaving a detectable open run.
func (e *Engine) Run(ctx context.Context) (Summary, error) {
	runID, err := e.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}

	summary := Summary{RunID: runID}
	err = e.store.CreateRun(ctx, store.Run{
		RunID:     runID,
		StartedAt: e.now(),
		Notes:     fmt.Sprintf("full crawl of preset %s", e.cfg.Preset.Name),
	})
	if err != nil {
		return summary, fmt.Errorf("create run: %w", err)
	}

	e.logger.Info("starting crawl run",
		zap.String("run_id", runID),
		zap.String("preset", e.cfg.Preset.Name),
		zap.Int("page_size", e.cfg.PageSize),
		zap.Duration("request_delay", e.cfg.RequestDelay))

	startIndex := 0
	for {
		if e.cfg.MaxPages > 0 && summary.PagesFetched >= e.cfg.MaxPages {
			e.logger.Warn("reached page cap", zap.Int("max_pages", e.cfg.MaxPages))
			break
		}

		resp, err := e.client.Search(ctx, apec.NewSearchRequest(e.cfg.Preset, e.cfg.PageSize, startIndex))
		if err != nil {
			if errors.Is(err, apec.ErrAuthFailure) || ctx.Err() != nil {
				return summary, err
			}
			// Retries are exhausted; keep the committed pages and stop.
			e.logger.Error("page fetch failed; stopping crawl", zap.Error(err))
			break
		}
		summary.TotalAvailable = resp.TotalCount

		if len(resp.Resultats) == 0 {
			e.logger.Info("no results; end of pagination")
			break
		}

		pageStats, skipped, err := e.persistPage(ctx, resp.Resultats)
		if err != nil {
			return summary, err
		}
		summary.NewAds += pageStats.New
		summary.UpdatedAds += pageStats.Updated
		summary.SkippedAds += skipped
		summary.PagesFetched++
		TotalPagesFetched.Inc()

		e.logger.Info("page committed",
			zap.Int("page", summary.PagesFetched),
			zap.Int("start_index", startIndex),
			zap.Int("new", pageStats.New),
			zap.Int("updated", pageStats.Updated),
			zap.Int("skipped", skipped),
			zap.Int("total_available", resp.TotalCount))

		nextIndex := startIndex + e.cfg.PageSize
		if nextIndex >= resp.TotalCount {
			e.logger.Info("reached end of results", zap.Int("total_available", resp.TotalCount))
			break
		}
		startIndex = nextIndex

		e.pause.Pause(ctx, e.cfg.RequestDelay)
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
	}

	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	if err := e.store.FinalizeRun(ctx, runID, e.now(), summary.AdsFetched(), summary.PagesFetched); err != nil {
		return summary, fmt.Errorf("finalize run: %w", err)
	}
	return summary, nil
}

// persistPage flattens one page and commits it in a single transaction.
// Records without a numeric id are skipped, not treated as errors.
func (e *Engine) persistPage(ctx context.Context, results []json.RawMessage) (store.UpsertStats, int, error) {
	ads := make([]store.Ad, 0, len(results))
	skipped := 0
	for _, raw := range results {
		offer, err := apec.ParseOffer(raw)
		if err != nil {
			skipped++
			TotalAdsSkipped.Inc()
			continue
		}
		ads = append(ads, store.NewAd(offer))
	}

	stats, err := e.store.SaveAds(ctx, ads, e.now())
	if err != nil {
		return store.UpsertStats{}, 0, fmt.Errorf("persist page: %w", err)
	}
	TotalAdsNew.Add(float64(stats.New))
	TotalAdsUpdated.Add(float64(stats.Updated))
	return stats, skipped, nil
}

func (e *Engine) now() string {
	return e.clock.Now().UTC().Format(time.RFC3339Nano)
}
