package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/AbdallahZerfaoui/apec-observer/internal/apec"
	"github.com/AbdallahZerfaoui/apec-observer/internal/store"
)

// fakeSearcher serves pages out of a fixed dataset the way the real
// endpoint does: totalCount is the dataset size and pagination slices
// into it. failOnCall injects a fetch error on the nth call (1-based).
type fakeSearcher struct {
	dataset      []json.RawMessage
	calls        int
	requests     []apec.SearchRequest
	failOnCall   int
	failWith     error
	cancelOnCall int
	cancel       context.CancelFunc
}

func (f *fakeSearcher) Search(ctx context.Context, req apec.SearchRequest) (apec.SearchResponse, error) {
	f.calls++
	f.requests = append(f.requests, req)
	if f.cancelOnCall > 0 && f.calls == f.cancelOnCall {
		f.cancel()
		return apec.SearchResponse{}, ctx.Err()
	}
	if f.failOnCall > 0 && f.calls == f.failOnCall {
		return apec.SearchResponse{}, f.failWith
	}

	start := req.Pagination.StartIndex
	end := start + req.Pagination.Range
	if start > len(f.dataset) {
		start = len(f.dataset)
	}
	if end > len(f.dataset) {
		end = len(f.dataset)
	}
	return apec.SearchResponse{
		Resultats:  f.dataset[start:end],
		TotalCount: len(f.dataset),
	}, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(time.Second)
	return c.now
}

type fakeIDs struct {
	id string
}

func (f fakeIDs) NewID() (string, error) {
	return f.id, nil
}

type noPause struct{}

func (noPause) Pause(context.Context, time.Duration) {}

func rawOffers(n int) []json.RawMessage {
	offers := make([]json.RawMessage, 0, n)
	for i := 1; i <= n; i++ {
		offers = append(offers, json.RawMessage(
			fmt.Sprintf(`{"id": %d, "intitule": "offer %d"}`, i, i)))
	}
	return offers
}

func newTestEngine(t *testing.T, searcher *fakeSearcher, cfg Config) (*Engine, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "crawl.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Init(context.Background()))

	if cfg.Preset.Name == "" {
		preset, err := apec.PresetByName("ile_de_france_it")
		require.NoError(t, err)
		cfg.Preset = preset
	}

	clock := &fakeClock{now: time.Date(2026, 8, 24, 8, 0, 0, 0, time.UTC)}
	return New(searcher, st, clock, fakeIDs{id: "run-test"}, noPause{}, cfg, nil), st
}

func TestRunPersistsSinglePageAndFinalizes(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{dataset: rawOffers(2)}
	engine, st := newTestEngine(t, searcher, Config{PageSize: 100})

	summary, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, "run-test", summary.RunID)
	require.Equal(t, 2, summary.NewAds)
	require.Zero(t, summary.UpdatedAds)
	require.Equal(t, 1, summary.PagesFetched)
	require.Equal(t, 2, summary.TotalAvailable)
	require.Equal(t, 1, searcher.calls)

	n, err := st.CountAds(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	run, err := st.GetRun(context.Background(), "run-test")
	require.NoError(t, err)
	require.NotNil(t, run.EndedAt, "completed run must be finalized")
	require.Equal(t, 2, run.AdsFetched)
	require.Equal(t, 1, run.PagesFetched)
}

func TestRunPaginatesUntilExhaustion(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{dataset: rawOffers(5)}
	engine, st := newTestEngine(t, searcher, Config{PageSize: 2})

	summary, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, summary.NewAds)
	require.Equal(t, 3, summary.PagesFetched, "5 records at page size 2 means 3 pages")
	require.Equal(t, 3, searcher.calls)

	var starts []int
	for _, req := range searcher.requests {
		starts = append(starts, req.Pagination.StartIndex)
	}
	require.Equal(t, []int{0, 2, 4}, starts)

	n, err := st.CountAds(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(5), n)
}

func TestRunSecondCrawlUpdatesInsteadOfInserting(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{dataset: rawOffers(3)}
	engine, st := newTestEngine(t, searcher, Config{PageSize: 100})

	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	summary, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Zero(t, summary.NewAds)
	require.Equal(t, 3, summary.UpdatedAds)

	n, err := st.CountAds(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(3), n, "re-crawls must not duplicate ads")
}

func TestRunStopsAtPageCap(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{dataset: rawOffers(10)}
	engine, st := newTestEngine(t, searcher, Config{PageSize: 2, MaxPages: 2})

	summary, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.PagesFetched)
	require.Equal(t, 4, summary.NewAds)
	require.Equal(t, 2, searcher.calls)

	run, err := st.GetRun(context.Background(), "run-test")
	require.NoError(t, err)
	require.NotNil(t, run.EndedAt, "a capped run still finalizes")
	require.Equal(t, 4, run.AdsFetched)
}

func TestRunFinalizesAfterFetchFailure(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{
		dataset:    rawOffers(6),
		failOnCall: 2,
		failWith:   &apec.StatusError{StatusCode: 502},
	}
	engine, st := newTestEngine(t, searcher, Config{PageSize: 2})

	summary, err := engine.Run(context.Background())
	require.NoError(t, err, "a mid-crawl fetch failure ends the run gracefully")
	require.Equal(t, 1, summary.PagesFetched)
	require.Equal(t, 2, summary.NewAds)

	run, err := st.GetRun(context.Background(), "run-test")
	require.NoError(t, err)
	require.NotNil(t, run.EndedAt)
	require.Equal(t, 1, run.PagesFetched, "committed pages survive the failure")
}

func TestRunPropagatesAuthFailureWithoutFinalizing(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{
		dataset:    rawOffers(6),
		failOnCall: 1,
		failWith:   fmt.Errorf("status 403: %w", apec.ErrAuthFailure),
	}
	engine, st := newTestEngine(t, searcher, Config{PageSize: 2})

	_, err := engine.Run(context.Background())
	require.ErrorIs(t, err, apec.ErrAuthFailure)

	run, err := st.GetRun(context.Background(), "run-test")
	require.NoError(t, err)
	require.Nil(t, run.EndedAt, "auth failures leave the run open")
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	searcher := &fakeSearcher{dataset: rawOffers(6), cancelOnCall: 2, cancel: cancel}
	engine, st := newTestEngine(t, searcher, Config{PageSize: 2})

	summary, err := engine.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, summary.PagesFetched, "pages committed before the interrupt survive")

	run, err := st.GetRun(context.Background(), "run-test")
	require.NoError(t, err)
	require.Nil(t, run.EndedAt, "interrupted runs stay open for later inspection")
}

func TestRunSkipsRecordsWithoutValidID(t *testing.T) {
	t.Parallel()

	searcher := &fakeSearcher{dataset: []json.RawMessage{
		json.RawMessage(`{"id": 1, "intitule": "kept"}`),
		json.RawMessage(`{"id": "abc", "intitule": "dropped"}`),
		json.RawMessage(`{"intitule": "also dropped"}`),
		json.RawMessage(`{"id": 2, "intitule": "kept too"}`),
	}}
	engine, st := newTestEngine(t, searcher, Config{PageSize: 100})

	summary, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.NewAds)
	require.Equal(t, 2, summary.SkippedAds)

	n, err := st.CountAds(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
