package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AbdallahZerfaoui/apec-observer/internal/apec"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := NewSQLiteStore(filepath.Join(t.TempDir(), "observer.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Init(context.Background()))
	return st
}

func testAd(id int64, title string, payload string) Ad {
	return Ad{
		ID:          id,
		Intitule:    &title,
		PayloadJSON: payload,
	}
}

func TestSaveAdsClassifiesNewAndUpdated(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	ctx := context.Background()

	first := []Ad{
		testAd(1, "Data Engineer", `{"id": 1}`),
		testAd(2, "SRE", `{"id": 2}`),
	}
	stats, err := st.SaveAds(ctx, first, "2026-08-24T08:00:00Z")
	require.NoError(t, err)
	require.Equal(t, UpsertStats{New: 2, Updated: 0}, stats)

	second := []Ad{
		testAd(2, "SRE senior", `{"id": 2, "v": 2}`),
		testAd(3, "DBA", `{"id": 3}`),
	}
	stats, err = st.SaveAds(ctx, second, "2026-08-24T09:00:00Z")
	require.NoError(t, err)
	require.Equal(t, UpsertStats{New: 1, Updated: 1}, stats)

	n, err := st.CountAds(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestSaveAdsPreservesFirstSeenAt(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.SaveAds(ctx, []Ad{testAd(7, "v1", `{"id": 7, "rev": 1}`)}, "2026-08-20T06:00:00Z")
	require.NoError(t, err)
	_, err = st.SaveAds(ctx, []Ad{testAd(7, "v2", `{"id": 7, "rev": 2}`)}, "2026-08-24T06:00:00Z")
	require.NoError(t, err)

	ad, err := st.GetAd(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, "2026-08-20T06:00:00Z", ad.FirstSeenAt, "first sighting must survive updates")
	require.Equal(t, "2026-08-24T06:00:00Z", ad.LastSeenAt)
	require.Equal(t, "v2", *ad.Intitule)
	require.JSONEq(t, `{"id": 7, "rev": 2}`, ad.PayloadJSON)
}

func TestSaveAdsRoundTripsFlattenedOffer(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	ctx := context.Background()

	raw := `{
		"id": 174413920,
		"numeroOffre": "174413920W",
		"intitule": "Data Engineer F/H",
		"clientReel": true,
		"offreConfidentielle": false,
		"latitude": 48.876898,
		"longitude": 2.338543,
		"typeContrat": 101888,
		"score": 178.75343
	}`
	offer, err := apec.ParseOffer([]byte(raw))
	require.NoError(t, err)

	_, err = st.SaveAds(ctx, []Ad{NewAd(offer)}, "2026-08-24T10:00:00Z")
	require.NoError(t, err)

	ad, err := st.GetAd(ctx, 174413920)
	require.NoError(t, err)
	require.Equal(t, "174413920W", *ad.NumeroOffre)
	require.Equal(t, int64(1), *ad.ClientReel)
	require.Equal(t, int64(0), *ad.OffreConfidentielle)
	require.Nil(t, ad.Localisable, "absent booleans stay NULL")
	require.Equal(t, "48.876898", *ad.Latitude)
	require.Equal(t, "178.75343", *ad.Score)
	require.JSONEq(t, raw, ad.PayloadJSON)
}

func TestGetAdNotFound(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	_, err := st.GetAd(context.Background(), 999)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	ctx := context.Background()

	run := Run{
		RunID:     "run-0001",
		StartedAt: "2026-08-24T08:00:00Z",
		Notes:     "full crawl of preset ile_de_france_it",
	}
	require.NoError(t, st.CreateRun(ctx, run))

	got, err := st.GetRun(ctx, "run-0001")
	require.NoError(t, err)
	require.Nil(t, got.EndedAt, "open run has no end timestamp")
	require.Zero(t, got.AdsFetched)
	require.Equal(t, run.Notes, got.Notes)

	require.NoError(t, st.FinalizeRun(ctx, "run-0001", "2026-08-24T08:05:00Z", 420, 5))

	got, err = st.GetRun(ctx, "run-0001")
	require.NoError(t, err)
	require.NotNil(t, got.EndedAt)
	require.Equal(t, "2026-08-24T08:05:00Z", *got.EndedAt)
	require.Equal(t, 420, got.AdsFetched)
	require.Equal(t, 5, got.PagesFetched)
}

func TestFinalizeRunUnknownID(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	err := st.FinalizeRun(context.Background(), "missing", "2026-08-24T08:05:00Z", 0, 0)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLastRunPicksMostRecentStart(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.CreateRun(ctx, Run{RunID: "old", StartedAt: "2026-08-23T08:00:00Z"}))
	require.NoError(t, st.CreateRun(ctx, Run{RunID: "new", StartedAt: "2026-08-24T08:00:00Z"}))
	require.NoError(t, st.FinalizeRun(ctx, "old", "2026-08-23T08:10:00Z", 10, 1))

	last, err := st.LastRun(ctx)
	require.NoError(t, err)
	require.Equal(t, "new", last.RunID)
	require.Nil(t, last.EndedAt, "abandoned runs surface with a nil end timestamp")
}

func TestLastRunEmpty(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	_, err := st.LastRun(context.Background())
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMetricsAppendOnlySeries(t *testing.T) {
	t.Parallel()

	st := newTestSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, st.AppendMetric(ctx, "ile_de_france_it", 4100, "2026-08-22T08:00:00Z"))
	require.NoError(t, st.AppendMetric(ctx, "ile_de_france_it", 4213, "2026-08-23T08:00:00Z"))
	require.NoError(t, st.AppendMetric(ctx, "ile_de_france_it", 4198, "2026-08-24T08:00:00Z"))
	require.NoError(t, st.AppendMetric(ctx, "france_all", 99000, "2026-08-24T08:00:00Z"))

	latest, err := st.LatestMetric(ctx, "ile_de_france_it")
	require.NoError(t, err)
	require.Equal(t, int64(4198), latest.Value)

	series, err := st.MetricSeries(ctx, "ile_de_france_it", 2)
	require.NoError(t, err)
	require.Len(t, series, 2)
	require.Equal(t, int64(4198), series[0].Value)
	require.Equal(t, int64(4213), series[1].Value)

	_, err = st.LatestMetric(ctx, "cadres_only")
	require.ErrorIs(t, err, ErrNotFound)
}
