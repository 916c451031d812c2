package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure-Go sqlite driver
)

// sqliteSchema creates the three tables. Ads are keyed by the APEC
// numeric id; runs are append-then-finalize; metrics are append-only
// with a config_name discriminator instead of one table per preset.
const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ads (
	id INTEGER PRIMARY KEY,
	numero_offre TEXT,
	intitule TEXT,
	intitule_surbrillance TEXT,
	nom_commercial TEXT,
	url_logo TEXT,
	client_reel INTEGER,
	offre_confidentielle INTEGER,
	lieu_texte TEXT,
	latitude TEXT,
	longitude TEXT,
	localisable INTEGER,
	texte_offre TEXT,
	salaire_texte TEXT,
	type_contrat INTEGER,
	contract_duration INTEGER,
	secteur_activite INTEGER,
	secteur_activite_parent INTEGER,
	origine_code INTEGER,
	date_publication TEXT,
	date_validation TEXT,
	id_nom_teletravail INTEGER,
	indicateur_oqa INTEGER,
	indicateur_faible_candidature INTEGER,
	score TEXT,
	payload_json TEXT NOT NULL,
	first_seen_at TEXT NOT NULL,
	last_seen_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	ads_fetched INTEGER NOT NULL DEFAULT 0,
	pages_fetched INTEGER NOT NULL DEFAULT 0,
	notes TEXT
);
CREATE TABLE IF NOT EXISTS metrics (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	config_name TEXT NOT NULL,
	value INTEGER NOT NULL,
	retrieved_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_config_ts ON metrics(config_name, retrieved_at);
`

// SQLiteStore is the default file-backed Store. A single crawling
// process is the only writer, so one connection is enough.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and creates, along with its parent directory)
// the database file at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

// Init creates the schema if needed.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveAds upserts one page of ads in a single transaction.
func (s *SQLiteStore) SaveAds(ctx context.Context, ads []Ad, now string) (UpsertStats, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertStats{}, fmt.Errorf("begin page tx: %w", err)
	}
	defer tx.Rollback()

	var stats UpsertStats
	for _, ad := range ads {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM ads WHERE id = ?`, ad.ID).Scan(&exists)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, `
INSERT INTO ads (
	id, numero_offre, intitule, intitule_surbrillance, nom_commercial,
	url_logo, client_reel, offre_confidentielle, lieu_texte, latitude,
	longitude, localisable, texte_offre, salaire_texte, type_contrat,
	contract_duration, secteur_activite, secteur_activite_parent,
	origine_code, date_publication, date_validation, id_nom_teletravail,
	indicateur_oqa, indicateur_faible_candidature, score, payload_json,
	first_seen_at, last_seen_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				append(adArgs(ad), now, now)...); err != nil {
				return UpsertStats{}, fmt.Errorf("insert ad %d: %w", ad.ID, err)
			}
			stats.New++
		case err != nil:
			return UpsertStats{}, fmt.Errorf("lookup ad %d: %w", ad.ID, err)
		default:
			args := append(adArgs(ad)[1:], now, ad.ID)
			if _, err := tx.ExecContext(ctx, `
UPDATE ads SET
	numero_offre = ?, intitule = ?, intitule_surbrillance = ?,
	nom_commercial = ?, url_logo = ?, client_reel = ?,
	offre_confidentielle = ?, lieu_texte = ?, latitude = ?, longitude = ?,
	localisable = ?, texte_offre = ?, salaire_texte = ?, type_contrat = ?,
	contract_duration = ?, secteur_activite = ?, secteur_activite_parent = ?,
	origine_code = ?, date_publication = ?, date_validation = ?,
	id_nom_teletravail = ?, indicateur_oqa = ?,
	indicateur_faible_candidature = ?, score = ?, payload_json = ?,
	last_seen_at = ?
WHERE id = ?`, args...); err != nil {
				return UpsertStats{}, fmt.Errorf("update ad %d: %w", ad.ID, err)
			}
			stats.Updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertStats{}, fmt.Errorf("commit page tx: %w", err)
	}
	return stats, nil
}

// adArgs returns the bind values in schema column order, id first,
// ending with payload_json. first/last_seen_at are appended by callers.
func adArgs(ad Ad) []any {
	return []any{
		ad.ID,
		ad.NumeroOffre,
		ad.Intitule,
		ad.IntituleSurbrillance,
		ad.NomCommercial,
		ad.URLLogo,
		ad.ClientReel,
		ad.OffreConfidentielle,
		ad.LieuTexte,
		ad.Latitude,
		ad.Longitude,
		ad.Localisable,
		ad.TexteOffre,
		ad.SalaireTexte,
		ad.TypeContrat,
		ad.ContractDuration,
		ad.SecteurActivite,
		ad.SecteurActiviteParent,
		ad.OrigineCode,
		ad.DatePublication,
		ad.DateValidation,
		ad.IDNomTeletravail,
		ad.IndicateurOqa,
		ad.IndicateurFaibleCandidature,
		ad.Score,
		ad.PayloadJSON,
	}
}

// GetAd fetches the flattened row plus payload for one id.
func (s *SQLiteStore) GetAd(ctx context.Context, id int64) (Ad, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, numero_offre, intitule, intitule_surbrillance, nom_commercial,
	url_logo, client_reel, offre_confidentielle, lieu_texte, latitude,
	longitude, localisable, texte_offre, salaire_texte, type_contrat,
	contract_duration, secteur_activite, secteur_activite_parent,
	origine_code, date_publication, date_validation, id_nom_teletravail,
	indicateur_oqa, indicateur_faible_candidature, score, payload_json,
	first_seen_at, last_seen_at
FROM ads WHERE id = ?`, id)

	var ad Ad
	err := row.Scan(
		&ad.ID, &ad.NumeroOffre, &ad.Intitule, &ad.IntituleSurbrillance,
		&ad.NomCommercial, &ad.URLLogo, &ad.ClientReel,
		&ad.OffreConfidentielle, &ad.LieuTexte, &ad.Latitude, &ad.Longitude,
		&ad.Localisable, &ad.TexteOffre, &ad.SalaireTexte, &ad.TypeContrat,
		&ad.ContractDuration, &ad.SecteurActivite, &ad.SecteurActiviteParent,
		&ad.OrigineCode, &ad.DatePublication, &ad.DateValidation,
		&ad.IDNomTeletravail, &ad.IndicateurOqa,
		&ad.IndicateurFaibleCandidature, &ad.Score, &ad.PayloadJSON,
		&ad.FirstSeenAt, &ad.LastSeenAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return Ad{}, ErrNotFound
	}
	if err != nil {
		return Ad{}, fmt.Errorf("get ad %d: %w", id, err)
	}
	return ad, nil
}

// CountAds returns the number of unique ads.
func (s *SQLiteStore) CountAds(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ads: %w", err)
	}
	return n, nil
}

// CreateRun appends a run row.
func (s *SQLiteStore) CreateRun(ctx context.Context, run Run) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (run_id, started_at, ended_at, ads_fetched, pages_fetched, notes)
VALUES (?, ?, NULL, ?, ?, ?)`,
		run.RunID, run.StartedAt, run.AdsFetched, run.PagesFetched, run.Notes)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	return nil
}

// FinalizeRun closes a run with its final counters.
func (s *SQLiteStore) FinalizeRun(ctx context.Context, runID, endedAt string, adsFetched, pagesFetched int) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE runs SET ended_at = ?, ads_fetched = ?, pages_fetched = ? WHERE run_id = ?`,
		endedAt, adsFetched, pagesFetched, runID)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun fetches a run row by id.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (Run, error) {
	return s.scanRun(s.db.QueryRowContext(ctx, `
SELECT run_id, started_at, ended_at, ads_fetched, pages_fetched, notes
FROM runs WHERE run_id = ?`, runID))
}

// LastRun returns the most recently started run.
func (s *SQLiteStore) LastRun(ctx context.Context) (Run, error) {
	return s.scanRun(s.db.QueryRowContext(ctx, `
SELECT run_id, started_at, ended_at, ads_fetched, pages_fetched, notes
FROM runs ORDER BY started_at DESC LIMIT 1`))
}

func (s *SQLiteStore) scanRun(row *sql.Row) (Run, error) {
	var run Run
	var notes sql.NullString
	err := row.Scan(&run.RunID, &run.StartedAt, &run.EndedAt,
		&run.AdsFetched, &run.PagesFetched, &notes)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.Notes = notes.String
	return run, nil
}

// AppendMetric records one observation for a preset.
func (s *SQLiteStore) AppendMetric(ctx context.Context, configName string, value int64, retrievedAt string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO metrics (config_name, value, retrieved_at) VALUES (?, ?, ?)`,
		configName, value, retrievedAt)
	if err != nil {
		return fmt.Errorf("append metric %s: %w", configName, err)
	}
	return nil
}

// LatestMetric returns the most recent observation for a preset.
func (s *SQLiteStore) LatestMetric(ctx context.Context, configName string) (Metric, error) {
	var m Metric
	err := s.db.QueryRowContext(ctx, `
SELECT id, config_name, value, retrieved_at FROM metrics
WHERE config_name = ? ORDER BY retrieved_at DESC, id DESC LIMIT 1`, configName).
		Scan(&m.ID, &m.ConfigName, &m.Value, &m.RetrievedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Metric{}, ErrNotFound
	}
	if err != nil {
		return Metric{}, fmt.Errorf("latest metric %s: %w", configName, err)
	}
	return m, nil
}

// MetricSeries returns up to limit observations, newest first.
func (s *SQLiteStore) MetricSeries(ctx context.Context, configName string, limit int) ([]Metric, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, config_name, value, retrieved_at FROM metrics
WHERE config_name = ? ORDER BY retrieved_at DESC, id DESC LIMIT ?`, configName, limit)
	if err != nil {
		return nil, fmt.Errorf("metric series %s: %w", configName, err)
	}
	defer rows.Close()

	var series []Metric
	for rows.Next() {
		var m Metric
		if err := rows.Scan(&m.ID, &m.ConfigName, &m.Value, &m.RetrievedAt); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		series = append(series, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metrics: %w", err)
	}
	return series, nil
}
