package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ads (
	id BIGINT PRIMARY KEY,
	numero_offre TEXT,
	intitule TEXT,
	intitule_surbrillance TEXT,
	nom_commercial TEXT,
	url_logo TEXT,
	client_reel BIGINT,
	offre_confidentielle BIGINT,
	lieu_texte TEXT,
	latitude TEXT,
	longitude TEXT,
	localisable BIGINT,
	texte_offre TEXT,
	salaire_texte TEXT,
	type_contrat BIGINT,
	contract_duration BIGINT,
	secteur_activite BIGINT,
	secteur_activite_parent BIGINT,
	origine_code BIGINT,
	date_publication TEXT,
	date_validation TEXT,
	id_nom_teletravail BIGINT,
	indicateur_oqa BIGINT,
	indicateur_faible_candidature BIGINT,
	score TEXT,
	payload_json TEXT NOT NULL,
	first_seen_at TEXT NOT NULL,
	last_seen_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	started_at TEXT NOT NULL,
	ended_at TEXT,
	ads_fetched BIGINT NOT NULL DEFAULT 0,
	pages_fetched BIGINT NOT NULL DEFAULT 0,
	notes TEXT
);
CREATE TABLE IF NOT EXISTS metrics (
	id BIGSERIAL PRIMARY KEY,
	config_name TEXT NOT NULL,
	value BIGINT NOT NULL,
	retrieved_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_metrics_config_ts ON metrics(config_name, retrieved_at);
`

// upsertAdSQL relies on xmax to tell inserts from conflict updates:
// freshly inserted rows have xmax = 0 in the returning clause.
const upsertAdSQL = `
INSERT INTO ads (
	id, numero_offre, intitule, intitule_surbrillance, nom_commercial,
	url_logo, client_reel, offre_confidentielle, lieu_texte, latitude,
	longitude, localisable, texte_offre, salaire_texte, type_contrat,
	contract_duration, secteur_activite, secteur_activite_parent,
	origine_code, date_publication, date_validation, id_nom_teletravail,
	indicateur_oqa, indicateur_faible_candidature, score, payload_json,
	first_seen_at, last_seen_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,
	$20,$21,$22,$23,$24,$25,$26,$27,$28
)
ON CONFLICT (id) DO UPDATE SET
	numero_offre = EXCLUDED.numero_offre,
	intitule = EXCLUDED.intitule,
	intitule_surbrillance = EXCLUDED.intitule_surbrillance,
	nom_commercial = EXCLUDED.nom_commercial,
	url_logo = EXCLUDED.url_logo,
	client_reel = EXCLUDED.client_reel,
	offre_confidentielle = EXCLUDED.offre_confidentielle,
	lieu_texte = EXCLUDED.lieu_texte,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	localisable = EXCLUDED.localisable,
	texte_offre = EXCLUDED.texte_offre,
	salaire_texte = EXCLUDED.salaire_texte,
	type_contrat = EXCLUDED.type_contrat,
	contract_duration = EXCLUDED.contract_duration,
	secteur_activite = EXCLUDED.secteur_activite,
	secteur_activite_parent = EXCLUDED.secteur_activite_parent,
	origine_code = EXCLUDED.origine_code,
	date_publication = EXCLUDED.date_publication,
	date_validation = EXCLUDED.date_validation,
	id_nom_teletravail = EXCLUDED.id_nom_teletravail,
	indicateur_oqa = EXCLUDED.indicateur_oqa,
	indicateur_faible_candidature = EXCLUDED.indicateur_faible_candidature,
	score = EXCLUDED.score,
	payload_json = EXCLUDED.payload_json,
	last_seen_at = EXCLUDED.last_seen_at
RETURNING (xmax = 0) AS inserted`

// pgxPool is the subset of pgxpool.Pool the store uses; pgxmock
// provides the same surface for tests.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store on a Postgres pool, for deployments
// where the local SQLite file is not enough.
type PostgresStore struct {
	pool pgxPool
}

// NewPostgresStore connects a pool using the provided DSN.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool pgxPool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &PostgresStore{pool: pool}, nil
}

// Init creates the schema if needed.
func (s *PostgresStore) Init(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SaveAds upserts one page of ads in a single transaction.
func (s *PostgresStore) SaveAds(ctx context.Context, ads []Ad, now string) (UpsertStats, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return UpsertStats{}, fmt.Errorf("begin page tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var stats UpsertStats
	for _, ad := range ads {
		args := append(adArgs(ad), now, now)
		var inserted bool
		if err := tx.QueryRow(ctx, upsertAdSQL, args...).Scan(&inserted); err != nil {
			return UpsertStats{}, fmt.Errorf("upsert ad %d: %w", ad.ID, err)
		}
		if inserted {
			stats.New++
		} else {
			stats.Updated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return UpsertStats{}, fmt.Errorf("commit page tx: %w", err)
	}
	return stats, nil
}

// CountAds returns the number of unique ads.
func (s *PostgresStore) CountAds(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ads`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ads: %w", err)
	}
	return n, nil
}

// CreateRun appends a run row.
func (s *PostgresStore) CreateRun(ctx context.Context, run Run) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO runs (run_id, started_at, ended_at, ads_fetched, pages_fetched, notes)
VALUES ($1, $2, NULL, $3, $4, $5)`,
		run.RunID, run.StartedAt, run.AdsFetched, run.PagesFetched, run.Notes)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.RunID, err)
	}
	return nil
}

// FinalizeRun closes a run with its final counters.
func (s *PostgresStore) FinalizeRun(ctx context.Context, runID, endedAt string, adsFetched, pagesFetched int) error {
	tag, err := s.pool.Exec(ctx, `
UPDATE runs SET ended_at = $1, ads_fetched = $2, pages_fetched = $3 WHERE run_id = $4`,
		endedAt, adsFetched, pagesFetched, runID)
	if err != nil {
		return fmt.Errorf("finalize run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetRun fetches a run row by id.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (Run, error) {
	return s.scanRun(s.pool.QueryRow(ctx, `
SELECT run_id, started_at, ended_at, ads_fetched, pages_fetched, notes
FROM runs WHERE run_id = $1`, runID))
}

// LastRun returns the most recently started run.
func (s *PostgresStore) LastRun(ctx context.Context) (Run, error) {
	return s.scanRun(s.pool.QueryRow(ctx, `
SELECT run_id, started_at, ended_at, ads_fetched, pages_fetched, notes
FROM runs ORDER BY started_at DESC LIMIT 1`))
}

func (s *PostgresStore) scanRun(row pgx.Row) (Run, error) {
	var run Run
	var notes *string
	err := row.Scan(&run.RunID, &run.StartedAt, &run.EndedAt,
		&run.AdsFetched, &run.PagesFetched, &notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	if notes != nil {
		run.Notes = *notes
	}
	return run, nil
}

// AppendMetric records one observation for a preset.
func (s *PostgresStore) AppendMetric(ctx context.Context, configName string, value int64, retrievedAt string) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO metrics (config_name, value, retrieved_at) VALUES ($1, $2, $3)`,
		configName, value, retrievedAt)
	if err != nil {
		return fmt.Errorf("append metric %s: %w", configName, err)
	}
	return nil
}

// LatestMetric returns the most recent observation for a preset.
func (s *PostgresStore) LatestMetric(ctx context.Context, configName string) (Metric, error) {
	var m Metric
	err := s.pool.QueryRow(ctx, `
SELECT id, config_name, value, retrieved_at FROM metrics
WHERE config_name = $1 ORDER BY retrieved_at DESC, id DESC LIMIT 1`, configName).
		Scan(&m.ID, &m.ConfigName, &m.Value, &m.RetrievedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Metric{}, ErrNotFound
	}
	if err != nil {
		return Metric{}, fmt.Errorf("latest metric %s: %w", configName, err)
	}
	return m, nil
}

// MetricSeries returns up to limit observations, newest first.
func (s *PostgresStore) MetricSeries(ctx context.Context, configName string, limit int) ([]Metric, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, config_name, value, retrieved_at FROM metrics
WHERE config_name = $1 ORDER BY retrieved_at DESC, id DESC LIMIT $2`, configName, limit)
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
