// Package store defines the persistence layer for ads, crawl runs, and
// preset metrics. The interface decouples callers from the concrete
// backend: SQLite for the default local file store, Postgres for shared
// deployments.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/AbdallahZerfaoui/apec-observer/internal/apec"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// Ad is one row of the ads table: a flattened projection of an offer
// plus the verbatim payload and observation timestamps. Boolean-ish
// source fields are normalized to 1/0/NULL; floating-point fields keep
// their exact wire text.
type Ad struct {
	ID                          int64
	NumeroOffre                 *string
	Intitule                    *string
	IntituleSurbrillance        *string
	NomCommercial               *string
	URLLogo                     *string
	ClientReel                  *int64
	OffreConfidentielle         *int64
	LieuTexte                   *string
	Latitude                    *string
	Longitude                   *string
	Localisable                 *int64
	TexteOffre                  *string
	SalaireTexte                *string
	TypeContrat                 *int64
	ContractDuration            *int64
	SecteurActivite             *int64
	SecteurActiviteParent       *int64
	OrigineCode                 *int64
	DatePublication             *string
	DateValidation              *string
	IDNomTeletravail            *int64
	IndicateurOqa               *int64
	IndicateurFaibleCandidature *int64
	Score                       *string
	PayloadJSON                 string
	FirstSeenAt                 string
	LastSeenAt                  string
}

// Run is one row of the runs table. EndedAt stays nil until the run is
// finalized; an old row with a nil EndedAt marks an abandoned run.
type Run struct {
	RunID        string
	StartedAt    string
	EndedAt      *string
	AdsFetched   int
	PagesFetched int
	Notes        string
}

// Metric is one append-only total-count observation for a preset.
type Metric struct {
	ID          int64
	ConfigName  string
	Value       int64
	RetrievedAt string
}

// UpsertStats classifies the outcome of one page of upserts.
type UpsertStats struct {
	New     int
	Updated int
}

// Store is the persistence contract shared by both backends.
type Store interface {
	// Init creates the schema if it does not exist yet.
	Init(ctx context.Context) error

	// SaveAds upserts one page of ads inside a single transaction. New
	// rows get first_seen_at == last_seen_at == now; existing rows keep
	// first_seen_at and have everything else replaced.
	SaveAds(ctx context.Context, ads []Ad, now string) (UpsertStats, error)

	// CreateRun appends a run row with zeroed counters.
	CreateRun(ctx context.Context, run Run) error
	// FinalizeRun sets the end timestamp and final counters, once.
	FinalizeRun(ctx context.Context, runID, endedAt string, adsFetched, pagesFetched int) error
	// GetRun fetches a run row by id.
	GetRun(ctx context.Context, runID string) (Run, error)
	// LastRun returns the most recently started run.
	LastRun(ctx context.Context) (Run, error)

	// CountAds returns the number of unique ads observed so far.
	CountAds(ctx context.Context) (int64, error)

	// AppendMetric records one total-count observation for a preset.
	AppendMetric(ctx context.Context, configName string, value int64, retrievedAt string) error
	// LatestMetric returns the most recent observation for a preset.
	LatestMetric(ctx context.Context, configName string) (Metric, error)
	// MetricSeries returns up to limit observations, newest first.
	MetricSeries(ctx context.Context, configName string, limit int) ([]Metric, error)

	Close() error
}

// NewAd flattens a parsed offer into an ad row. Timestamps are filled
// in by SaveAds.
func NewAd(o apec.Offer) Ad {
	return Ad{
		ID:                          o.ID,
		NumeroOffre:                 o.NumeroOffre,
		Intitule:                    o.Intitule,
		IntituleSurbrillance:        o.IntituleSurbrillance,
		NomCommercial:               o.NomCommercial,
		URLLogo:                     o.URLLogo,
		ClientReel:                  boolToInt(o.ClientReel),
		OffreConfidentielle:         boolToInt(o.OffreConfidentielle),
		LieuTexte:                   o.LieuTexte,
		Latitude:                    numberToString(o.Latitude),
		Longitude:                   numberToString(o.Longitude),
		Localisable:                 boolToInt(o.Localisable),
		TexteOffre:                  o.TexteOffre,
		SalaireTexte:                o.SalaireTexte,
		TypeContrat:                 o.TypeContrat,
		ContractDuration:            o.ContractDuration,
		SecteurActivite:             o.SecteurActivite,
		SecteurActiviteParent:       o.SecteurActiviteParent,
		OrigineCode:                 o.OrigineCode,
		DatePublication:             o.DatePublication,
		DateValidation:              o.DateValidation,
		IDNomTeletravail:            o.IDNomTeletravail,
		IndicateurOqa:               boolToInt(o.IndicateurOqa),
		IndicateurFaibleCandidature: boolToInt(o.IndicateurFaibleCandidature),
		Score:                       numberToString(o.Score),
		PayloadJSON:                 string(o.Raw),
	}
}

func boolToInt(v *bool) *int64 {
	if v == nil {
		return nil
	}
	n := int64(0)
	if *v {
		n = 1
	}
	return &n
}

// numberToString keeps the exact wire representation of a numeric
// field, avoiding lossy float round-trips.
func numberToString(n json.Number) *string {
	if n == "" {
		return nil
	}
	s := n.String()
	return &s
}
