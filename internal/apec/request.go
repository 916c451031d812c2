package apec

import (
	"fmt"
	"sort"
)

// APEC referential ids used by the preset catalog.
const (
	lieuIleDeFrance = "711"
	lieuFrance      = "799"
	secteurIT       = "101753"
)

var (
	statutCadres     = []string{"143688", "143689"}
	conventionCadres = []string{"143684", "143685", "143686", "143687", "143706"}
)

// Sort orders search results.
type Sort struct {
	Type      string `json:"type"`
	Direction string `json:"direction"`
}

// Pagination selects one fixed-size page of results.
type Pagination struct {
	Range      int `json:"range"`
	StartIndex int `json:"startIndex"`
}

// GeoReference is the geolocation block the search endpoint expects.
type GeoReference struct {
	Distance int `json:"distance"`
}

// SearchRequest is the body of POST /rechercheOffre. The endpoint
// rejects null filter arrays, so every slice is kept non-nil.
type SearchRequest struct {
	Lieux                   []string     `json:"lieux"`
	Fonctions               []string     `json:"fonctions"`
	StatutPoste             []string     `json:"statutPoste"`
	TypesContrat            []string     `json:"typesContrat"`
	TypesConvention         []string     `json:"typesConvention"`
	NiveauxExperience       []string     `json:"niveauxExperience"`
	IdsEtablissement        []string     `json:"idsEtablissement"`
	SecteursActivite        []string     `json:"secteursActivite"`
	TypesTeletravail        []string     `json:"typesTeletravail"`
	IDNomZonesDeplacement   []string     `json:"idNomZonesDeplacement"`
	PositionNumbersExcluded []int        `json:"positionNumbersExcluded"`
	TypeClient              string       `json:"typeClient"`
	Sorts                   []Sort       `json:"sorts"`
	Pagination              Pagination   `json:"pagination"`
	ActiveFiltre            bool         `json:"activeFiltre"`
	PointGeolocDeReference  GeoReference `json:"pointGeolocDeReference"`
}

// Preset is a named, static combination of search filters.
type Preset struct {
	Name             string
	Lieux            []string
	Fonctions        []string
	StatutPoste      []string
	TypesContrat     []string
	TypesConvention  []string
	SecteursActivite []string
}

// presets is the static filter catalog. Ids come from the APEC
// referential (711 = Île-de-France, 799 = all France, 101753 = IT).
var presets = map[string]Preset{
	"ile_de_france_it": {
		Name:             "ile_de_france_it",
		Lieux:            []string{lieuIleDeFrance},
		StatutPoste:      statutCadres,
		SecteursActivite: []string{secteurIT},
	},
	"cadres_only": {
		Name:            "cadres_only",
		StatutPoste:     statutCadres,
		TypesConvention: conventionCadres,
	},
	"france_all": {
		Name:  "france_all",
		Lieux: []string{lieuFrance},
	},
}

// PresetByName looks up a preset from the catalog.
func PresetByName(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown search preset %q (known: %v)", name, PresetNames())
	}
	return p, nil
}

// PresetNames returns the catalog names in stable order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewSearchRequest builds a fresh request body for one page. Callers get
// an independent value each time; nothing is shared between pages.
func NewSearchRequest(p Preset, pageSize, startIndex int) SearchRequest {
	return SearchRequest{
		Lieux:                   orEmpty(p.Lieux),
		Fonctions:               orEmpty(p.Fonctions),
		StatutPoste:             orEmpty(p.StatutPoste),
		TypesContrat:            orEmpty(p.TypesContrat),
		TypesConvention:         orEmpty(p.TypesConvention),
		NiveauxExperience:       []string{},
		IdsEtablissement:        []string{},
		SecteursActivite:        orEmpty(p.SecteursActivite),
		TypesTeletravail:        []string{},
		IDNomZonesDeplacement:   []string{},
		PositionNumbersExcluded: []int{},
		TypeClient:              "CADRE",
		Sorts:                   []Sort{{Type: "DATE", Direction: "DESCENDING"}},
		Pagination:              Pagination{Range: pageSize, StartIndex: startIndex},
		ActiveFiltre:            true,
		PointGeolocDeReference:  GeoReference{Distance: 0},
	}
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}
