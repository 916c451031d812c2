// Package apec implements the HTTP client, request catalog, and retry
// policy for the APEC job-offer web services.
package apec

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// ErrInvalidOfferID marks a search result whose id is missing or not
// numeric. Such records are skipped, not treated as faults.
var ErrInvalidOfferID = errors.New("offer id is missing or not numeric")

// SearchResponse is the wire shape of a POST /rechercheOffre reply.
// Each result is kept as raw JSON so the stored payload stays verbatim.
type SearchResponse struct {
	Resultats  []json.RawMessage `json:"resultats"`
	TotalCount int               `json:"totalCount"`
}

// offerID accepts the source id as a JSON number or a numeric string.
// Anything else leaves it unset so the caller can skip the record.
type offerID struct {
	value int64
	valid bool
}

func (o *offerID) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	o.value = n
	o.valid = true
	return nil
}

// Offer is the flattened projection of one raw search result. Numeric
// text fields (coordinates, score) keep their original wire precision
// via json.Number; boolean-ish flags stay tri-state through pointers.
type Offer struct {
	ID                          int64
	NumeroOffre                 *string
	Intitule                    *string
	IntituleSurbrillance        *string
	NomCommercial               *string
	URLLogo                     *string
	ClientReel                  *bool
	OffreConfidentielle         *bool
	LieuTexte                   *string
	Latitude                    json.Number
	Longitude                   json.Number
	Localisable                 *bool
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
	IndicateurOqa               *bool
	IndicateurFaibleCandidature *bool
	Score                       json.Number

	// Raw is the original record exactly as the API sent it.
	Raw json.RawMessage
}

type wireOffer struct {
	ID                          offerID     `json:"id"`
	NumeroOffre                 *string     `json:"numeroOffre"`
	Intitule                    *string     `json:"intitule"`
	IntituleSurbrillance        *string     `json:"intituleSurbrillance"`
	NomCommercial               *string     `json:"nomCommercial"`
	URLLogo                     *string     `json:"urlLogo"`
	ClientReel                  *bool       `json:"clientReel"`
	OffreConfidentielle         *bool       `json:"offreConfidentielle"`
	LieuTexte                   *string     `json:"lieuTexte"`
	Latitude                    json.Number `json:"latitude"`
	Longitude                   json.Number `json:"longitude"`
	Localisable                 *bool       `json:"localisable"`
	TexteOffre                  *string     `json:"texteOffre"`
	SalaireTexte                *string     `json:"salaireTexte"`
	TypeContrat                 *int64      `json:"typeContrat"`
	ContractDuration            *int64      `json:"contractDuration"`
	SecteurActivite             *int64      `json:"secteurActivite"`
	SecteurActiviteParent       *int64      `json:"secteurActiviteParent"`
	OrigineCode                 *int64      `json:"origineCode"`
	DatePublication             *string     `json:"datePublication"`
	DateValidation              *string     `json:"dateValidation"`
	IDNomTeletravail            *int64      `json:"idNomTeletravail"`
	IndicateurOqa               *bool       `json:"indicateurOqa"`
	IndicateurFaibleCandidature *bool       `json:"indicateurFaibleCandidature"`
	Score                       json.Number `json:"score"`
}

// ParseOffer flattens one raw search result. It returns
// ErrInvalidOfferID when the record carries no usable numeric id.
func ParseOffer(raw json.RawMessage) (Offer, error) {
	var w wireOffer
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&w); err != nil {
		return Offer{}, ErrInvalidOfferID
	}
	if !w.ID.valid {
		return Offer{}, ErrInvalidOfferID
	}
	return Offer{
		ID:                          w.ID.value,
		NumeroOffre:                 w.NumeroOffre,
		Intitule:                    w.Intitule,
		IntituleSurbrillance:        w.IntituleSurbrillance,
		NomCommercial:               w.NomCommercial,
		URLLogo:                     w.URLLogo,
		ClientReel:                  w.ClientReel,
		OffreConfidentielle:         w.OffreConfidentielle,
		LieuTexte:                   w.LieuTexte,
		Latitude:                    w.Latitude,
		Longitude:                   w.Longitude,
		Localisable:                 w.Localisable,
		TexteOffre:                  w.TexteOffre,
		SalaireTexte:                w.SalaireTexte,
		TypeContrat:                 w.TypeContrat,
		ContractDuration:            w.ContractDuration,
		SecteurActivite:             w.SecteurActivite,
		SecteurActiviteParent:       w.SecteurActiviteParent,
		OrigineCode:                 w.OrigineCode,
		DatePublication:             w.DatePublication,
		DateValidation:              w.DateValidation,
		IDNomTeletravail:            w.IDNomTeletravail,
		IndicateurOqa:               w.IndicateurOqa,
		IndicateurFaibleCandidature: w.IndicateurFaibleCandidature,
		Score:                       w.Score,
		Raw:                         raw,
	}, nil
}
