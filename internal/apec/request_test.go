package apec

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSearchRequestIsFreshPerPage(t *testing.T) {
	t.Parallel()

	preset, err := PresetByName("ile_de_france_it")
	require.NoError(t, err)

	first := NewSearchRequest(preset, 100, 0)
	second := NewSearchRequest(preset, 100, 100)

	require.Equal(t, Pagination{Range: 100, StartIndex: 0}, first.Pagination)
	require.Equal(t, Pagination{Range: 100, StartIndex: 100}, second.Pagination)

	// mutating one request must not leak into the next page's request
	first.Lieux[0] = "mutated"
	require.Equal(t, "711", second.Lieux[0])
	require.Equal(t, []string{"711"}, presets["ile_de_france_it"].Lieux)
}

func TestNewSearchRequestSerializesEmptyFiltersAsArrays(t *testing.T) {
	t.Parallel()

	preset, err := PresetByName("france_all")
	require.NoError(t, err)

	data, err := json.Marshal(NewSearchRequest(preset, 1, 0))
	require.NoError(t, err)

	body := string(data)
	require.Contains(t, body, `"fonctions":[]`)
	require.Contains(t, body, `"typesContrat":[]`)
	require.NotContains(t, body, "null", "the endpoint rejects null filter arrays")
	require.Contains(t, body, `"sorts":[{"type":"DATE","direction":"DESCENDING"}]`)
	require.Contains(t, body, `"typeClient":"CADRE"`)
	require.Contains(t, body, `"activeFiltre":true`)
}

func TestPresetCatalog(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"cadres_only", "france_all", "ile_de_france_it"}, PresetNames())

	_, err := PresetByName("does_not_exist")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown search preset")
}
