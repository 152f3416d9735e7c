package importer

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ff-einsatz/hydrantmap/internal/core/domain"
)

func TestWriteRecordsCSV_HeaderHasNoDuplicates(t *testing.T) {
	records := []domain.Record{{
		Name: "H-1", Kind: domain.KindHydrant, Lat: 47.95, Lng: 16.85, Geohash: "u2edk0bbbb",
		Fields: map[string]any{
			"name": "H-1", "typ": "Hydrant", "x": 3044.7, "y": 341122.7,
			"lat": "47,95", "src_lat": "taken", "kind": "Ü",
		},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteRecordsCSV(&buf, records))

	header := strings.Split(strings.SplitN(buf.String(), "\n", 2)[0], ",")
	assert.Equal(t, []string{
		"name", "kind", "lat", "lng", "geohash",
		"src_kind", "src_src_lat", "src_name", "src_lat", "typ", "x", "y",
	}, header)

	seen := map[string]bool{}
	for _, col := range header {
		assert.False(t, seen[col], "duplicate column %q", col)
		seen[col] = true
	}
}

func TestWriteRecordsCSV_ReadsBackUnchanged(t *testing.T) {
	records := []domain.Record{{
		Name: "H-1", Kind: domain.KindHydrant, Lat: 47.95, Lng: 16.85, Geohash: "u2edk0bbbb",
		Fields: map[string]any{"name": "H-1", "typ": "Hydrant"},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteRecordsCSV(&buf, records))

	raw, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "H-1", raw[0]["name"])
	assert.Equal(t, "H-1", raw[0]["src_name"])
	assert.NotContains(t, raw[0], "name_2")
}
