package pmtiles

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTileJSON(t *testing.T) {
	header := HeaderV3{
		TileType:    Mvt,
		MinZoom:     0,
		MaxZoom:     14,
		MinLonE7:    -1.1 * 10000000,
		MinLatE7:    -1.2 * 10000000,
		MaxLonE7:    1.3 * 10000000,
		MaxLatE7:    1.4 * 10000000,
		CenterZoom:  3,
		CenterLonE7: 0.5 * 10000000,
		CenterLatE7: 0.6 * 10000000,
	}
	metadata, err := DeserializeMetadata([]byte(`{"name":"roads","attribution":"x","vector_layers":[{"id":"road"}],"generator":"g"}`), NoCompression, Mvt)
	require.NoError(t, err)

	b, err := CreateTileJSON(header, metadata, "https://example.com/tiles")
	require.NoError(t, err)

	var tilejson map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &tilejson))
	assert.Equal(t, "3.0.0", tilejson["tilejson"])
	assert.Equal(t, "xyz", tilejson["scheme"])
	assert.Equal(t, []interface{}{"https://example.com/tiles/{z}/{x}/{y}.mvt"}, tilejson["tiles"])
	assert.Equal(t, "roads", tilejson["name"])
	assert.Equal(t, "x", tilejson["attribution"])
	assert.Len(t, tilejson["vector_layers"], 1)
	assert.NotContains(t, tilejson, "generator")
	assert.NotContains(t, tilejson, "description")
	assert.Equal(t, 0.0, tilejson["minzoom"])
	assert.Equal(t, 14.0, tilejson["maxzoom"])

	bounds := tilejson["bounds"].([]interface{})
	require.Len(t, bounds, 4)
	assert.InDelta(t, -1.1, bounds[0], 1e-6)
	assert.InDelta(t, -1.2, bounds[1], 1e-6)
	assert.InDelta(t, 1.3, bounds[2], 1e-6)
	assert.InDelta(t, 1.4, bounds[3], 1e-6)

	center := tilejson["center"].([]interface{})
	require.Len(t, center, 3)
	assert.InDelta(t, 0.5, center[0], 1e-6)
	assert.InDelta(t, 0.6, center[1], 1e-6)
	assert.Equal(t, 3.0, center[2])
}

func TestCreateTileJSONRasterMetadata(t *testing.T) {
	metadata, err := DeserializeMetadata([]byte("not json"), NoCompression, Png)
	require.NoError(t, err)
	b, err := CreateTileJSON(HeaderV3{TileType: Png}, metadata, "http://localhost")
	require.NoError(t, err)

	var tilejson map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &tilejson))
	assert.Equal(t, []interface{}{"http://localhost/{z}/{x}/{y}.png"}, tilejson["tiles"])
	assert.NotContains(t, tilejson, "name")
}
