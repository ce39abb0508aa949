package pmtiles

import (
	"encoding/json"
)

// CreateTileJSON builds a TileJSON 3.0.0 document for the archive, with tiles served under tileURL.
func CreateTileJSON(header HeaderV3, metadata Metadata, tileURL string) ([]byte, error) {
	tilejson := make(map[string]interface{})

	// metadata that is not a JSON object contributes nothing
	metadataMap, _ := metadata.Map()

	tilejson["tilejson"] = "3.0.0"
	tilejson["scheme"] = "xyz"
	tilejson["tiles"] = []string{tileURL + "/{z}/{x}/{y}" + headerExt(header)}

	for _, k := range []string{"vector_layers", "attribution", "description", "name", "version"} {
		if v, ok := metadataMap[k]; ok {
			tilejson[k] = v
		}
	}

	bounds := header.Bounds()
	center := header.Center()
	tilejson["bounds"] = []float64{bounds.Left(), bounds.Bottom(), bounds.Right(), bounds.Top()}
	tilejson["center"] = []interface{}{center.Lon(), center.Lat(), header.CenterZoom}
	tilejson["minzoom"] = header.MinZoom
	tilejson["maxzoom"] = header.MaxZoom

	return json.Marshal(tilejson)
}
