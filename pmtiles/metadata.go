package pmtiles

import (
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Metadata is the JSON document stored in an archive.
// The raw text is always kept; well-known fields are filled in when the text parses.
type Metadata struct {
	Name         string
	Description  string
	Attribution  string
	Type         string
	Version      string
	Format       string
	Generator    string
	VectorLayers []json.RawMessage
	Tilestats    json.RawMessage

	raw string
}

// JSON returns the metadata text exactly as stored.
func (m Metadata) JSON() string {
	return m.raw
}

// Map parses the metadata into a generic map.
func (m Metadata) Map() (map[string]interface{}, error) {
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(m.raw), &result); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrJSONInvalid, err)
	}
	return result, nil
}

// DeserializeMetadata inflates and validates the metadata section.
// Vector tile archives must carry a JSON object; for other tile types the
// text only has to be UTF-8.
func DeserializeMetadata(data []byte, compression Compression, tileType TileType) (Metadata, error) {
	if len(data) == 0 {
		return Metadata{raw: "{}"}, nil
	}

	text, err := decompress(data, compression)
	if err != nil {
		return Metadata{}, fmt.Errorf("metadata: %w", err)
	}
	if !utf8.Valid(text) {
		return Metadata{}, ErrUtf8Invalid
	}

	m, err := parseMetadata(text)
	if err != nil && tileType == Mvt {
		return Metadata{}, err
	}
	m.raw = string(text)
	return m, nil
}

func parseMetadata(text []byte) (Metadata, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(text, &fields); err != nil {
		return Metadata{}, fmt.Errorf("%w: %w", ErrJSONInvalid, err)
	}
	if fields == nil {
		return Metadata{}, ErrJSONInvalid
	}
	m := Metadata{
		Name:        stringField(fields["name"]),
		Description: stringField(fields["description"]),
		Attribution: stringField(fields["attribution"]),
		Type:        stringField(fields["type"]),
		Version:     stringField(fields["version"]),
		Format:      stringField(fields["format"]),
		Generator:   stringField(fields["generator"]),
		Tilestats:   fields["tilestats"],
	}
	if layers, ok := fields["vector_layers"]; ok {
		// a malformed layer list is kept only in the raw text
		_ = json.Unmarshal(layers, &m.VectorLayers)
	}
	return m, nil
}

// stringField reads a JSON string, falling back to the literal text for
// numbers and other scalars (e.g. "version": 2).
func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
