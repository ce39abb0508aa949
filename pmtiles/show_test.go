package pmtiles

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestShowHeader(t *testing.T) {
	var b bytes.Buffer
	path := writeFixture(t, sampleFixture())
	err := Show(zaptest.NewLogger(t), &b, path, ShowOptions{HeaderJSON: true})
	require.NoError(t, err)

	var input map[string]interface{}
	require.NoError(t, json.Unmarshal(b.Bytes(), &input))
	assert.Equal(t, "mvt", input["TileType"])
	assert.Equal(t, "gzip", input["TileCompression"])
	assert.Equal(t, "gzip", input["InternalCompression"])
	assert.Equal(t, 2.0, input["MaxZoom"])
	assert.Equal(t, -180.0, input["MinLon"])
}

func TestShowMetadata(t *testing.T) {
	var b bytes.Buffer
	path := writeFixture(t, sampleFixture())
	err := Show(zaptest.NewLogger(t), &b, path, ShowOptions{Metadata: true})
	require.NoError(t, err)

	var input map[string]interface{}
	require.NoError(t, json.Unmarshal(b.Bytes(), &input))
	assert.Equal(t, "sample", input["name"])
}

func TestShowSummary(t *testing.T) {
	var b bytes.Buffer
	path := writeFixture(t, sampleFixture())
	err := Show(zaptest.NewLogger(t), &b, path, ShowOptions{Entries: true})
	require.NoError(t, err)

	out := b.String()
	assert.Contains(t, out, "tile type: Vector Protobuf (MVT)")
	assert.Contains(t, out, "max zoom: 2")
	assert.Contains(t, out, "addressed tiles count: 8")
	assert.Contains(t, out, "tile entries count: 4")
	assert.Contains(t, out, "root directory: 3 entries")
	assert.Contains(t, out, "name: sample")
	assert.Contains(t, out, "vector layers: 1")
	assert.Contains(t, out, "tile_id=1 z/x/y=1/0/0 delta=1 run_length=4 length=3 offset=5")
}

func TestShowMissingFile(t *testing.T) {
	var b bytes.Buffer
	err := Show(zaptest.NewLogger(t), &b, filepath.Join(t.TempDir(), "nope.pmtiles"), ShowOptions{})
	assert.Error(t, err)
}

func TestShowTile(t *testing.T) {
	var b bytes.Buffer
	path := writeFixture(t, sampleFixture())
	require.NoError(t, ShowTile(zaptest.NewLogger(t), &b, path, 2, 0, 0))
	assert.Equal(t, "leafA", b.String())

	err := ShowTile(zaptest.NewLogger(t), &b, path, 2, 3, 3)
	assert.ErrorContains(t, err, "not found")
}
