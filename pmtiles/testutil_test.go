package pmtiles

import (
	"bytes"
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

func serializeHeader(h HeaderV3) []byte {
	b := make([]byte, HeaderV3LenBytes)
	copy(b[0:7], magic)
	b[7] = h.SpecVersion
	binary.LittleEndian.PutUint64(b[8:8+8], h.RootOffset)
	binary.LittleEndian.PutUint64(b[16:16+8], h.RootLength)
	binary.LittleEndian.PutUint64(b[24:24+8], h.MetadataOffset)
	binary.LittleEndian.PutUint64(b[32:32+8], h.MetadataLength)
	binary.LittleEndian.PutUint64(b[40:40+8], h.LeafDirectoryOffset)
	binary.LittleEndian.PutUint64(b[48:48+8], h.LeafDirectoryLength)
	binary.LittleEndian.PutUint64(b[56:56+8], h.TileDataOffset)
	binary.LittleEndian.PutUint64(b[64:64+8], h.TileDataLength)
	binary.LittleEndian.PutUint64(b[72:72+8], h.AddressedTilesCount)
	binary.LittleEndian.PutUint64(b[80:80+8], h.TileEntriesCount)
	binary.LittleEndian.PutUint64(b[88:88+8], h.TileContentsCount)
	if h.Clustered {
		b[96] = 0x1
	}
	b[97] = uint8(h.InternalCompression)
	b[98] = uint8(h.TileCompression)
	b[99] = uint8(h.TileType)
	b[100] = h.MinZoom
	b[101] = h.MaxZoom
	binary.LittleEndian.PutUint32(b[102:102+4], uint32(h.MinLonE7))
	binary.LittleEndian.PutUint32(b[106:106+4], uint32(h.MinLatE7))
	binary.LittleEndian.PutUint32(b[110:110+4], uint32(h.MaxLonE7))
	binary.LittleEndian.PutUint32(b[114:114+4], uint32(h.MaxLatE7))
	b[118] = h.CenterZoom
	binary.LittleEndian.PutUint32(b[119:119+4], uint32(h.CenterLonE7))
	binary.LittleEndian.PutUint32(b[123:123+4], uint32(h.CenterLatE7))
	return b
}

// serializeEntries writes an uncompressed directory, using the contiguous
// offset shorthand wherever an entry directly follows the previous one.
func serializeEntries(entries []EntryV3) []byte {
	b := binary.AppendUvarint(nil, uint64(len(entries)))
	var lastID uint64
	for _, e := range entries {
		b = binary.AppendUvarint(b, e.TileID-lastID)
		lastID = e.TileID
	}
	for _, e := range entries {
		b = binary.AppendUvarint(b, uint64(e.RunLength))
	}
	for _, e := range entries {
		b = binary.AppendUvarint(b, uint64(e.Length))
	}
	for i, e := range entries {
		if i > 0 && e.Offset == entries[i-1].Offset+uint64(entries[i-1].Length) {
			b = binary.AppendUvarint(b, 0)
		} else {
			b = binary.AppendUvarint(b, e.Offset+1)
		}
	}
	return b
}

func gzipBytes(t testing.TB, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func compressFixture(t testing.TB, data []byte, compression Compression) []byte {
	if compression == Gzip {
		return gzipBytes(t, data)
	}
	return data
}

// fixture describes an archive laid out as header, root, metadata, leaves, tile data.
// Leaf pointers in root carry the index into leaves as their Offset; build
// replaces it with the real position. rawLeaves overrides a leaf with literal bytes.
type fixture struct {
	internal  Compression
	tileType  TileType
	metadata  string
	root      []EntryV3
	leaves    [][]EntryV3
	rawLeaves map[int][]byte
	tileData  []byte
	header    func(*HeaderV3)
}

func (f fixture) build(t testing.TB) []byte {
	t.Helper()
	if f.internal == UnknownCompression {
		f.internal = Gzip
	}
	if f.tileType == UnknownTileType {
		f.tileType = Mvt
	}

	var leafSection []byte
	leafRanges := make([]Range, len(f.leaves))
	for i, leaf := range f.leaves {
		raw, ok := f.rawLeaves[i]
		if !ok {
			raw = serializeEntries(leaf)
		}
		data := compressFixture(t, raw, f.internal)
		leafRanges[i] = Range{Offset: uint64(len(leafSection)), Length: uint64(len(data))}
		leafSection = append(leafSection, data...)
	}

	root := make([]EntryV3, len(f.root))
	copy(root, f.root)
	for i, e := range root {
		if e.RunLength == 0 && int(e.Offset) < len(leafRanges) {
			root[i].Offset = leafRanges[e.Offset].Offset
			root[i].Length = uint32(leafRanges[e.Offset].Length)
		}
	}
	rootBytes := compressFixture(t, serializeEntries(root), f.internal)
	var metadataBytes []byte
	if f.metadata != "" {
		metadataBytes = compressFixture(t, []byte(f.metadata), f.internal)
	}

	h := HeaderV3{
		SpecVersion:         3,
		RootOffset:          HeaderV3LenBytes,
		RootLength:          uint64(len(rootBytes)),
		Clustered:           true,
		InternalCompression: f.internal,
		TileCompression:     Gzip,
		TileType:            f.tileType,
		MinLonE7:            -180 * 10000000,
		MinLatE7:            -85 * 10000000,
		MaxLonE7:            180 * 10000000,
		MaxLatE7:            85 * 10000000,
	}
	h.MetadataOffset = h.RootOffset + h.RootLength
	h.MetadataLength = uint64(len(metadataBytes))
	h.LeafDirectoryOffset = h.MetadataOffset + h.MetadataLength
	h.LeafDirectoryLength = uint64(len(leafSection))
	h.TileDataOffset = h.LeafDirectoryOffset + h.LeafDirectoryLength
	h.TileDataLength = uint64(len(f.tileData))
	f.fillCounts(&h)
	if f.header != nil {
		f.header(&h)
	}

	var out []byte
	out = append(out, serializeHeader(h)...)
	out = append(out, rootBytes...)
	out = append(out, metadataBytes...)
	out = append(out, leafSection...)
	out = append(out, f.tileData...)
	return out
}

func (f fixture) fillCounts(h *HeaderV3) {
	offsets := map[uint64]bool{}
	first := true
	count := func(entries []EntryV3) {
		for _, e := range entries {
			if e.RunLength == 0 {
				continue
			}
			h.AddressedTilesCount += uint64(e.RunLength)
			h.TileEntriesCount++
			offsets[e.Offset] = true
			minZ, _, _ := IDToZxy(e.TileID)
			maxZ, _, _ := IDToZxy(e.TileID + uint64(e.RunLength) - 1)
			if first || minZ < h.MinZoom {
				h.MinZoom = minZ
			}
			if first || maxZ > h.MaxZoom {
				h.MaxZoom = maxZ
			}
			first = false
		}
	}
	count(f.root)
	for i, leaf := range f.leaves {
		if _, ok := f.rawLeaves[i]; !ok {
			count(leaf)
		}
	}
	h.TileContentsCount = uint64(len(offsets))
	h.CenterZoom = h.MinZoom
}

// sampleFixture holds tile 0/0/0, a run covering all of zoom 1, and a leaf
// directory with tiles 2/0/0 (id 5) and id 7. The leaf entry for 7 carries a
// run of 2, which lookups do not expand inside leaves.
func sampleFixture() fixture {
	return fixture{
		metadata: `{"name":"sample","vector_layers":[{"id":"water"}],"version":"2"}`,
		root: []EntryV3{
			{TileID: 0, Offset: 0, Length: 5, RunLength: 1},
			{TileID: 1, Offset: 5, Length: 3, RunLength: 4},
			{TileID: 5, Offset: 0, RunLength: 0},
		},
		leaves: [][]EntryV3{{
			{TileID: 5, Offset: 8, Length: 5, RunLength: 1},
			{TileID: 7, Offset: 13, Length: 5, RunLength: 2},
		}},
		tileData: []byte("tile0abcleafAleafB"),
	}
}

func openFixture(t testing.TB, f fixture, opts ...Option) *Archive {
	t.Helper()
	archive, err := Open(context.Background(), NewBytesSource(f.build(t)), opts...)
	require.NoError(t, err)
	return archive
}

func writeFixture(t testing.TB, f fixture) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.pmtiles")
	require.NoError(t, os.WriteFile(path, f.build(t), 0o644))
	return path
}
