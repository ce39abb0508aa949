package pmtiles

import (
	"encoding/binary"
	"fmt"

	"github.com/paulmach/orb"
)

// Compression is the compression algorithm applied to individual tiles (or none)
type Compression uint8

const (
	UnknownCompression Compression = 0
	NoCompression      Compression = 1
	Gzip               Compression = 2
	Brotli             Compression = 3
	Zstd               Compression = 4
)

func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case Gzip:
		return "gzip"
	case Brotli:
		return "br"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// TileType is the format of individual tile contents in the archive.
type TileType uint8

const (
	UnknownTileType TileType = 0
	Mvt             TileType = 1
	Png             TileType = 2
	Jpeg            TileType = 3
	Webp            TileType = 4
	Avif            TileType = 5
)

func (t TileType) String() string {
	switch t {
	case Mvt:
		return "mvt"
	case Png:
		return "png"
	case Jpeg:
		return "jpg"
	case Webp:
		return "webp"
	case Avif:
		return "avif"
	default:
		return ""
	}
}

// HeaderV3LenBytes is the fixed-size binary header size.
const HeaderV3LenBytes = 127

const magic = "PMTiles"

// HeaderV3 is a binary header for PMTiles specification version 3.
type HeaderV3 struct {
	SpecVersion         uint8
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	MinLonE7            int32
	MinLatE7            int32
	MaxLonE7            int32
	MaxLatE7            int32
	CenterZoom          uint8
	CenterLonE7         int32
	CenterLatE7         int32
}

const e7 = 10000000.0

func (h HeaderV3) MinLon() float64    { return float64(h.MinLonE7) / e7 }
func (h HeaderV3) MinLat() float64    { return float64(h.MinLatE7) / e7 }
func (h HeaderV3) MaxLon() float64    { return float64(h.MaxLonE7) / e7 }
func (h HeaderV3) MaxLat() float64    { return float64(h.MaxLatE7) / e7 }
func (h HeaderV3) CenterLon() float64 { return float64(h.CenterLonE7) / e7 }
func (h HeaderV3) CenterLat() float64 { return float64(h.CenterLatE7) / e7 }

// Bounds is the geographic extent of the archive in degrees.
func (h HeaderV3) Bounds() orb.Bound {
	return orb.Bound{
		Min: orb.Point{h.MinLon(), h.MinLat()},
		Max: orb.Point{h.MaxLon(), h.MaxLat()},
	}
}

func (h HeaderV3) Center() orb.Point {
	return orb.Point{h.CenterLon(), h.CenterLat()}
}

func headerContentType(header HeaderV3) (string, bool) {
	switch header.TileType {
	case Mvt:
		return "application/x-protobuf", true
	case Png:
		return "image/png", true
	case Jpeg:
		return "image/jpeg", true
	case Webp:
		return "image/webp", true
	case Avif:
		return "image/avif", true
	default:
		return "", false
	}
}

func headerExt(header HeaderV3) string {
	if ext := header.TileType.String(); ext != "" {
		return "." + ext
	}
	return ""
}

func headerContentEncoding(compression Compression) (string, bool) {
	switch compression {
	case Gzip:
		return "gzip", true
	case Brotli:
		return "br", true
	case Zstd:
		return "zstd", true
	default:
		return "", false
	}
}

// DeserializeHeader decodes the fixed 127-byte prologue of an archive.
func DeserializeHeader(d []byte) (HeaderV3, error) {
	h := HeaderV3{}
	if len(d) < HeaderV3LenBytes {
		return h, fmt.Errorf("header is %d bytes, need %d: %w", len(d), HeaderV3LenBytes, ErrTruncated)
	}
	if string(d[0:7]) != magic {
		return h, ErrInvalidMagic
	}

	specVersion := d[7]
	if specVersion > uint8(3) {
		return h, fmt.Errorf("archive is spec version %d, but this program only supports version 3: %w", specVersion, ErrUnsupportedVersion)
	}

	internalCompression, err := parseCompression(d[97])
	if err != nil {
		return h, fmt.Errorf("internal compression: %w", err)
	}
	tileCompression, err := parseCompression(d[98])
	if err != nil {
		return h, fmt.Errorf("tile compression: %w", err)
	}
	tileType, err := parseTileType(d[99])
	if err != nil {
		return h, err
	}

	h.SpecVersion = specVersion
	h.RootOffset = binary.LittleEndian.Uint64(d[8 : 8+8])
	h.RootLength = binary.LittleEndian.Uint64(d[16 : 16+8])
	h.MetadataOffset = binary.LittleEndian.Uint64(d[24 : 24+8])
	h.MetadataLength = binary.LittleEndian.Uint64(d[32 : 32+8])
	h.LeafDirectoryOffset = binary.LittleEndian.Uint64(d[40 : 40+8])
	h.LeafDirectoryLength = binary.LittleEndian.Uint64(d[48 : 48+8])
	h.TileDataOffset = binary.LittleEndian.Uint64(d[56 : 56+8])
	h.TileDataLength = binary.LittleEndian.Uint64(d[64 : 64+8])
	h.AddressedTilesCount = binary.LittleEndian.Uint64(d[72 : 72+8])
	h.TileEntriesCount = binary.LittleEndian.Uint64(d[80 : 80+8])
	h.TileContentsCount = binary.LittleEndian.Uint64(d[88 : 88+8])
	h.Clustered = (d[96] == 0x1)
	h.InternalCompression = internalCompression
	h.TileCompression = tileCompression
	h.TileType = tileType
	h.MinZoom = d[100]
	h.MaxZoom = d[101]
	h.MinLonE7 = int32(binary.LittleEndian.Uint32(d[102 : 102+4]))
	h.MinLatE7 = int32(binary.LittleEndian.Uint32(d[106 : 106+4]))
	h.MaxLonE7 = int32(binary.LittleEndian.Uint32(d[110 : 110+4]))
	h.MaxLatE7 = int32(binary.LittleEndian.Uint32(d[114 : 114+4]))
	h.CenterZoom = d[118]
	h.CenterLonE7 = int32(binary.LittleEndian.Uint32(d[119 : 119+4]))
	h.CenterLatE7 = int32(binary.LittleEndian.Uint32(d[123 : 123+4]))

	return h, nil
}

func parseCompression(b byte) (Compression, error) {
	if b > uint8(Zstd) {
		return UnknownCompression, fmt.Errorf("compression %d: %w", b, ErrInvalidEnum)
	}
	return Compression(b), nil
}

func parseTileType(b byte) (TileType, error) {
	if b > uint8(Avif) {
		return UnknownTileType, fmt.Errorf("tile type %d: %w", b, ErrInvalidEnum)
	}
	return TileType(b), nil
}

// section is a named byte range inside the archive.
type section struct {
	name   string
	offset uint64
	length uint64
}

func (h HeaderV3) sections() []section {
	return []section{
		{"root directory", h.RootOffset, h.RootLength},
		{"metadata", h.MetadataOffset, h.MetadataLength},
		{"leaf directories", h.LeafDirectoryOffset, h.LeafDirectoryLength},
		{"tile data", h.TileDataOffset, h.TileDataLength},
	}
}

// checkRange fails unless [offset, offset+length) lies inside [0, size).
func checkRange(offset, length, size uint64) error {
	if offset > size || length > size-offset {
		return fmt.Errorf("range %d+%d exceeds %d bytes: %w", offset, length, size, ErrOutOfBounds)
	}
	return nil
}

// ValidateBounds checks that every section named by the header fits in an archive of size bytes.
func (h HeaderV3) ValidateBounds(size uint64) error {
	for _, s := range h.sections() {
		if err := checkRange(s.offset, s.length, size); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}
