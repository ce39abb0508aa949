package pmtiles

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// ShowOptions selects what Show prints.
type ShowOptions struct {
	HeaderJSON bool // print the header as JSON instead of the summary
	Metadata   bool // print the metadata JSON instead of the summary
	Entries    bool // print every root directory entry after the summary
}

func tileTypeName(t TileType) string {
	switch t {
	case Mvt:
		return "Vector Protobuf (MVT)"
	case Png:
		return "Raster PNG"
	case Jpeg:
		return "Raster Jpeg"
	case Webp:
		return "Raster WebP"
	case Avif:
		return "Raster AVIF"
	default:
		return "Unknown"
	}
}

func headerToStringifiedJSON(header HeaderV3) ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"SpecVersion":         header.SpecVersion,
		"RootOffset":          header.RootOffset,
		"RootLength":          header.RootLength,
		"MetadataOffset":      header.MetadataOffset,
		"MetadataLength":      header.MetadataLength,
		"LeafDirectoryOffset": header.LeafDirectoryOffset,
		"LeafDirectoryLength": header.LeafDirectoryLength,
		"TileDataOffset":      header.TileDataOffset,
		"TileDataLength":      header.TileDataLength,
		"AddressedTilesCount": header.AddressedTilesCount,
		"TileEntriesCount":    header.TileEntriesCount,
		"TileContentsCount":   header.TileContentsCount,
		"Clustered":           header.Clustered,
		"InternalCompression": header.InternalCompression.String(),
		"TileCompression":     header.TileCompression.String(),
		"TileType":            header.TileType.String(),
		"MinZoom":             header.MinZoom,
		"MaxZoom":             header.MaxZoom,
		"MinLon":              header.MinLon(),
		"MinLat":              header.MinLat(),
		"MaxLon":              header.MaxLon(),
		"MaxLat":              header.MaxLat(),
		"CenterZoom":          header.CenterZoom,
		"CenterLon":           header.CenterLon(),
		"CenterLat":           header.CenterLat(),
	})
}

func openArchive(ctx context.Context, logger *zap.Logger, path string) (*Archive, error) {
	src, err := OpenSource(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	archive, err := Open(ctx, src, WithLogger(logger))
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return archive, nil
}

// Show writes a human readable summary of the archive at path to out.
func Show(logger *zap.Logger, out io.Writer, path string, opts ShowOptions) error {
	ctx := context.Background()
	archive, err := openArchive(ctx, logger, path)
	if err != nil {
		return err
	}
	defer archive.Close()

	header := archive.Header()

	if opts.HeaderJSON {
		s, err := headerToStringifiedJSON(header)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(s))
		return nil
	}
	if opts.Metadata {
		fmt.Fprintln(out, archive.Metadata().JSON())
		return nil
	}

	fmt.Fprintf(out, "pmtiles spec version: %d\n", header.SpecVersion)
	fmt.Fprintf(out, "total size: %s\n", humanize.Bytes(archive.src.Size()))
	fmt.Fprintf(out, "tile type: %s\n", tileTypeName(header.TileType))
	fmt.Fprintf(out, "bounds: (long: %f, lat: %f) (long: %f, lat: %f)\n", header.MinLon(), header.MinLat(), header.MaxLon(), header.MaxLat())
	fmt.Fprintf(out, "min zoom: %d\n", header.MinZoom)
	fmt.Fprintf(out, "max zoom: %d\n", header.MaxZoom)
	fmt.Fprintf(out, "center: (long: %f, lat: %f)\n", header.CenterLon(), header.CenterLat())
	fmt.Fprintf(out, "center zoom: %d\n", header.CenterZoom)
	fmt.Fprintf(out, "addressed tiles count: %s\n", humanize.Comma(int64(header.AddressedTilesCount)))
	fmt.Fprintf(out, "tile entries count: %s\n", humanize.Comma(int64(header.TileEntriesCount)))
	fmt.Fprintf(out, "tile contents count: %s\n", humanize.Comma(int64(header.TileContentsCount)))
	fmt.Fprintf(out, "clustered: %t\n", header.Clustered)
	fmt.Fprintf(out, "internal compression: %s\n", header.InternalCompression)
	fmt.Fprintf(out, "tile compression: %s\n", header.TileCompression)
	fmt.Fprintf(out, "root directory: %d entries, %s\n", len(archive.RootDirectory()), humanize.Bytes(header.RootLength))
	fmt.Fprintf(out, "leaf directories: %s\n", humanize.Bytes(header.LeafDirectoryLength))
	fmt.Fprintf(out, "tile data: %s\n", humanize.Bytes(header.TileDataLength))

	if metadata, err := archive.Metadata().Map(); err == nil {
		for _, k := range []string{"name", "description", "attribution", "version", "generator"} {
			if v, ok := metadata[k]; ok {
				fmt.Fprintf(out, "%s: %v\n", k, v)
			}
		}
		if layers, ok := metadata["vector_layers"].([]interface{}); ok {
			fmt.Fprintf(out, "vector layers: %d\n", len(layers))
		}
	} else {
		logger.Debug("metadata is not a JSON object", zap.Error(err))
	}

	if opts.Entries {
		for _, entry := range archive.RootDirectory() {
			fmt.Fprintln(out, entry)
		}
	}
	return nil
}

// ShowTile writes the stored bytes of one tile to out.
func ShowTile(logger *zap.Logger, out io.Writer, path string, z uint8, x uint32, y uint32) error {
	ctx := context.Background()
	archive, err := openArchive(ctx, logger, path)
	if err != nil {
		return err
	}
	defer archive.Close()

	data, ok, err := archive.Get(ctx, z, x, y)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("tile %d/%d/%d not found in %s", z, x, y, path)
	}
	_, err = out.Write(data)
	return err
}
