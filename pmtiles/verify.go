package pmtiles

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"
	"go.uber.org/zap"
)

// Verify walks every entry of the archive at path and checks it against the header.
// All problems found are returned joined in one error.
func Verify(ctx context.Context, logger *zap.Logger, path string) error {
	start := time.Now()

	archive, err := openArchive(ctx, logger, path)
	if err != nil {
		return err
	}
	defer archive.Close()

	problems := verifyArchive(ctx, archive)
	for _, p := range problems {
		logger.Warn("invalid archive", zap.String("path", path), zap.Error(p))
	}
	logger.Info("completed verify", zap.String("path", path), zap.Duration("elapsed", time.Since(start)), zap.Int("problems", len(problems)))

	if len(problems) > 0 {
		return fmt.Errorf("%s: %w", path, errors.Join(problems...))
	}
	return nil
}

func verifyArchive(ctx context.Context, archive *Archive) []error {
	header := archive.Header()
	var problems []error
	invalid := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	var minTileID uint64 = math.MaxUint64
	var maxTileID uint64
	var nextTileID uint64
	var addressedTiles uint64
	var tileEntries uint64
	var currentOffset uint64
	offsets := roaring64.New()

	bar := currentReporter().Start(int64(header.TileEntriesCount), "Verifying entries")
	err := archive.VisitEntries(ctx, func(e EntryV3) error {
		bar.Add(1)
		addressedTiles += uint64(e.RunLength)
		tileEntries++

		lastID := e.TileID + uint64(e.RunLength) - 1
		if e.TileID < nextTileID {
			invalid("entry %v overlaps the previous entry", e)
		}
		nextTileID = lastID + 1
		minTileID = min(minTileID, e.TileID)
		maxTileID = max(maxTileID, lastID)

		if !ValidID(lastID) {
			invalid("entry %v addresses tiles beyond zoom %d", e, MaxZoom)
		}
		if err := checkRange(e.Offset, uint64(e.Length), header.TileDataLength); err != nil {
			invalid("entry %v outside of tile data section: %w", e, err)
		}

		if header.Clustered && !offsets.Contains(e.Offset) {
			if e.Offset != currentOffset {
				invalid("out-of-order entry %v in clustered archive", e)
			}
			currentOffset = e.Offset + uint64(e.Length)
		}
		offsets.Add(e.Offset)
		return nil
	})
	bar.Close()
	if err != nil {
		return append(problems, err)
	}

	if addressedTiles != header.AddressedTilesCount {
		invalid("header AddressedTilesCount=%d but %d tiles addressed", header.AddressedTilesCount, addressedTiles)
	}
	if tileEntries != header.TileEntriesCount {
		invalid("header TileEntriesCount=%d but %d tile entries", header.TileEntriesCount, tileEntries)
	}
	if offsets.GetCardinality() != header.TileContentsCount {
		invalid("header TileContentsCount=%d but %d tile contents", header.TileContentsCount, offsets.GetCardinality())
	}

	if tileEntries > 0 {
		if z, _, _ := IDToZxy(minTileID); z != header.MinZoom {
			invalid("header MinZoom=%d does not match min tile z %d", header.MinZoom, z)
		}
		if z, _, _ := IDToZxy(maxTileID); z != header.MaxZoom {
			invalid("header MaxZoom=%d does not match max tile z %d", header.MaxZoom, z)
		}
	}
	if !(header.CenterZoom >= header.MinZoom && header.CenterZoom <= header.MaxZoom) {
		invalid("header CenterZoom=%d not within MinZoom/MaxZoom", header.CenterZoom)
	}
	return problems
}
