package pmtiles

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// maxVisitDepth bounds leaf nesting during full traversals, so a leaf that
// points back at itself cannot recurse forever.
const maxVisitDepth = 16

// Range is an absolute byte range inside an archive.
type Range struct {
	Offset uint64
	Length uint64
}

type options struct {
	logger            *zap.Logger
	metrics           *Metrics
	maxLeafDepth      int
	maxDirectoryBytes uint64
}

// Option configures an Archive.
type Option func(*options)

// WithLogger sets the logger for lookup and decode events. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics records lookups on m.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithMaxLeafDepth sets how many leaf directories a lookup may descend through.
// The default of 1 follows one root-to-leaf hop; deeper pointers resolve to "not found".
func WithMaxLeafDepth(depth int) Option {
	return func(o *options) {
		o.maxLeafDepth = depth
	}
}

// WithMaxDirectoryBytes rejects directory and metadata sections whose stored
// length exceeds n bytes. 0 means no limit.
func WithMaxDirectoryBytes(n uint64) Option {
	return func(o *options) {
		o.maxDirectoryBytes = n
	}
}

// Archive is an opened, read-only PMTiles archive.
// It is immutable after Open and safe for concurrent use.
type Archive struct {
	src      Source
	header   HeaderV3
	metadata Metadata
	root     Directory

	logger            *zap.Logger
	metrics           *Metrics
	maxLeafDepth      int
	maxDirectoryBytes uint64
}

// Open reads and validates the header, root directory and metadata of src.
// On success the archive owns src; on error the caller must close it.
func Open(ctx context.Context, src Source, opts ...Option) (*Archive, error) {
	o := options{
		logger:       zap.NewNop(),
		maxLeafDepth: 1,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	a := &Archive{
		src:               src,
		logger:            o.logger,
		metrics:           o.metrics,
		maxLeafDepth:      o.maxLeafDepth,
		maxDirectoryBytes: o.maxDirectoryBytes,
	}

	headerLen := min(uint64(HeaderV3LenBytes), src.Size())
	headerBytes, err := a.read(ctx, "header", 0, headerLen)
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	header, err := DeserializeHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	if err := header.ValidateBounds(src.Size()); err != nil {
		return nil, err
	}
	a.header = header

	if err := a.checkSectionSize("root directory", header.RootLength); err != nil {
		return nil, err
	}
	rootBytes, err := a.read(ctx, "root", header.RootOffset, header.RootLength)
	if err != nil {
		return nil, fmt.Errorf("reading root directory: %w", err)
	}
	root, err := DeserializeEntriesCompressed(rootBytes, header.InternalCompression)
	if err != nil {
		return nil, fmt.Errorf("root directory: %w", err)
	}
	a.root = root

	if err := a.checkSectionSize("metadata", header.MetadataLength); err != nil {
		return nil, err
	}
	metadataBytes, err := a.read(ctx, "metadata", header.MetadataOffset, header.MetadataLength)
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	metadata, err := DeserializeMetadata(metadataBytes, header.InternalCompression, header.TileType)
	if err != nil {
		return nil, err
	}
	a.metadata = metadata

	a.logger.Debug("opened archive",
		zap.Int("root_entries", len(root)),
		zap.Uint64("addressed_tiles", header.AddressedTilesCount),
		zap.Stringer("tile_type", header.TileType),
		zap.Stringer("internal_compression", header.InternalCompression))
	return a, nil
}

func (a *Archive) read(ctx context.Context, kind string, offset, length uint64) ([]byte, error) {
	tracker := a.metrics.startSourceRead(kind)
	b, err := a.src.ReadRange(ctx, offset, length)
	tracker.finish(ctx, err)
	return b, err
}

func (a *Archive) checkSectionSize(name string, length uint64) error {
	if a.maxDirectoryBytes > 0 && length > a.maxDirectoryBytes {
		return fmt.Errorf("%s is %d bytes, limit is %d: %w", name, length, a.maxDirectoryBytes, ErrOutOfBounds)
	}
	return nil
}

func (a *Archive) Header() HeaderV3 {
	return a.header
}

func (a *Archive) Metadata() Metadata {
	return a.metadata
}

// RootDirectory returns the decoded root directory. Callers must not modify it.
func (a *Archive) RootDirectory() Directory {
	return a.root
}

// Close releases the underlying source.
func (a *Archive) Close() error {
	return a.src.Close()
}

// ReadLeafDirectory reads and decodes the leaf directory an entry points at.
func (a *Archive) ReadLeafDirectory(ctx context.Context, entry EntryV3) (Directory, error) {
	if !entry.IsLeaf() {
		return nil, fmt.Errorf("entry for tile %d is not a leaf pointer: %w", entry.TileID, ErrMalformed)
	}
	if err := checkRange(entry.Offset, uint64(entry.Length), a.header.LeafDirectoryLength); err != nil {
		return nil, fmt.Errorf("leaf directory for tile %d: %w", entry.TileID, err)
	}
	if err := a.checkSectionSize("leaf directory", uint64(entry.Length)); err != nil {
		return nil, err
	}
	data, err := a.read(ctx, "leaf", a.header.LeafDirectoryOffset+entry.Offset, uint64(entry.Length))
	if err != nil {
		return nil, fmt.Errorf("reading leaf directory: %w", err)
	}
	leaf, err := DeserializeEntriesCompressed(data, a.header.InternalCompression)
	if err != nil {
		return nil, fmt.Errorf("leaf directory at %d: %w", entry.Offset, err)
	}
	a.metrics.leafDecoded()
	a.logger.Debug("decoded leaf directory",
		zap.Uint64("offset", entry.Offset),
		zap.Uint32("length", entry.Length),
		zap.Int("entries", len(leaf)))
	return leaf, nil
}

// Locate returns the absolute byte range of tile (z,x,y).
// A tile absent from the archive is reported with ok == false and a nil error.
func (a *Archive) Locate(ctx context.Context, z uint8, x uint32, y uint32) (Range, bool, error) {
	start := time.Now()
	if err := ValidZxy(z, x, y); err != nil {
		a.metrics.lookup(resultError, start)
		return Range{}, false, err
	}
	r, result, err := a.locateID(ctx, ZxyToID(z, x, y))
	a.metrics.lookup(result, start)
	if err != nil {
		return Range{}, false, err
	}
	return r, result != resultNotFound, nil
}

// LocateID is Locate for a tile id.
func (a *Archive) LocateID(ctx context.Context, tileID uint64) (Range, bool, error) {
	start := time.Now()
	r, result, err := a.locateID(ctx, tileID)
	a.metrics.lookup(result, start)
	if err != nil {
		return Range{}, false, err
	}
	return r, result != resultNotFound, nil
}

func (a *Archive) locateID(ctx context.Context, tileID uint64) (Range, string, error) {
	dir := a.root
	for depth := 0; ; depth++ {
		var entry EntryV3
		if depth == 0 {
			var ok bool
			if entry, ok = dir.FindTile(tileID); !ok {
				return Range{}, resultNotFound, nil
			}
		} else {
			// leaf directories are searched for the exact id only; runs are not expanded
			idx, exact := dir.Search(tileID)
			if !exact {
				return Range{}, resultNotFound, nil
			}
			entry = dir[idx]
		}
		if !entry.IsLeaf() {
			if err := checkRange(entry.Offset, uint64(entry.Length), a.header.TileDataLength); err != nil {
				return Range{}, resultError, fmt.Errorf("tile %d: %w", tileID, err)
			}
			result := resultTile
			if depth > 0 {
				result = resultLeafTile
			}
			return Range{Offset: a.header.TileDataOffset + entry.Offset, Length: uint64(entry.Length)}, result, nil
		}
		if depth >= a.maxLeafDepth {
			a.logger.Debug("leaf directory nesting exceeds limit",
				zap.Uint64("tile_id", tileID),
				zap.Int("max_leaf_depth", a.maxLeafDepth))
			return Range{}, resultNotFound, nil
		}
		leaf, err := a.ReadLeafDirectory(ctx, entry)
		if err != nil {
			return Range{}, resultError, err
		}
		dir = leaf
	}
}

// Get returns the stored bytes of tile (z,x,y), still compressed with the
// header's TileCompression.
func (a *Archive) Get(ctx context.Context, z uint8, x uint32, y uint32) ([]byte, bool, error) {
	r, ok, err := a.Locate(ctx, z, x, y)
	if err != nil || !ok {
		return nil, ok, err
	}
	data, err := a.read(ctx, "tile", r.Offset, r.Length)
	if err != nil {
		return nil, false, fmt.Errorf("reading tile %d/%d/%d: %w", z, x, y, err)
	}
	return data, true, nil
}

// VisitEntries calls fn for every tile entry in the archive in tile id order,
// reading leaf directories as they are reached. It is not limited by
// WithMaxLeafDepth.
func (a *Archive) VisitEntries(ctx context.Context, fn func(EntryV3) error) error {
	return a.visit(ctx, a.root, 0, fn)
}

func (a *Archive) visit(ctx context.Context, dir Directory, depth int, fn func(EntryV3) error) error {
	if depth > maxVisitDepth {
		return fmt.Errorf("leaf directories nested deeper than %d: %w", maxVisitDepth, ErrMalformed)
	}
	for _, entry := range dir {
		if !entry.IsLeaf() {
			if err := fn(entry); err != nil {
				return err
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		leaf, err := a.ReadLeafDirectory(ctx, entry)
		if err != nil {
			return err
		}
		if err := a.visit(ctx, leaf, depth+1, fn); err != nil {
			return err
		}
	}
	return nil
}
