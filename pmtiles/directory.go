package pmtiles

import (
	"fmt"
	"math"
	"sort"
)

// EntryV3 is an entry in a PMTiles spec version 3 directory.
//
// A RunLength of 0 marks a pointer to a leaf directory; Offset and Length
// then address the leaf inside the leaf directories section. Otherwise
// Offset and Length address tile data shared by RunLength consecutive tile ids.
type EntryV3 struct {
	TileID    uint64
	Offset    uint64
	Length    uint32
	RunLength uint32
	Delta     uint64 // tile id delta as stored on the wire
}

func (e EntryV3) String() string {
	z, x, y := IDToZxy(e.TileID)
	return fmt.Sprintf("tile_id=%d z/x/y=%d/%d/%d delta=%d run_length=%d length=%d offset=%d", e.TileID, z, x, y, e.Delta, e.RunLength, e.Length, e.Offset)
}

// IsLeaf reports whether the entry points at a leaf directory.
func (e EntryV3) IsLeaf() bool {
	return e.RunLength == 0
}

// Directory is a list of entries sorted by TileID.
type Directory []EntryV3

// entryAccumulator carries the running state needed to resolve delta tile ids
// and contiguous offsets while folding over the four directory columns.
type entryAccumulator struct {
	index int
	last  EntryV3
}

// next resolves one entry from its raw column values.
// A raw offset of 0 after the first entry means "directly after the previous entry";
// any other raw offset is stored with a +1 bias.
func (acc *entryAccumulator) next(delta uint64, runLength uint64, length uint64, rawOffset uint64) (EntryV3, error) {
	if runLength > math.MaxUint32 || length > math.MaxUint32 {
		return EntryV3{}, fmt.Errorf("%w: entry %d run length %d or length %d exceeds 32 bits", ErrMalformed, acc.index, runLength, length)
	}
	tileID := acc.last.TileID + delta
	if tileID < acc.last.TileID {
		return EntryV3{}, fmt.Errorf("%w: entry %d tile id overflows after %d", ErrMalformed, acc.index, acc.last.TileID)
	}
	e := EntryV3{
		TileID:    tileID,
		RunLength: uint32(runLength),
		Length:    uint32(length),
		Delta:     delta,
	}
	if rawOffset == 0 && acc.index > 0 {
		e.Offset = acc.last.Offset + uint64(acc.last.Length)
		if e.Offset < acc.last.Offset {
			return EntryV3{}, fmt.Errorf("%w: entry %d offset overflows", ErrMalformed, acc.index)
		}
	} else if rawOffset > 0 {
		e.Offset = rawOffset - 1
	}
	acc.index++
	acc.last = e
	return e, nil
}

// DeserializeEntries decodes an uncompressed directory.
func DeserializeEntries(data []byte) (Directory, error) {
	numEntries, n, err := DecodeVarint(data)
	if err != nil {
		return nil, fmt.Errorf("%w: entry count: %w", ErrMalformed, err)
	}
	rest := data[n:]

	// every entry needs at least one byte in each of the four columns
	if numEntries > uint64(len(rest))/4 {
		return nil, fmt.Errorf("%w: %d entries cannot fit in %d bytes", ErrMalformed, numEntries, len(rest))
	}

	columns := [4][]uint64{}
	names := [4]string{"tile ids", "run lengths", "lengths", "offsets"}
	for i := range columns {
		values, consumed, err := readVarints(rest, numEntries)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, names[i], err)
		}
		columns[i] = values
		rest = rest[consumed:]
	}

	entries := make(Directory, numEntries)
	acc := entryAccumulator{}
	for i := range entries {
		if entries[i], err = acc.next(columns[0][i], columns[1][i], columns[2][i], columns[3][i]); err != nil {
			return nil, err
		}
	}
	return entries, nil
}

// DeserializeEntriesCompressed inflates a directory section and decodes it.
func DeserializeEntriesCompressed(data []byte, compression Compression) (Directory, error) {
	raw, err := decompress(data, compression)
	if err != nil {
		return nil, err
	}
	return DeserializeEntries(raw)
}

// Search returns the index of the last entry whose TileID is <= tileID,
// or -1 if every entry is greater, and whether that entry matches exactly.
func (d Directory) Search(tileID uint64) (int, bool) {
	idx := sort.Search(len(d), func(i int) bool {
		return d[i].TileID > tileID
	}) - 1
	return idx, idx >= 0 && d[idx].TileID == tileID
}

// FindTile returns the entry responsible for tileID.
//
// An exact match is returned as-is. Otherwise the nearest preceding entry is
// returned when it is a leaf pointer or when its run covers tileID. Entries
// with RunLength 0 always mean "continue in a leaf directory", whether they
// matched exactly or not.
func (d Directory) FindTile(tileID uint64) (EntryV3, bool) {
	idx, exact := d.Search(tileID)
	if idx < 0 {
		return EntryV3{}, false
	}
	entry := d[idx]
	if exact || entry.RunLength == 0 {
		return entry, true
	}
	if tileID-entry.TileID < uint64(entry.RunLength) {
		return entry, true
	}
	return EntryV3{}, false
}
