package pmtiles

import "fmt"

// MaxZoom is the deepest zoom level whose tile ids fit in 64 bits.
const MaxZoom = 31

func rotate(n uint64, x *uint64, y *uint64, rx uint64, ry uint64) {
	if ry == 0 {
		if rx == 1 {
			*x = n - 1 - *x
			*y = n - 1 - *y
		}
		*x, *y = *y, *x
	}
}

func tOnLevel(z uint8, pos uint64) (uint8, uint32, uint32) {
	var n uint64 = 1 << z
	rx, ry, t := pos, pos, pos
	var tx uint64
	var ty uint64
	var s uint64
	for s = 1; s < n; s *= 2 {
		rx = 1 & (t / 2)
		ry = 1 & (t ^ rx)
		rotate(s, &tx, &ty, rx, ry)
		tx += s * rx
		ty += s * ry
		t /= 4
	}
	return z, uint32(tx), uint32(ty)
}

// levelStart is the number of tiles in all zoom levels above z.
func levelStart(z uint8) uint64 {
	return ((uint64(1) << (2 * uint64(z))) - 1) / 3
}

// ZoomRange returns the half-open range of tile ids used by zoom level z.
func ZoomRange(z uint8) (uint64, uint64) {
	return levelStart(z), levelStart(z + 1)
}

// ValidZxy reports whether (z,x,y) addresses a tile inside the zoom pyramid.
func ValidZxy(z uint8, x uint32, y uint32) error {
	if z > MaxZoom {
		return fmt.Errorf("zoom %d exceeds %d: %w", z, MaxZoom, ErrOutOfBounds)
	}
	n := uint64(1) << z
	if uint64(x) >= n || uint64(y) >= n {
		return fmt.Errorf("tile %d/%d/%d outside zoom grid: %w", z, x, y, ErrOutOfBounds)
	}
	return nil
}

// ZxyToID converts (Z,X,Y) tile coordinates to a Hilbert TileID.
func ZxyToID(z uint8, x uint32, y uint32) uint64 {
	acc := levelStart(z)
	var n uint64 = 1 << z
	var rx uint64
	var ry uint64
	var d uint64
	tx := uint64(x)
	ty := uint64(y)
	for s := n / 2; s > 0; s /= 2 {
		if tx&s > 0 {
			rx = 1
		} else {
			rx = 0
		}
		if ty&s > 0 {
			ry = 1
		} else {
			ry = 0
		}
		d += s * s * ((3 * rx) ^ ry)
		rotate(s, &tx, &ty, rx, ry)
	}
	return acc + d
}

// ValidID reports whether i belongs to a zoom level no deeper than MaxZoom.
func ValidID(i uint64) bool {
	return i < levelStart(MaxZoom+1)
}

// IDToZxy converts a Hilbert TileID to (Z,X,Y) tile coordinates.
// Ids past MaxZoom have no coordinates and decode to (MaxZoom+1, 0, 0).
func IDToZxy(i uint64) (uint8, uint32, uint32) {
	var acc uint64
	var z uint8
	for ; z <= MaxZoom; z++ {
		var numTiles uint64
		numTiles = (1 << z) * (1 << z)
		if acc+numTiles > i {
			return tOnLevel(z, i-acc)
		}
		acc += numTiles
	}
	return MaxZoom + 1, 0, 0
}
