package pmtiles

import "fmt"

// DecodeVarint decodes an unsigned LEB128 varint from the start of b,
// returning the value and the number of bytes consumed.
func DecodeVarint(b []byte) (uint64, int, error) {
	var value uint64
	var shift uint
	for i, c := range b {
		// the tenth byte may only contribute bit 63
		if shift >= 64 || (shift == 63 && c > 1) {
			return 0, 0, ErrOverflow
		}
		value |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return value, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrTruncated
}

// readVarints decodes count consecutive varints from b.
func readVarints(b []byte, count uint64) ([]uint64, int, error) {
	values := make([]uint64, count)
	consumed := 0
	for i := range values {
		v, n, err := DecodeVarint(b[consumed:])
		if err != nil {
			return nil, consumed, fmt.Errorf("value %d of %d: %w", i, count, err)
		}
		values[i] = v
		consumed += n
	}
	return values, consumed, nil
}
