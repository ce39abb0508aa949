package pmtiles

import (
	"encoding/binary"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeVarint(t *testing.T) {
	value, n, err := DecodeVarint([]byte{0x96, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, uint64(150), value)
	assert.Equal(t, 2, n)

	value, n, err = DecodeVarint([]byte{0x00})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), value)
	assert.Equal(t, 1, n)

	value, n, err = DecodeVarint([]byte{0x7f, 0xff})
	require.NoError(t, err)
	assert.Equal(t, uint64(127), value)
	assert.Equal(t, 1, n)
}

func TestDecodeVarintTruncated(t *testing.T) {
	_, _, err := DecodeVarint(nil)
	assert.ErrorIs(t, err, ErrTruncated)
	_, _, err = DecodeVarint([]byte{0x80})
	assert.ErrorIs(t, err, ErrTruncated)
	_, _, err = DecodeVarint([]byte{0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecodeVarintOverflow(t *testing.T) {
	b := make([]byte, 11)
	for i := range b {
		b[i] = 0xff
	}
	_, _, err := DecodeVarint(b)
	assert.ErrorIs(t, err, ErrOverflow)

	// ten bytes whose last one carries bits above 63
	b = []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f}
	_, _, err = DecodeVarint(b)
	assert.ErrorIs(t, err, ErrOverflow)
	_, n := binary.Uvarint(b)
	assert.Less(t, n, 0)

	b[9] = 0x02
	_, _, err = DecodeVarint(b)
	assert.ErrorIs(t, err, ErrOverflow)

	// a continuation bit on the tenth byte never fits either
	b[9] = 0x81
	_, _, err = DecodeVarint(append(b, 0x00))
	assert.ErrorIs(t, err, ErrOverflow)
}

func TestDecodeVarintMax(t *testing.T) {
	b := binary.AppendUvarint(nil, math.MaxUint64)
	require.Len(t, b, 10)
	value, n, err := DecodeVarint(b)
	require.NoError(t, err)
	assert.Equal(t, uint64(math.MaxUint64), value)
	assert.Equal(t, 10, n)
}

func TestVarintRoundtrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 255, 300, 16383, 16384, 1 << 21, 1<<32 - 1, 1 << 32, 1<<56 + 3, 1 << 63, math.MaxUint64}
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		values = append(values, r.Uint64()>>uint(r.Intn(64)))
	}
	for _, v := range values {
		b := binary.AppendUvarint(nil, v)
		decoded, n, err := DecodeVarint(b)
		require.NoError(t, err)
		assert.Equal(t, v, decoded)
		assert.Equal(t, len(b), n)
	}
}

func TestReadVarints(t *testing.T) {
	var b []byte
	for _, v := range []uint64{1, 300, 0, 70000} {
		b = binary.AppendUvarint(b, v)
	}
	b = append(b, 0xaa)

	values, consumed, err := readVarints(b, 4)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 300, 0, 70000}, values)
	assert.Equal(t, len(b)-1, consumed)

	_, _, err = readVarints(b[:3], 4)
	assert.ErrorIs(t, err, ErrTruncated)
}
