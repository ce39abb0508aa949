package pmtiles

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// decompress inflates an internal section (directory or metadata).
// Only gzip and uncompressed sections are understood.
func decompress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case NoCompression:
		return data, nil
	case Gzip:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecompressionFailed, err)
		}
		defer reader.Close()
		result, err := io.ReadAll(reader)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecompressionFailed, err)
		}
		return result, nil
	default:
		return nil, fmt.Errorf("%w: %w %s", ErrDecompressionFailed, ErrUnsupportedCompression, compression)
	}
}
