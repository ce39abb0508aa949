package pmtiles

import "errors"

// Errors returned while decoding an archive. They are wrapped with context,
// so compare with errors.Is.
var (
	// ErrTruncated is returned when a fixed-size field or varint runs past the end of the input.
	ErrTruncated = errors.New("truncated input")

	// ErrOverflow is returned when a varint does not terminate within 64 bits.
	ErrOverflow = errors.New("varint overflows 64 bits")

	// ErrInvalidMagic is returned when the archive does not start with "PMTiles".
	ErrInvalidMagic = errors.New("magic number not detected, confirm this is a PMTiles archive")

	// ErrUnsupportedVersion is returned for spec versions newer than 3.
	ErrUnsupportedVersion = errors.New("unsupported spec version")

	// ErrInvalidEnum is returned for an unrecognized compression or tile type byte.
	ErrInvalidEnum = errors.New("invalid enum value")

	// ErrMalformed is returned when a directory cannot be decoded.
	ErrMalformed = errors.New("malformed directory")

	// ErrDecompressionFailed is returned when a directory or metadata section cannot be inflated.
	ErrDecompressionFailed = errors.New("decompression failed")

	// ErrUnsupportedCompression is returned for internal compressions other than none and gzip.
	ErrUnsupportedCompression = errors.New("unsupported compression")

	// ErrUtf8Invalid is returned when the metadata bytes are not valid UTF-8.
	ErrUtf8Invalid = errors.New("metadata is not valid UTF-8")

	// ErrJSONInvalid is returned when the metadata does not parse as a JSON object.
	ErrJSONInvalid = errors.New("metadata is not a valid JSON object")

	// ErrOutOfBounds is returned when an offset and length do not fit inside the archive,
	// or when tile coordinates lie outside their zoom level.
	ErrOutOfBounds = errors.New("out of bounds")
)
