package pmtiles

import (
	"context"
	"fmt"
	"io"
	"strings"

	"golang.org/x/exp/mmap"
)

// Source provides random access to the bytes of one archive.
// Implementations must allow concurrent calls to ReadRange.
type Source interface {
	ReadRange(ctx context.Context, offset, length uint64) ([]byte, error)
	Size() uint64
	Close() error
}

type bytesSource struct {
	data []byte
}

// NewBytesSource serves an archive held in memory. Returned ranges alias data.
func NewBytesSource(data []byte) Source {
	return bytesSource{data: data}
}

func (s bytesSource) ReadRange(_ context.Context, offset, length uint64) ([]byte, error) {
	if err := checkRange(offset, length, s.Size()); err != nil {
		return nil, err
	}
	end := offset + length
	return s.data[offset:end:end], nil
}

func (s bytesSource) Size() uint64 {
	return uint64(len(s.data))
}

func (s bytesSource) Close() error {
	return nil
}

type mmapSource struct {
	reader *mmap.ReaderAt
}

// OpenMmapSource memory-maps the file at path.
func OpenMmapSource(path string) (Source, error) {
	reader, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	return &mmapSource{reader: reader}, nil
}

func (s *mmapSource) ReadRange(_ context.Context, offset, length uint64) ([]byte, error) {
	if err := checkRange(offset, length, s.Size()); err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	n, err := s.reader.ReadAt(buf, int64(offset))
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return nil, err
	}
	return buf, nil
}

func (s *mmapSource) Size() uint64 {
	return uint64(s.reader.Len())
}

func (s *mmapSource) Close() error {
	return s.reader.Close()
}

type bucketSource struct {
	bucket Bucket
	key    string
	size   uint64
}

// NewBucketSource reads the archive stored under key in bucket.
// The source takes ownership of the bucket and closes it on Close.
func NewBucketSource(ctx context.Context, bucket Bucket, key string) (Source, error) {
	size, err := bucket.Size(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	return &bucketSource{bucket: bucket, key: key, size: uint64(size)}, nil
}

func (s *bucketSource) ReadRange(ctx context.Context, offset, length uint64) ([]byte, error) {
	if err := checkRange(offset, length, s.size); err != nil {
		return nil, err
	}
	if length == 0 {
		return []byte{}, nil
	}
	r, err := s.bucket.NewRangeReader(ctx, s.key, int64(offset), int64(length))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read %d+%d: %w", offset, length, err)
	}
	return buf, nil
}

func (s *bucketSource) Size() uint64 {
	return s.size
}

func (s *bucketSource) Close() error {
	return s.bucket.Close()
}

// OpenSource opens location as a byte source. Plain paths are memory-mapped;
// URLs such as file:///data/world.pmtiles go through OpenBucket.
func OpenSource(ctx context.Context, location string) (Source, error) {
	if !strings.Contains(location, "://") {
		return OpenMmapSource(location)
	}
	bucketURL, key, err := NormalizeBucketKey("", "", location)
	if err != nil {
		return nil, err
	}
	bucket, err := OpenBucket(ctx, bucketURL, "")
	if err != nil {
		return nil, err
	}
	src, err := NewBucketSource(ctx, bucket, key)
	if err != nil {
		bucket.Close()
		return nil, err
	}
	return src, nil
}
