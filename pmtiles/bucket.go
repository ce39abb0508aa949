package pmtiles

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gocloud.dev/blob"
)

// ErrRemoteBucket is returned for bucket URLs that would need network range requests.
var ErrRemoteBucket = errors.New("remote buckets are not supported")

// Bucket is an abstration over a gocloud bucket or a directory on disk.
type Bucket interface {
	Close() error
	NewRangeReader(ctx context.Context, key string, offset int64, length int64) (io.ReadCloser, error)
	Size(ctx context.Context, key string) (int64, error)
}

func uintToBytes(n uint64) []byte {
	bs := make([]byte, 8)
	binary.LittleEndian.PutUint64(bs, n)
	return bs
}

func hasherToEtag(hasher *xxhash.Digest) string {
	sum := uintToBytes(hasher.Sum64())
	return fmt.Sprintf(`"%s"`, hex.EncodeToString(sum))
}

func generateEtag(data []byte) string {
	hasher := xxhash.New()
	hasher.Write(data)
	return hasherToEtag(hasher)
}

// FileBucket is a bucket backed by a directory on disk
type FileBucket struct {
	path string
}

// NewFileBucket initializes a FileBucket and returns a new instance
func NewFileBucket(path string) *FileBucket {
	return &FileBucket{path: path}
}

func (b FileBucket) NewRangeReader(_ context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(b.path, key))
	if err != nil {
		return nil, err
	}
	defer file.Close()

	result := make([]byte, length)
	read, err := file.ReadAt(result, offset)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if read != int(length) {
		return nil, fmt.Errorf("expected to read %d bytes but only read %d: %w", length, read, ErrTruncated)
	}
	return io.NopCloser(bytes.NewReader(result)), nil
}

func (b FileBucket) Size(_ context.Context, key string) (int64, error) {
	info, err := os.Stat(filepath.Join(b.path, key))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

func (b FileBucket) Close() error {
	return nil
}

// BucketAdapter exposes a gocloud blob.Bucket as a Bucket.
type BucketAdapter struct {
	Bucket *blob.Bucket
}

func (ba BucketAdapter) NewRangeReader(ctx context.Context, key string, offset, length int64) (io.ReadCloser, error) {
	return ba.Bucket.NewRangeReader(ctx, key, offset, length, nil)
}

func (ba BucketAdapter) Size(ctx context.Context, key string) (int64, error) {
	attrs, err := ba.Bucket.Attributes(ctx, key)
	if err != nil {
		return 0, err
	}
	return attrs.Size, nil
}

func (ba BucketAdapter) Close() error {
	return ba.Bucket.Close()
}

func isRemote(location string) bool {
	return strings.HasPrefix(location, "http") ||
		strings.HasPrefix(location, "s3://") ||
		strings.HasPrefix(location, "gs://") ||
		strings.HasPrefix(location, "azblob://")
}

// NormalizeBucketKey splits a location into a bucket URL and a key.
// Plain paths become file:// buckets rooted at the containing directory.
func NormalizeBucketKey(bucket string, prefix string, key string) (string, string, error) {
	if bucket != "" {
		if isRemote(bucket) {
			return "", "", fmt.Errorf("%s: %w", bucket, ErrRemoteBucket)
		}
		return bucket, key, nil
	}
	if strings.Contains(key, "://") {
		if isRemote(key) {
			return "", "", fmt.Errorf("%s: %w", key, ErrRemoteBucket)
		}
		u, err := url.Parse(key)
		if err != nil {
			return "", "", err
		}
		dir, file := path.Split(u.Path)
		dir = strings.TrimSuffix(dir, "/")
		return u.Scheme + "://" + u.Host + dir, file, nil
	}
	fileprotocol := "file://"
	if string(os.PathSeparator) != "/" {
		fileprotocol += "/"
	}
	if prefix != "" {
		abs, err := filepath.Abs(prefix)
		if err != nil {
			return "", "", err
		}
		return fileprotocol + filepath.ToSlash(abs), key, nil
	}
	abs, err := filepath.Abs(key)
	if err != nil {
		return "", "", err
	}
	return fileprotocol + filepath.ToSlash(filepath.Dir(abs)), filepath.Base(abs), nil
}

// OpenBucket opens a local bucket. file:// URLs map to a FileBucket; any other
// scheme goes through gocloud and must have its driver registered by the caller.
func OpenBucket(ctx context.Context, bucketURL string, bucketPrefix string) (Bucket, error) {
	if isRemote(bucketURL) {
		return nil, fmt.Errorf("%s: %w", bucketURL, ErrRemoteBucket)
	}
	if strings.HasPrefix(bucketURL, "file") {
		fileprotocol := "file://"
		if string(os.PathSeparator) != "/" {
			fileprotocol += "/"
		}
		path := strings.Replace(bucketURL, fileprotocol, "", 1)
		return NewFileBucket(filepath.FromSlash(path)), nil
	}
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, err
	}
	if bucketPrefix != "" && bucketPrefix != "/" && bucketPrefix != "." {
		bucket = blob.PrefixedBucket(bucket, path.Clean(bucketPrefix)+"/")
	}
	return BucketAdapter{bucket}, nil
}
