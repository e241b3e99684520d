package source

import (
	"context"
	"fmt"
	"io"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
)

// BucketSource reads input files from any gocloud.dev bucket (S3, GCS or
// in-memory).
type BucketSource struct {
	bucket  *blob.Bucket
	baseURI string // e.g. "s3://udacity-dend"
	prefix  string
}

// NewBucketSource wraps an open bucket. The source takes ownership of the
// bucket and closes it on Close.
func NewBucketSource(bucket *blob.Bucket, baseURI, prefix string) *BucketSource {
	return &BucketSource{
		bucket:  bucket,
		baseURI: strings.TrimSuffix(baseURI, "/"),
		prefix:  normalizePrefix(prefix),
	}
}

// NewMemSource creates an empty in-memory source, mostly for tests.
func NewMemSource(prefix string) (*BucketSource, error) {
	return NewBucketSource(memblob.OpenBucket(nil), "mem://", prefix), nil
}

// Bucket exposes the underlying bucket so callers can seed it.
func (s *BucketSource) Bucket() *blob.Bucket {
	return s.bucket
}

// Glob implements RecordSource.Glob by listing the literal prefix of the
// pattern and matching every key.
func (s *BucketSource) Glob(ctx context.Context, pattern string) ([]string, error) {
	index := NewFileIndex(pattern)

	iter := s.bucket.List(&blob.ListOptions{
		Prefix: s.prefix + index.ListPrefix(),
	})

	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		if obj.IsDir {
			continue
		}
		index.AddKey(strings.TrimPrefix(obj.Key, s.prefix))
	}

	return index.Keys(), nil
}

// Open implements RecordSource.Open.
func (s *BucketSource) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.bucket.NewReader(ctx, s.prefix+key, nil)
	if err != nil {
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	return r, nil
}

// URI returns the canonical URI for the given key.
func (s *BucketSource) URI(key string) string {
	return s.baseURI + "/" + s.prefix + key
}

// Close releases the bucket connection.
func (s *BucketSource) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

var _ RecordSource = (*BucketSource)(nil)
