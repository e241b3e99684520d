package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"
)

// BucketStore writes objects to a gocloud.dev bucket. It backs the S3, GCS
// and in-memory stores.
type BucketStore struct {
	bucket  *blob.Bucket
	baseURI string // e.g. "s3://datalake-target-s3"
	prefix  string
}

// NewBucketStore wraps an open bucket. The store takes ownership of the
// bucket and closes it on Close.
func NewBucketStore(bucket *blob.Bucket, baseURI, prefix string) *BucketStore {
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &BucketStore{
		bucket:  bucket,
		baseURI: strings.TrimSuffix(baseURI, "/"),
		prefix:  prefix,
	}
}

// NewMemStore creates an in-memory store, mostly for tests.
func NewMemStore(prefix string) *BucketStore {
	return NewBucketStore(memblob.OpenBucket(nil), "mem://", prefix)
}

// Bucket exposes the underlying bucket.
func (s *BucketStore) Bucket() *blob.Bucket {
	return s.bucket
}

func (s *BucketStore) key(key string) string {
	return s.prefix + key
}

func notFound(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}

// Put writes data to the bucket.
func (s *BucketStore) Put(ctx context.Context, key string, data []byte) error {
	path := s.key(key)

	w, err := s.bucket.NewWriter(ctx, path, nil)
	if err != nil {
		return fmt.Errorf("create writer for %s: %w", path, err)
	}

	if _, err := w.Write(data); err != nil {
		w.Close()
		return fmt.Errorf("write data to %s: %w", path, err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer for %s: %w", path, err)
	}

	return nil
}

// Get reads the whole object.
func (s *BucketStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.bucket.ReadAll(ctx, s.key(key))
	if notFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.URI(key))
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Head returns metadata about a stored object.
func (s *BucketStore) Head(ctx context.Context, key string) (*ObjectInfo, error) {
	attrs, err := s.bucket.Attributes(ctx, s.key(key))
	if notFound(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.URI(key))
	}
	if err != nil {
		return nil, fmt.Errorf("get attributes for %s: %w", key, err)
	}

	return &ObjectInfo{
		Key:     key,
		Size:    attrs.Size,
		ETag:    attrs.ETag,
		ModTime: attrs.ModTime,
	}, nil
}

// Exists checks if an object exists.
func (s *BucketStore) Exists(ctx context.Context, key string) (bool, error) {
	return s.bucket.Exists(ctx, s.key(key))
}

// List returns all keys with the given prefix.
func (s *BucketStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	iter := s.bucket.List(&blob.ListOptions{
		Prefix: s.key(prefix),
	})

	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		keys = append(keys, strings.TrimPrefix(obj.Key, s.prefix))
	}

	sort.Strings(keys)
	return keys, nil
}

// Move copies src to dst, then deletes src.
func (s *BucketStore) Move(ctx context.Context, src, dst string) error {
	if err := s.bucket.Copy(ctx, s.key(dst), s.key(src), nil); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src, dst, err)
	}
	if err := s.bucket.Delete(ctx, s.key(src)); err != nil && !notFound(err) {
		return fmt.Errorf("delete %s: %w", src, err)
	}
	return nil
}

// Delete removes a single object.
func (s *BucketStore) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, s.key(key)); err != nil && !notFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// DeletePrefix removes every object under prefix.
func (s *BucketStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return 0, err
		}
	}
	return len(keys), nil
}

// URI returns the canonical URI for the given key.
func (s *BucketStore) URI(key string) string {
	return s.baseURI + "/" + s.prefix + key
}

// Close releases the bucket connection.
func (s *BucketStore) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

var _ Store = (*BucketStore)(nil)
