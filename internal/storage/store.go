// Package storage abstracts the output root the lake tables are written to:
// a local directory or a gocloud.dev bucket (S3, GCS, in-memory).
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("object not found")

// Store reads and writes objects under an output root. Keys are
// slash-separated and relative to the root.
type Store interface {
	// Put writes data to key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// Get reads the whole object.
	Get(ctx context.Context, key string) ([]byte, error)

	// Head returns metadata about a stored object.
	Head(ctx context.Context, key string) (*ObjectInfo, error)

	// Exists reports whether key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns all keys with the given prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Move publishes src under dst. For object stores this is copy+delete;
	// for the local filesystem it's rename.
	Move(ctx context.Context, src, dst string) error

	// Delete removes a single object. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// DeletePrefix removes every object under prefix and returns how many
	// were removed.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// URI returns the canonical URI for the given key.
	// For local: file:///path, GCS: gs://bucket/path, S3: s3://bucket/path
	URI(key string) string

	// Close releases any resources.
	Close() error
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ETag    string // MD5 for S3/GCS, empty for local
	ModTime time.Time
}

// StorageConfig configures the storage backend.
type StorageConfig struct {
	Backend string // "local" | "gcs" | "s3" | "mem"

	// Local filesystem
	LocalDir string

	// GCS or S3 (also works for MinIO and other S3-compatible stores)
	Bucket   string
	Endpoint string // custom S3 endpoint
	Region   string

	// Common
	Prefix string // path prefix within bucket or local dir
}

// NewStore creates a storage backend based on configuration.
func NewStore(cfg StorageConfig) (Store, error) {
	switch cfg.Backend {
	case "local":
		if cfg.LocalDir == "" {
			return nil, fmt.Errorf("LocalDir required for local backend")
		}
		return NewLocalStore(cfg.LocalDir, cfg.Prefix)
	case "gcs":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for gcs backend")
		}
		return NewGCSStore(cfg.Bucket, cfg.Prefix)
	case "s3":
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("Bucket required for s3 backend")
		}
		return NewS3Store(cfg.Bucket, cfg.Prefix, cfg.Endpoint, cfg.Region)
	case "mem":
		return NewMemStore(cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}
