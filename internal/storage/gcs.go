package storage

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
)

// NewGCSStore creates a new GCS-backed store.
// Uses Application Default Credentials (ADC) for authentication.
func NewGCSStore(bucketName, prefix string) (*BucketStore, error) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", bucketName))
	if err != nil {
		return nil, fmt.Errorf("open GCS bucket %s: %w", bucketName, err)
	}

	return NewBucketStore(bucket, "gs://"+bucketName, prefix), nil
}
