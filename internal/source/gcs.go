package source

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
)

// NewGCSSource creates a source over Google Cloud Storage.
// Uses Application Default Credentials (ADC) for authentication.
func NewGCSSource(bucketName, prefix string) (*BucketSource, error) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", bucketName))
	if err != nil {
		return nil, fmt.Errorf("open GCS bucket %s: %w", bucketName, err)
	}

	return NewBucketSource(bucket, "gs://"+bucketName, prefix), nil
}
