package storage

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob" // S3 driver

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/source"
)

// NewS3Store creates a new S3-compatible store.
// Works with AWS S3 and MinIO.
func NewS3Store(bucketName, prefix, endpoint, region string) (*BucketStore, error) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, source.S3BucketURL(bucketName, endpoint, region))
	if err != nil {
		return nil, fmt.Errorf("open S3 bucket %s: %w", bucketName, err)
	}

	return NewBucketStore(bucket, "s3://"+bucketName, prefix), nil
}
