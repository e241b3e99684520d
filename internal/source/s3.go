package source

import (
	"context"
	"fmt"
	"net/url"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/s3blob" // S3 driver
)

// NewS3Source creates a source over S3-compatible storage.
// endpoint can be empty for AWS S3, or a custom URL for MinIO/R2/B2.
func NewS3Source(bucketName, prefix, endpoint, region string) (*BucketSource, error) {
	ctx := context.Background()

	bucket, err := blob.OpenBucket(ctx, S3BucketURL(bucketName, endpoint, region))
	if err != nil {
		return nil, fmt.Errorf("open S3 bucket %s: %w", bucketName, err)
	}

	return NewBucketSource(bucket, "s3://"+bucketName, prefix), nil
}

// S3BucketURL builds the gocloud.dev URL for an S3 bucket.
// For AWS: s3://bucket-name?region=us-west-2
// For custom endpoints: s3://bucket-name?endpoint=http://localhost:9000&use_path_style=true
func S3BucketURL(bucketName, endpoint, region string) string {
	bucketURL := fmt.Sprintf("s3://%s", bucketName)

	params := url.Values{}
	if region != "" {
		params.Set("region", region)
	}
	if endpoint != "" {
		params.Set("endpoint", endpoint)
		params.Set("use_path_style", "true")
	}
	if len(params) > 0 {
		bucketURL = bucketURL + "?" + params.Encode()
	}
	return bucketURL
}
