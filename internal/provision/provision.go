// Package provision checks for and creates the destination bucket before a
// pipeline run. The pipeline itself never provisions storage.
package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ErrProvision is returned by EnsureBucket when the bucket could not be
// created.
var ErrProvision = errors.New("provision bucket")

// API is the subset of the S3 client used for provisioning.
type API interface {
	ListBuckets(ctx context.Context, params *s3.ListBucketsInput, optFns ...func(*s3.Options)) (*s3.ListBucketsOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// ClientConfig selects the region, credentials and endpoint of the S3 client.
type ClientConfig struct {
	Region          string
	Endpoint        string // optional, e.g. http://localhost:9000 for MinIO
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient builds an S3 client. Static credentials are used when both keys
// are set; otherwise the default AWS credential chain applies.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error

	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return s3.NewFromConfig(awsCfg, s3Opts...), nil
}

// Provisioner checks for and creates buckets.
type Provisioner struct {
	client API
	log    *slog.Logger
}

// New creates a provisioner over client.
func New(client API) *Provisioner {
	return &Provisioner{
		client: client,
		log:    slog.With("component", "provision"),
	}
}

// BucketExists reports whether a bucket named name is among the buckets the
// credentials can list. Every page of the listing is checked.
func (p *Provisioner) BucketExists(ctx context.Context, name string) (bool, error) {
	pages := s3.NewListBucketsPaginator(p.client, &s3.ListBucketsInput{})
	for pages.HasMorePages() {
		out, err := pages.NextPage(ctx)
		if err != nil {
			return false, fmt.Errorf("list buckets: %w", err)
		}
		for _, b := range out.Buckets {
			if aws.ToString(b.Name) == name {
				return true, nil
			}
		}
	}
	return false, nil
}

// CreateBucket creates the bucket and reports whether it succeeded. Failures
// are logged, not returned. An empty locationConstraint (or us-east-1, which
// S3 rejects as a constraint) creates the bucket in the default region.
// A bucket already owned by the caller counts as created.
func (p *Provisioner) CreateBucket(ctx context.Context, name, locationConstraint string) bool {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(name),
	}
	if locationConstraint != "" && locationConstraint != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(locationConstraint),
		}
	}

	log := p.log.With("bucket", name, "location", locationConstraint)

	if _, err := p.client.CreateBucket(ctx, input); err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if errors.As(err, &owned) {
			log.Info("bucket already owned by caller")
			return true
		}
		log.Error("failed to create bucket", "error", err)
		return false
	}

	log.Info("bucket created")
	return true
}

// EnsureBucket creates the bucket unless it already exists.
func (p *Provisioner) EnsureBucket(ctx context.Context, name, locationConstraint string) error {
	exists, err := p.BucketExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		p.log.Info("bucket exists", "bucket", name)
		return nil
	}

	if !p.CreateBucket(ctx, name, locationConstraint) {
		return fmt.Errorf("%w: %s", ErrProvision, name)
	}
	return nil
}
