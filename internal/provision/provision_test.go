package provision

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 serves bucket listings in pages and records CreateBucket calls.
type fakeS3 struct {
	pages     [][]string
	listErr   error
	createErr error

	listCalls int
	created   []*s3.CreateBucketInput
}

func (f *fakeS3) ListBuckets(ctx context.Context, in *s3.ListBucketsInput, _ ...func(*s3.Options)) (*s3.ListBucketsOutput, error) {
	f.listCalls++
	if f.listErr != nil {
		return nil, f.listErr
	}

	page := 0
	if in.ContinuationToken != nil {
		page = int(aws.ToString(in.ContinuationToken)[0] - '0')
	}

	out := &s3.ListBucketsOutput{}
	if page < len(f.pages) {
		for _, name := range f.pages[page] {
			out.Buckets = append(out.Buckets, types.Bucket{Name: aws.String(name)})
		}
	}
	if page+1 < len(f.pages) {
		out.ContinuationToken = aws.String(string(rune('0' + page + 1)))
	}
	return out, nil
}

func (f *fakeS3) CreateBucket(ctx context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = append(f.created, in)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &s3.CreateBucketOutput{}, nil
}

func TestBucketExists(t *testing.T) {
	tests := []struct {
		name   string
		pages  [][]string
		bucket string
		want   bool
	}{
		{"empty account", nil, "datalake-target-s3", false},
		{"first page", [][]string{{"a", "datalake-target-s3"}}, "datalake-target-s3", true},
		{"later page", [][]string{{"a", "b"}, {"c"}, {"datalake-target-s3"}}, "datalake-target-s3", true},
		{"prefix is not a match", [][]string{{"datalake-target-s3-old", "datalake"}}, "datalake-target-s3", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeS3{pages: tt.pages}
			got, err := New(fake).BucketExists(context.Background(), tt.bucket)
			if err != nil {
				t.Fatalf("BucketExists failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("BucketExists = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBucketExistsListError(t *testing.T) {
	fake := &fakeS3{listErr: errors.New("access denied")}
	if _, err := New(fake).BucketExists(context.Background(), "x"); err == nil {
		t.Error("expected error from failed listing")
	}
}

func TestCreateBucket(t *testing.T) {
	fake := &fakeS3{}
	if !New(fake).CreateBucket(context.Background(), "datalake-target-s3", "us-west-2") {
		t.Fatal("CreateBucket should succeed")
	}

	in := fake.created[0]
	if aws.ToString(in.Bucket) != "datalake-target-s3" {
		t.Errorf("bucket = %q", aws.ToString(in.Bucket))
	}
	if in.CreateBucketConfiguration == nil || in.CreateBucketConfiguration.LocationConstraint != types.BucketLocationConstraintUsWest2 {
		t.Errorf("location constraint = %+v", in.CreateBucketConfiguration)
	}
}

func TestCreateBucketDefaultRegion(t *testing.T) {
	for _, lc := range []string{"", "us-east-1"} {
		fake := &fakeS3{}
		New(fake).CreateBucket(context.Background(), "b", lc)
		if fake.created[0].CreateBucketConfiguration != nil {
			t.Errorf("location %q should not set a constraint", lc)
		}
	}
}

func TestCreateBucketFailureReturnsFalse(t *testing.T) {
	fake := &fakeS3{createErr: &types.BucketAlreadyExists{}}
	if New(fake).CreateBucket(context.Background(), "taken", "us-west-2") {
		t.Error("CreateBucket should report failure instead of returning an error")
	}

	fake = &fakeS3{createErr: &types.BucketAlreadyOwnedByYou{}}
	if !New(fake).CreateBucket(context.Background(), "mine", "us-west-2") {
		t.Error("a bucket already owned by the caller counts as created")
	}
}

func TestEnsureBucket(t *testing.T) {
	ctx := context.Background()

	existing := &fakeS3{pages: [][]string{{"datalake-target-s3"}}}
	if err := New(existing).EnsureBucket(ctx, "datalake-target-s3", "us-west-2"); err != nil {
		t.Fatalf("EnsureBucket failed: %v", err)
	}
	if len(existing.created) != 0 {
		t.Error("existing bucket should not be created again")
	}

	missing := &fakeS3{pages: [][]string{{"other"}}}
	if err := New(missing).EnsureBucket(ctx, "datalake-target-s3", "us-west-2"); err != nil {
		t.Fatalf("EnsureBucket failed: %v", err)
	}
	if len(missing.created) != 1 {
		t.Errorf("expected one CreateBucket call, got %d", len(missing.created))
	}

	failing := &fakeS3{createErr: errors.New("forbidden")}
	if err := New(failing).EnsureBucket(ctx, "b", "us-west-2"); !errors.Is(err, ErrProvision) {
		t.Errorf("expected ErrProvision, got %v", err)
	}
}
