package source

import (
	"context"
	"reflect"
	"testing"
)

func TestBucketSourceGlobWithPrefix(t *testing.T) {
	src, err := NewMemSource("udacity")
	if err != nil {
		t.Fatalf("NewMemSource failed: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	objects := map[string]string{
		"udacity/log_data/2018-11-01-events.json": `{"id":"1"}`,
		"udacity/log_data/2018-11-02-events.json": `{"id":"2"}`,
		"udacity/log_data/nested/deep/x.json":     `{"id":"x"}`,
		"other/log_data/2018-11-03-events.json":   `{"id":"3"}`,
	}
	for key, body := range objects {
		if err := src.Bucket().WriteAll(ctx, key, []byte(body), nil); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}

	keys, err := src.Glob(ctx, "log_data/*")
	if err != nil {
		t.Fatalf("Glob failed: %v", err)
	}
	want := []string{"log_data/2018-11-01-events.json", "log_data/2018-11-02-events.json"}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("Glob = %v, want %v", keys, want)
	}

	recs, _, err := ReadRecords[testRecord](ctx, src, "log_data/*", 2)
	if err != nil {
		t.Fatalf("ReadRecords failed: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != "1" || recs[1].ID != "2" {
		t.Errorf("records = %+v", recs)
	}

	if got := src.URI("log_data/a.json"); got != "mem://udacity/log_data/a.json" {
		t.Errorf("URI = %q", got)
	}
}

func TestBucketSourceSongDatasetLayout(t *testing.T) {
	src, err := NewMemSource("")
	if err != nil {
		t.Fatalf("NewMemSource failed: %v", err)
	}
	defer src.Close()

	ctx := context.Background()
	objects := map[string]string{
		"track_data/A/A/A/TRAAAAW128F429D538.json": `{"id":"a"}`,
		"track_data/A/B/C/TRABCEI128F424C983.json": `{"id":"b"}`,
		"track_data/A/B/C/_SUCCESS":                "",
	}
	for key, body := range objects {
		if err := src.Bucket().WriteAll(ctx, key, []byte(body), nil); err != nil {
			t.Fatalf("seed %s: %v", key, err)
		}
	}

	recs, stats, err := ReadRecords[testRecord](ctx, src, "track_data/*/*/*", 2)
	if err != nil {
		t.Fatalf("ReadRecords failed: %v", err)
	}
	if stats.Files != 2 || len(recs) != 2 || recs[0].ID != "a" || recs[1].ID != "b" {
		t.Errorf("stats = %+v, records = %+v", stats, recs)
	}
}

func TestS3BucketURL(t *testing.T) {
	tests := []struct {
		endpoint, region string
		want             string
	}{
		{"", "", "s3://lake"},
		{"", "us-west-2", "s3://lake?region=us-west-2"},
		{"http://localhost:9000", "us-east-1", "s3://lake?endpoint=http%3A%2F%2Flocalhost%3A9000&region=us-east-1&use_path_style=true"},
	}

	for _, tt := range tests {
		if got := S3BucketURL("lake", tt.endpoint, tt.region); got != tt.want {
			t.Errorf("S3BucketURL(%q, %q) = %q, want %q", tt.endpoint, tt.region, got, tt.want)
		}
	}
}
