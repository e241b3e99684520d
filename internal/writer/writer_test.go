package writer

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/logging"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/storage"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/tables"
)

func strPtr(s string) *string { return &s }

func testOptions(runID string) Options {
	return Options{
		Compression: "snappy",
		Workers:     3,
		RunID:       runID,
		Producer:    storage.ProducerInfo{Name: "songplay-etl", Version: "test"},
		Now:         func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func testFacts() []tables.SongplayFact {
	mk := func(id int64, ts int64, song string) tables.SongplayFact {
		t := time.UnixMilli(ts).UTC()
		f := tables.SongplayFact{
			SongplayID: id,
			StartTime:  t,
			UserID:     "10",
			Level:      "free",
			SessionID:  7,
			Year:       int32(t.Year()),
			Month:      int32(t.Month()),
		}
		if song != "" {
			f.SongID = strPtr(song)
			f.ArtistID = strPtr("AR1")
		}
		return f
	}
	return []tables.SongplayFact{
		mk(0, 1541903636796, "SG1"), // 2018-11
		mk(1, 1700000000000, ""),    // 2023-11
		mk(2, 1543622400000, "SG2"), // 2018-12
		mk(3, 1541903700000, ""),    // 2018-11
	}
}

func TestWritePartitionedTable(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore("out")
	defer store.Close()

	res, err := Write(ctx, store, SongplaysLayout, testFacts(), testOptions("run-1"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	keys, err := store.List(ctx, "songplays.parquet/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{
		"songplays.parquet/_SUCCESS",
		"songplays.parquet/_manifest.json",
		"songplays.parquet/year=2018/month=11/part-00000.parquet",
		"songplays.parquet/year=2018/month=12/part-00000.parquet",
		"songplays.parquet/year=2023/month=11/part-00000.parquet",
	}
	if !reflect.DeepEqual(keys, want) {
		t.Errorf("keys = %v\nwant %v", keys, want)
	}

	m := res.Manifest
	if m.RowCount != 4 || len(m.Files) != 3 {
		t.Errorf("manifest rows=%d files=%d", m.RowCount, len(m.Files))
	}
	if m.Files[0].Partition["year"] != "2018" || m.Files[0].Partition["month"] != "11" {
		t.Errorf("first file partition = %v", m.Files[0].Partition)
	}
	if res.URI != "mem://out/songplays.parquet" {
		t.Errorf("URI = %q", res.URI)
	}

	rows, _, err := ReadTable[tables.SongplayFact](ctx, store, "songplays")
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("read %d rows, want 4", len(rows))
	}
	// 2018/11 holds facts 0 and 3, in input order.
	if rows[0].SongplayID != 0 || rows[1].SongplayID != 3 {
		t.Errorf("row order = %d, %d", rows[0].SongplayID, rows[1].SongplayID)
	}
	if rows[0].SongID == nil || *rows[0].SongID != "SG1" || rows[1].SongID != nil {
		t.Errorf("nullable song ids not preserved: %v, %v", rows[0].SongID, rows[1].SongID)
	}
	if !rows[0].StartTime.Equal(time.UnixMilli(1541903636796)) {
		t.Errorf("StartTime = %v", rows[0].StartTime)
	}
	if rows[0].Year != 0 {
		t.Error("partition columns should not be stored in the file")
	}

	if _, err := Verify(ctx, store, "songplays"); err != nil {
		t.Errorf("Verify failed: %v", err)
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStore(t.TempDir(), "")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}

	first, err := Write(ctx, store, SongplaysLayout, testFacts(), testOptions("run-1"))
	if err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	second, err := Write(ctx, store, SongplaysLayout, testFacts(), testOptions("run-2"))
	if err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	if first.Manifest.Checksum != second.Manifest.Checksum {
		t.Error("rerun over unchanged input should produce identical files")
	}
	for i := range first.Manifest.Files {
		if first.Manifest.Files[i].Checksum != second.Manifest.Files[i].Checksum {
			t.Errorf("file %s differs between runs", first.Manifest.Files[i].Path)
		}
	}

	keys, err := store.List(ctx, "songplays.parquet/_temporary/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("staging files left behind: %v", keys)
	}
}

func TestWriteReplacesPreviousPartitions(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore("")

	if _, err := Write(ctx, store, SongplaysLayout, testFacts(), testOptions("run-1")); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	// The second run only has 2023 data; the 2018 partitions must go.
	if _, err := Write(ctx, store, SongplaysLayout, testFacts()[1:2], testOptions("run-2")); err != nil {
		t.Fatalf("second Write failed: %v", err)
	}

	keys, err := store.List(ctx, "songplays.parquet/year=")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"songplays.parquet/year=2023/month=11/part-00000.parquet"}) {
		t.Errorf("keys after overwrite = %v", keys)
	}

	m, err := Verify(ctx, store, "songplays")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if m.RunID != "run-2" || m.RowCount != 1 {
		t.Errorf("manifest = %+v", m)
	}
}

func TestWriteRowsPerFile(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore("")

	users := make([]tables.UserSnapshot, 5)
	for i := range users {
		users[i] = tables.UserSnapshot{UserID: string(rune('a' + i)), Level: "free"}
	}

	opts := testOptions("run-1")
	opts.RowsPerFile = 2
	res, err := Write(ctx, store, UsersLayout, users, opts)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var paths []string
	for _, f := range res.Manifest.Files {
		paths = append(paths, f.Path)
	}
	want := []string{"part-00000.parquet", "part-00001.parquet", "part-00002.parquet"}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("files = %v, want %v", paths, want)
	}

	rows, _, err := ReadTable[tables.UserSnapshot](ctx, store, "users")
	if err != nil {
		t.Fatalf("ReadTable failed: %v", err)
	}
	if len(rows) != 5 || rows[4].UserID != "e" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestWriteEmptyTables(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore("")

	res, err := Write(ctx, store, ArtistsLayout, nil, testOptions("run-1"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(res.Manifest.Files) != 1 || res.Manifest.RowCount != 0 {
		t.Errorf("unpartitioned empty table should keep one schema-only file, got %+v", res.Manifest.Files)
	}

	res, err = Write(ctx, store, TimeLayout, nil, testOptions("run-1"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if len(res.Manifest.Files) != 0 {
		t.Errorf("partitioned empty table should have no files, got %+v", res.Manifest.Files)
	}
	if _, err := ReadManifest(ctx, store, "time"); err != nil {
		t.Errorf("ReadManifest failed: %v", err)
	}
}

func TestTracksPartitionEscaping(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore("")

	tracks := []tables.TrackRecord{
		{SongID: "SG1", Title: "A", ArtistID: "AR1", Year: 2020, Duration: 210.5},
		{SongID: "SG2", Title: "B", ArtistID: "", Year: 0, Duration: 99},
		{SongID: "SG3", Title: "C", ArtistID: "AR/2", Year: 1999, Duration: 1},
	}
	res, err := Write(ctx, store, TracksLayout, tracks, testOptions("run-1"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	var paths []string
	for _, f := range res.Manifest.Files {
		paths = append(paths, f.Path)
	}
	want := []string{
		"year=0/artist_id=__HIVE_DEFAULT_PARTITION__/part-00000.parquet",
		"year=1999/artist_id=AR%2F2/part-00000.parquet",
		"year=2020/artist_id=AR1/part-00000.parquet",
	}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v\nwant %v", paths, want)
	}
}

func TestEscapePartitionValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"AR1", "AR1"},
		{"", DefaultPartitionValue},
		{"a=b", "a%3Db"},
		{"x:y?", "x%3Ay%3F"},
		{"50%", "50%25"},
		{"tab\there", "tab%09here"},
		{"Los Angeles", "Los Angeles"},
	}
	for _, tt := range tests {
		if got := EscapePartitionValue(tt.in); got != tt.want {
			t.Errorf("EscapePartitionValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// failingStore fails every Put whose key contains failOn.
type failingStore struct {
	storage.Store
	failOn string
}

func (s failingStore) Put(ctx context.Context, key string, data []byte) error {
	if strings.Contains(key, s.failOn) {
		return errors.New("disk full")
	}
	return s.Store.Put(ctx, key, data)
}

func TestWriteAbortKeepsPreviousTable(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemStore("")

	if _, err := Write(ctx, mem, SongplaysLayout, testFacts(), testOptions("run-1")); err != nil {
		t.Fatalf("first Write failed: %v", err)
	}

	store := failingStore{Store: mem, failOn: "month=12"}
	_, err := Write(ctx, store, SongplaysLayout, testFacts(), testOptions("run-2"))
	if !errors.Is(err, ErrWrite) {
		t.Fatalf("expected ErrWrite, got %v", err)
	}

	staged, err := mem.List(ctx, "songplays.parquet/_temporary/")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(staged) != 0 {
		t.Errorf("staged files not aborted: %v", staged)
	}

	m, err := Verify(ctx, mem, "songplays")
	if err != nil {
		t.Fatalf("previous table should survive a failed write: %v", err)
	}
	if m.RunID != "run-1" {
		t.Errorf("manifest run = %q, want run-1", m.RunID)
	}
}

func TestWriteRejectsBadOptions(t *testing.T) {
	store := storage.NewMemStore("")
	if _, err := Write(context.Background(), store, UsersLayout, nil, Options{}); !errors.Is(err, ErrWrite) {
		t.Errorf("missing run id: expected ErrWrite, got %v", err)
	}
	opts := testOptions("r")
	opts.Compression = "lzma"
	if _, err := Write(context.Background(), store, UsersLayout, nil, opts); !errors.Is(err, ErrWrite) {
		t.Errorf("bad codec: expected ErrWrite, got %v", err)
	}
}

func TestWriteTakesRunIDFromContext(t *testing.T) {
	ctx := logging.WithRunID(context.Background(), "run-ctx")
	store := storage.NewMemStore("")
	opts := testOptions("")

	res, err := Write(ctx, store, UsersLayout, nil, opts)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if res.Manifest.RunID != "run-ctx" {
		t.Errorf("manifest run = %q, want run-ctx", res.Manifest.RunID)
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemStore("")
	res, err := Write(ctx, store, SongplaysLayout, testFacts(), testOptions("run-1"))
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	key := "songplays.parquet/" + res.Manifest.Files[0].Path
	if err := store.Put(ctx, key, []byte("not parquet")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := Verify(ctx, store, "songplays"); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}

	if _, err := ReadManifest(ctx, store, "users"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unwritten table, got %v", err)
	}
}

func TestCodec(t *testing.T) {
	for _, name := range []string{"", "snappy", "zstd", "ZSTD", "gzip", "none", "uncompressed"} {
		if _, err := Codec(name); err != nil {
			t.Errorf("Codec(%q) failed: %v", name, err)
		}
	}
	if _, err := Codec("lz77"); err == nil {
		t.Error("expected error for unknown codec")
	}

	names := map[string]string{
		"":             "snappy",
		"Snappy":       "snappy",
		" ZSTD ":       "zstd",
		"uncompressed": "none",
		"lz77":         "lz77",
	}
	for in, want := range names {
		if got := CodecName(in); got != want {
			t.Errorf("CodecName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteRecordsCanonicalCodec(t *testing.T) {
	opts := testOptions("run-1")
	opts.Compression = "ZSTD"
	res, err := Write(context.Background(), storage.NewMemStore(""), UsersLayout, nil, opts)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if res.Manifest.Compression != "zstd" {
		t.Errorf("manifest compression = %q, want zstd", res.Manifest.Compression)
	}
}
