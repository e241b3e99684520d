// Package writer persists lake tables as Hive-partitioned parquet datasets.
//
// A table write follows the same lifecycle for every backend:
//  1. encode each partition file and stage it under
//     <table>.parquet/_temporary/<run_id>/
//  2. remove the previous contents of <table>.parquet
//  3. move the staged files to their final partition directories
//  4. write _manifest.json and the _SUCCESS marker
//
// A failure before step 2 leaves the previous table untouched and removes the
// staged files. Steps 2-4 are not atomic across partitions, and two runs
// writing the same table concurrently race on the overwrite.
package writer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/logging"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/storage"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/tables"
)

const (
	ManifestFile = "_manifest.json"
	SuccessFile  = "_SUCCESS"
	stagingDir   = "_temporary"
)

// ErrWrite wraps every failure of a table write.
var ErrWrite = errors.New("write table")

// Options tunes a table write.
type Options struct {
	RowsPerFile int    // 0 means one file per partition
	Compression string // "snappy" | "zstd" | "gzip" | "none"
	Workers     int    // concurrent file encodes/uploads
	RunID       string // defaults to logging.RunID(ctx)
	Producer    storage.ProducerInfo

	// Now stamps the manifest. Defaults to time.Now.
	Now func() time.Time
}

// Result describes a committed table.
type Result struct {
	Table    string
	URI      string
	Manifest *storage.Manifest
	Duration time.Duration
}

// Write replaces the table described by layout with rows.
func Write[T any](ctx context.Context, store storage.Store, layout Layout[T], rows []T, opts Options) (*Result, error) {
	start := time.Now()
	if opts.RunID == "" {
		opts.RunID = logging.RunID(ctx)
	}
	log := logging.TableLogger(logging.Component("writer"), layout.Table).With("run_id", opts.RunID)

	if opts.RunID == "" {
		return nil, fmt.Errorf("%w %s: run id required", ErrWrite, layout.Table)
	}
	codec, err := Codec(opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", ErrWrite, layout.Table, err)
	}

	parts, err := layout.plan(rows, opts.RowsPerFile)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWrite, err)
	}

	dir := layout.Dir()
	staging := path.Join(dir, stagingDir, opts.RunID) + "/"

	// Step 1: encode and stage
	files := make([]storage.FileInfo, len(parts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.Workers))
	for i, part := range parts {
		g.Go(func() error {
			data, err := Encode(part.rows, codec)
			if err != nil {
				return fmt.Errorf("encode %s: %w", part.path, err)
			}
			if err := store.Put(gctx, staging+part.path, data); err != nil {
				return fmt.Errorf("stage %s: %w", part.path, err)
			}
			files[i] = storage.FileInfo{
				Path:      part.path,
				Partition: part.partition,
				Checksum:  storage.ComputeChecksum(data),
				RowCount:  int64(len(part.rows)),
				ByteSize:  int64(len(data)),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		abort(store, staging, log)
		return nil, fmt.Errorf("%w %s: %w", ErrWrite, layout.Table, err)
	}

	// Step 2: drop the previous table contents, keeping staged files
	existing, err := store.List(ctx, dir+"/")
	if err != nil {
		abort(store, staging, log)
		return nil, fmt.Errorf("%w %s: list previous files: %w", ErrWrite, layout.Table, err)
	}
	removed := 0
	for _, key := range existing {
		if strings.HasPrefix(key, path.Join(dir, stagingDir)+"/") {
			continue
		}
		if err := store.Delete(ctx, key); err != nil {
			abort(store, staging, log)
			return nil, fmt.Errorf("%w %s: %w", ErrWrite, layout.Table, err)
		}
		removed++
	}

	// Step 3: promote
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(max(1, opts.Workers))
	for _, f := range files {
		g.Go(func() error {
			return store.Move(gctx, staging+f.Path, path.Join(dir, f.Path))
		})
	}
	if err := g.Wait(); err != nil {
		abort(store, staging, log)
		return nil, fmt.Errorf("%w %s: promote: %w", ErrWrite, layout.Table, err)
	}
	if _, err := store.DeletePrefix(ctx, path.Join(dir, stagingDir)+"/"); err != nil {
		log.Warn("failed to clean staging directory", "error", err)
	}

	// Step 4: manifest and success marker
	manifest := buildManifest(layout, files, opts)
	data, err := manifest.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("%w %s: marshal manifest: %w", ErrWrite, layout.Table, err)
	}
	if err := store.Put(ctx, path.Join(dir, ManifestFile), data); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrWrite, layout.Table, err)
	}
	if err := store.Put(ctx, path.Join(dir, SuccessFile), nil); err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrWrite, layout.Table, err)
	}

	res := &Result{
		Table:    layout.Table,
		URI:      store.URI(dir),
		Manifest: manifest,
		Duration: time.Since(start),
	}
	log.Info("table written",
		"rows", manifest.RowCount,
		"files", len(files),
		"bytes", manifest.ByteSize,
		"replaced_files", removed,
		"duration", res.Duration,
	)
	return res, nil
}

func buildManifest[T any](layout Layout[T], files []storage.FileInfo, opts Options) *storage.Manifest {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	m := &storage.Manifest{
		Table:         layout.Table,
		PartitionBy:   layout.PartitionBy,
		Files:         files,
		Compression:   CodecName(opts.Compression),
		SchemaVersion: tables.SchemaVersion,
		RunID:         opts.RunID,
		Producer:      opts.Producer,
		CreatedAt:     now().UTC(),
	}
	checksums := make([]string, len(files))
	for i, f := range files {
		m.RowCount += f.RowCount
		m.ByteSize += f.ByteSize
		checksums[i] = f.Checksum
	}
	m.Checksum = storage.CombineChecksums(checksums)
	return m
}

// abort removes staged files. It runs on a fresh context so cleanup still
// happens after cancellation.
func abort(store storage.Store, staging string, log *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := store.DeletePrefix(ctx, staging); err != nil {
		log.Warn("failed to abort staged files", "staging", staging, "error", err)
	}
}
