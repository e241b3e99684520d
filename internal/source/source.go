package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrInvalidSourceMode is returned for an unknown input backend.
	ErrInvalidSourceMode = errors.New("invalid source mode")

	// ErrNoInput is returned when a glob pattern matches no files.
	ErrNoInput = errors.New("no input files")

	// ErrParse wraps malformed or type-incompatible records.
	ErrParse = errors.New("parse record")
)

// RecordSource lists and opens raw input files under an input root.
type RecordSource interface {
	// Glob returns the keys matching pattern, relative to the input root,
	// in lexical order.
	Glob(ctx context.Context, pattern string) ([]string, error)

	// Open returns a reader over the raw (possibly compressed) file.
	Open(ctx context.Context, key string) (io.ReadCloser, error)

	// URI returns the canonical URI for the given key.
	URI(key string) string

	Close() error
}

type SourceConfig struct {
	Mode     string // "local" | "s3" | "gcs" | "mem"
	LocalDir string
	Bucket   string
	Prefix   string
	Endpoint string
	Region   string
}

// NewRecordSource constructs a record source based on the configured mode.
func NewRecordSource(cfg SourceConfig) (RecordSource, error) {
	switch cfg.Mode {
	case "local":
		return NewLocalSource(cfg.LocalDir)
	case "s3":
		return NewS3Source(cfg.Bucket, cfg.Prefix, cfg.Endpoint, cfg.Region)
	case "gcs":
		return NewGCSSource(cfg.Bucket, cfg.Prefix)
	case "mem":
		return NewMemSource(cfg.Prefix)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidSourceMode, cfg.Mode)
	}
}

// ReadStats summarizes one ReadRecords call.
type ReadStats struct {
	Files   int
	Records int
}

// ReadRecords decodes every file matching pattern into T. Files are read
// concurrently (at most workers at a time) and the result keeps file order,
// then line order within a file. Any unreadable or malformed file aborts the
// whole read.
func ReadRecords[T any](ctx context.Context, src RecordSource, pattern string, workers int) ([]T, ReadStats, error) {
	log := slog.With("component", "source", "pattern", pattern)

	keys, err := src.Glob(ctx, pattern)
	if err != nil {
		return nil, ReadStats{}, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(keys) == 0 {
		return nil, ReadStats{}, fmt.Errorf("%w: %s", ErrNoInput, src.URI(pattern))
	}

	if workers < 1 {
		workers = 1
	}

	perFile := make([][]T, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, key := range keys {
		g.Go(func() error {
			recs, err := readFile[T](gctx, src, key)
			if err != nil {
				return err
			}
			perFile[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, ReadStats{}, err
	}

	total := 0
	for _, recs := range perFile {
		total += len(recs)
	}
	out := make([]T, 0, total)
	for _, recs := range perFile {
		out = append(out, recs...)
	}

	log.Debug("read records", "files", len(keys), "records", total)
	return out, ReadStats{Files: len(keys), Records: total}, nil
}

func readFile[T any](ctx context.Context, src RecordSource, key string) ([]T, error) {
	rc, err := src.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.URI(key), err)
	}
	defer rc.Close()

	recs, err := DecodeJSONLines[T](rc, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", src.URI(key), err)
	}
	return recs, nil
}
