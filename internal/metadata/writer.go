// Package metadata records run lineage: which run produced each table, from
// which input, with which checksums and quality results.
package metadata

import (
	"context"
	"time"
)

type CatalogConfig struct {
	PostgresDSN string
}

// Writer persists lineage records. Implementations must be safe for use by
// one run at a time.
type Writer interface {
	StartRun(ctx context.Context, rec RunRecord) error
	RecordTable(ctx context.Context, rec TableRecord) error
	RecordQuality(ctx context.Context, rec QualityRecord) error
	FinishRun(ctx context.Context, runID string, runErr error) error

	// LastTable returns the most recent committed record for a table, or nil
	// if the table has never been recorded.
	LastTable(ctx context.Context, table string) (*TableRecord, error)

	Close() error
}

// RunRecord describes one ETL run.
type RunRecord struct {
	RunID           string
	InputURI        string
	OutputURI       string
	ProducerVersion string
	StartedAt       time.Time
}

// TableRecord describes one committed table.
type TableRecord struct {
	RunID       string
	Table       string
	PartitionBy []string
	RowCount    int64
	ByteSize    int64
	FileCount   int
	Checksum    string
	StorageURI  string
}

// QualityRecord is the outcome of one output check.
type QualityRecord struct {
	RunID        string
	Check        string
	Passed       bool
	ErrorMessage string
}

// NewWriter returns a Postgres-backed writer when a DSN is configured and a
// no-op writer otherwise.
func NewWriter(ctx context.Context, cfg CatalogConfig) (Writer, error) {
	if cfg.PostgresDSN == "" {
		return NoopWriter{}, nil
	}
	return NewPostgresWriter(ctx, cfg)
}

// NoopWriter discards every record.
type NoopWriter struct{}

func (NoopWriter) StartRun(context.Context, RunRecord) error { return nil }
func (NoopWriter) RecordTable(context.Context, TableRecord) error { return nil }
func (NoopWriter) RecordQuality(context.Context, QualityRecord) error { return nil }
func (NoopWriter) FinishRun(context.Context, string, error) error { return nil }
func (NoopWriter) LastTable(context.Context, string) (*TableRecord, error) {
	return nil, nil
}
func (NoopWriter) Close() error { return nil }

var _ Writer = NoopWriter{}
