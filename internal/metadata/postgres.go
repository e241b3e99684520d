package metadata

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

// PostgresWriter implements Writer using PostgreSQL.
type PostgresWriter struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresWriter creates a new PostgreSQL catalog writer.
func NewPostgresWriter(ctx context.Context, cfg CatalogConfig) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("parse DSN: %w", err)
	}

	// Configure connection pool
	poolCfg.MaxConns = 4
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	w := &PostgresWriter{
		pool: pool,
		log:  slog.With("component", "metadata"),
	}

	// Initialize schema
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	w.log.Info("connected to PostgreSQL catalog")
	return w, nil
}

// StartRun registers a run as running.
func (w *PostgresWriter) StartRun(ctx context.Context, rec RunRecord) error {
	query := `
		INSERT INTO _meta_runs (run_id, input_uri, output_uri, producer_version, started_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id) DO NOTHING
	`
	_, err := w.pool.Exec(ctx, query,
		rec.RunID,
		rec.InputURI,
		rec.OutputURI,
		rec.ProducerVersion,
		rec.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// RecordTable writes a lineage record for a committed table.
func (w *PostgresWriter) RecordTable(ctx context.Context, rec TableRecord) error {
	query := `
		INSERT INTO _meta_tables (
			run_id, table_name, partition_by, row_count, byte_size,
			file_count, checksum, storage_uri
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_id, table_name)
		DO UPDATE SET
			row_count = EXCLUDED.row_count,
			byte_size = EXCLUDED.byte_size,
			file_count = EXCLUDED.file_count,
			checksum = EXCLUDED.checksum,
			created_at = NOW()
	`

	partitionBy := rec.PartitionBy
	if partitionBy == nil {
		partitionBy = []string{}
	}

	_, err := w.pool.Exec(ctx, query,
		rec.RunID,
		rec.Table,
		partitionBy,
		rec.RowCount,
		rec.ByteSize,
		rec.FileCount,
		rec.Checksum,
		rec.StorageURI,
	)
	if err != nil {
		return fmt.Errorf("record table: %w", err)
	}

	w.log.Debug("recorded table lineage", "table", rec.Table, "run_id", rec.RunID)
	return nil
}

// RecordQuality records a quality check result.
func (w *PostgresWriter) RecordQuality(ctx context.Context, rec QualityRecord) error {
	query := `
		INSERT INTO _meta_quality (run_id, check_name, passed, error_message)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (run_id, check_name)
		DO UPDATE SET
			passed = EXCLUDED.passed,
			error_message = EXCLUDED.error_message,
			created_at = NOW()
	`

	var errMsg *string
	if rec.ErrorMessage != "" {
		errMsg = &rec.ErrorMessage
	}

	_, err := w.pool.Exec(ctx, query, rec.RunID, rec.Check, rec.Passed, errMsg)
	if err != nil {
		return fmt.Errorf("record quality: %w", err)
	}
	return nil
}

// FinishRun marks a run as succeeded or failed.
func (w *PostgresWriter) FinishRun(ctx context.Context, runID string, runErr error) error {
	query := `
		UPDATE _meta_runs
		SET status = $2, error_message = $3, finished_at = NOW()
		WHERE run_id = $1
	`

	status := "succeeded"
	var errMsg *string
	if runErr != nil {
		status = "failed"
		msg := runErr.Error()
		errMsg = &msg
	}

	if _, err := w.pool.Exec(ctx, query, runID, status, errMsg); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// LastTable returns the latest record of a table from a succeeded run.
func (w *PostgresWriter) LastTable(ctx context.Context, table string) (*TableRecord, error) {
	query := `
		SELECT t.run_id, t.table_name, t.partition_by, t.row_count, t.byte_size,
		       t.file_count, t.checksum, t.storage_uri
		FROM _meta_tables t
		JOIN _meta_runs r ON r.run_id = t.run_id
		WHERE t.table_name = $1 AND r.status = 'succeeded'
		ORDER BY t.created_at DESC
		LIMIT 1
	`

	var rec TableRecord
	err := w.pool.QueryRow(ctx, query, table).Scan(
		&rec.RunID, &rec.Table, &rec.PartitionBy, &rec.RowCount, &rec.ByteSize,
		&rec.FileCount, &rec.Checksum, &rec.StorageURI,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get last table: %w", err)
	}
	return &rec, nil
}

// Close releases database connections.
func (w *PostgresWriter) Close() error {
	w.pool.Close()
	return nil
}

var _ Writer = (*PostgresWriter)(nil)
