// Package etl runs the songplay pipeline: read the raw track and event
// files, build the five lake tables, and write them to the output root.
package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/audit"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/config"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/frame"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/logging"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/metadata"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/metrics"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/source"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/storage"
)

// Version information (set via ldflags)
var (
	Version = "v0.1.0"
	GitSHA  = "unknown"
)

const producerName = "songplay-etl"

// Session holds everything one run needs. It is opened at the start of a
// run and must be closed on every exit path.
type Session struct {
	cfg     *config.Config
	src     source.RecordSource
	store   storage.Store
	meta    metadata.Writer
	audit   *audit.Emitter
	metrics *metrics.Metrics
	pool    frame.Pool
	loc     *time.Location
	runID   string
	now     func() time.Time
	log     *slog.Logger
}

// Option customizes a Session.
type Option func(*Session)

// WithCatalog records lineage through w instead of the configured catalog.
func WithCatalog(w metadata.Writer) Option {
	return func(s *Session) { s.meta = w }
}

// WithMetrics records run metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithAudit publishes an audit event for every committed run.
func WithAudit(e *audit.Emitter) Option {
	return func(s *Session) { s.audit = e }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(s *Session) { s.runID = id }
}

// WithClock replaces time.Now for manifest and summary timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// NewSession creates a session over an already opened source and store. The
// session takes ownership of both and closes them in Close.
func NewSession(cfg *config.Config, src source.RecordSource, store storage.Store, opts ...Option) (*Session, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	s := &Session{
		cfg:   cfg,
		src:   src,
		store: store,
		meta:  metadata.NoopWriter{},
		pool:  frame.NewPool(cfg.Pipeline.Workers),
		loc:   loc,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.runID == "" {
		s.runID = logging.NewRunID()
	}
	s.log = logging.RunLogger(s.runID, src.URI(""), store.URI("")).With("component", "etl")
	return s, nil
}

// Open builds the source, store and lineage catalog described by cfg and
// returns a session over them. Anything already opened is closed again if a
// later step fails.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*Session, error) {
	src, err := source.NewRecordSource(source.SourceConfig{
		Mode:     cfg.Input.Backend,
		LocalDir: cfg.Input.LocalDir,
		Bucket:   cfg.Input.Bucket,
		Prefix:   cfg.Input.Prefix,
		Endpoint: cfg.Input.Endpoint,
		Region:   cfg.Input.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create source: %w", err)
	}

	store, err := storage.NewStore(storage.StorageConfig{
		Backend:  cfg.Output.Backend,
		LocalDir: cfg.Output.LocalDir,
		Bucket:   cfg.Output.Bucket,
		Prefix:   cfg.Output.Prefix,
		Endpoint: cfg.Output.Endpoint,
		Region:   cfg.Output.Region,
	})
	if err != nil {
		src.Close()
		return nil, fmt.Errorf("create storage: %w", err)
	}

	meta, err := metadata.NewWriter(ctx, metadata.CatalogConfig{PostgresDSN: cfg.Catalog.PostgresDSN})
	if err != nil {
		if cfg.Catalog.Strict {
			src.Close()
			store.Close()
			return nil, fmt.Errorf("open catalog: %w", err)
		}
		slog.Warn("lineage catalog unavailable, continuing without it", "error", err)
		meta = metadata.NoopWriter{}
	}

	emitter, err := audit.NewEmitter(audit.Config{
		Enabled:  cfg.Audit.Enabled,
		Endpoint: cfg.Audit.Endpoint,
		StateDir: cfg.Audit.StateDir,
	})
	if err != nil {
		src.Close()
		store.Close()
		meta.Close()
		return nil, fmt.Errorf("create audit emitter: %w", err)
	}

	s, err := NewSession(cfg, src, store, append([]Option{WithCatalog(meta), WithAudit(emitter)}, opts...)...)
	if err != nil {
		src.Close()
		store.Close()
		meta.Close()
		return nil, err
	}
	return s, nil
}

// RunID returns the id of the session's run.
func (s *Session) RunID() string {
	return s.runID
}

// Close releases the source, store and catalog.
func (s *Session) Close() error {
	return errors.Join(
		s.src.Close(),
		s.store.Close(),
		s.meta.Close(),
	)
}
