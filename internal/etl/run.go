package etl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/audit"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/logging"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/metadata"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/source"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/storage"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/tables"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/writer"
)

// Input dataset names, used in logs, metrics and the run summary.
const (
	SongDataset = "song_data"
	LogDataset  = "log_data"
)

// Stats summarizes a run.
type Stats struct {
	RunID     string
	Input     map[string]source.ReadStats
	Tables    map[string]*writer.Result
	Unmatched int

	// Unchanged lists the tables whose content checksum equals the one
	// committed by the previous run.
	Unchanged []string

	Validation *ValidationResult
	Duration   time.Duration
}

// runState is the bookkeeping of one Run call.
type runState struct {
	stats   *Stats
	summary *metadata.RunSummary
}

// Run executes the whole pipeline once:
//  1. read the track metadata and the event log
//  2. build tracks and artists, normalize the events, build users, time
//     and songplays
//  3. check the tables in memory (a failure aborts before any write)
//  4. write each table, replacing its previous contents
//  5. verify the written tables against their manifests
//  6. record lineage, write the run summary and emit the audit event
func (s *Session) Run(ctx context.Context) (stats *Stats, err error) {
	start := time.Now()
	ctx = logging.WithRunID(ctx, s.runID)

	st := &runState{
		stats: &Stats{
			RunID:  s.runID,
			Input:  make(map[string]source.ReadStats),
			Tables: make(map[string]*writer.Result),
		},
		summary: metadata.NewRunSummary(s.runID, s.src.URI(""), s.store.URI(""), s.producer().Name+"@"+Version, s.now()),
	}
	stats = st.stats

	s.log.Info("starting run",
		"workers", s.cfg.Pipeline.Workers,
		"timezone", s.loc.String(),
		"compression", s.cfg.Pipeline.Compression,
	)

	if err := s.catalogErr("start run", s.meta.StartRun(ctx, metadata.RunRecord{
		RunID:           s.runID,
		InputURI:        s.src.URI(""),
		OutputURI:       s.store.URI(""),
		ProducerVersion: s.producer().Name + "@" + Version,
		StartedAt:       s.now().UTC(),
	})); err != nil {
		return stats, err
	}

	defer func() {
		stats.Duration = time.Since(start)
		s.metrics.RunFinished(err, stats.Duration)

		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if ferr := s.meta.FinishRun(fctx, s.runID, err); ferr != nil {
			s.metrics.IncCatalogErrors()
			s.log.Warn("failed to record run outcome", "error", ferr)
		}

		if err != nil {
			s.log.Error("run failed", "error", err, "duration", stats.Duration)
			return
		}
		s.log.Info("run complete",
			"songplays", stats.Tables[tables.SongplaysTable].Manifest.RowCount,
			"unmatched_songplays", stats.Unmatched,
			"unchanged_tables", len(stats.Unchanged),
			"duration", stats.Duration,
		)
	}()

	var songs []tables.SongRecord
	if err := s.stage("read_songs", func() (err error) {
		songs, err = readInput[tables.SongRecord](ctx, s, st, SongDataset, s.cfg.Pipeline.TrackGlob)
		return err
	}); err != nil {
		return stats, err
	}

	var events []tables.EventRecord
	if err := s.stage("read_events", func() (err error) {
		events, err = readInput[tables.EventRecord](ctx, s, st, LogDataset, s.cfg.Pipeline.LogGlob)
		return err
	}); err != nil {
		return stats, err
	}

	var out *Outputs
	if err := s.stage("transform", func() (err error) {
		out, err = Transform(ctx, s.pool, songs, events, s.cfg.Pipeline.PlayPage, s.loc)
		return err
	}); err != nil {
		return stats, err
	}

	stats.Unmatched = tables.Unmatched(out.Songplays)
	st.summary.Unmatched = stats.Unmatched
	s.metrics.SetUnmatchedSongplays(stats.Unmatched)
	s.log.Info("tables built",
		"tracks", len(out.Tracks),
		"artists", len(out.Artists),
		"events", len(out.Events),
		"users", len(out.Users),
		"time", len(out.Time),
		"songplays", len(out.Songplays),
		"unmatched_songplays", stats.Unmatched,
	)

	var validation ValidationResult
	if s.cfg.Pipeline.Validate {
		validation = CheckTables(out, s.cfg.Pipeline.PlayPage)
		stats.Validation = &validation
		if !validation.Passed {
			s.recordQuality(ctx, st, validation)
			return stats, validation.Err()
		}
	}

	if err := s.stage("write", func() error {
		return s.writeAll(ctx, st, out)
	}); err != nil {
		return stats, err
	}

	if s.cfg.Pipeline.Validate {
		validation.merge(VerifyTables(ctx, s.store, out))
		s.recordQuality(ctx, st, validation)
		for _, w := range validation.Warnings {
			s.log.Warn("validation warning", "warning", w)
		}
		if !validation.Passed {
			return stats, validation.Err()
		}
	}

	if err := s.writeSummary(ctx, st); err != nil {
		return stats, err
	}
	s.emitAudit(ctx, st)
	return stats, nil
}

func (s *Session) writeAll(ctx context.Context, st *runState, out *Outputs) error {
	if err := writeTable(ctx, s, st, writer.TracksLayout, out.Tracks); err != nil {
		return err
	}
	if err := writeTable(ctx, s, st, writer.ArtistsLayout, out.Artists); err != nil {
		return err
	}
	if err := writeTable(ctx, s, st, writer.UsersLayout, out.Users); err != nil {
		return err
	}
	if err := writeTable(ctx, s, st, writer.TimeLayout, out.Time); err != nil {
		return err
	}
	return writeTable(ctx, s, st, writer.SongplaysLayout, out.Songplays)
}

func readInput[T any](ctx context.Context, s *Session, st *runState, dataset, pattern string) ([]T, error) {
	recs, rs, err := source.ReadRecords[T](ctx, s.src, pattern, s.cfg.Pipeline.Workers)
	if err != nil {
		s.metrics.IncSourceErrors(dataset)
		return nil, fmt.Errorf("read %s: %w", dataset, err)
	}

	s.metrics.AddInput(dataset, rs.Files, rs.Records)
	st.stats.Input[dataset] = rs
	st.summary.Input[dataset] = metadata.InputSummary{Files: rs.Files, Records: rs.Records}
	s.log.Info("input read", "dataset", dataset, "files", rs.Files, "records", rs.Records)
	return recs, nil
}

func writeTable[T any](ctx context.Context, s *Session, st *runState, layout writer.Layout[T], rows []T) error {
	log := logging.TableLogger(s.log, layout.Table)
	prev := s.previousChecksum(ctx, layout.Table)

	res, err := writer.Write(ctx, s.store, layout, rows, writer.Options{
		RowsPerFile: s.cfg.Pipeline.RowsPerFile,
		Compression: s.cfg.Pipeline.Compression,
		Workers:     s.cfg.Pipeline.Workers,
		Producer:    s.producer(),
		Now:         s.now,
	})
	if err != nil {
		s.metrics.IncStorageErrors(layout.Table)
		return err
	}

	m := res.Manifest
	s.metrics.SetTable(layout.Table, m.RowCount, m.ByteSize, len(m.Files))
	st.stats.Tables[layout.Table] = res

	if prev != "" && prev == m.Checksum {
		log.Info("table unchanged since previous run", "checksum", m.Checksum)
		st.stats.Unchanged = append(st.stats.Unchanged, layout.Table)
	}

	rec := metadata.TableRecord{
		RunID:       s.runID,
		Table:       layout.Table,
		PartitionBy: layout.PartitionBy,
		RowCount:    m.RowCount,
		ByteSize:    m.ByteSize,
		FileCount:   len(m.Files),
		Checksum:    m.Checksum,
		StorageURI:  res.URI,
	}
	st.summary.Tables[layout.Table] = rec
	return s.catalogErr("record table", s.meta.RecordTable(ctx, rec))
}

// previousChecksum returns the content checksum of the table as last
// committed, from its manifest or else from the catalog. It returns "" when
// neither knows the table.
func (s *Session) previousChecksum(ctx context.Context, table string) string {
	m, err := writer.ReadManifest(ctx, s.store, table)
	if err == nil {
		return m.Checksum
	}
	if !errors.Is(err, storage.ErrNotFound) {
		s.log.Debug("previous manifest unreadable", "table", table, "error", err)
	}

	rec, err := s.meta.LastTable(ctx, table)
	if err != nil {
		s.metrics.IncCatalogErrors()
		s.log.Debug("catalog lookup failed", "table", table, "error", err)
		return ""
	}
	if rec == nil {
		return ""
	}
	return rec.Checksum
}

func (s *Session) recordQuality(ctx context.Context, st *runState, result ValidationResult) {
	for _, rec := range result.QualityRecords(s.runID) {
		st.summary.Quality = append(st.summary.Quality, rec)
		if !rec.Passed {
			s.metrics.IncValidationFailure(rec.Check)
			s.log.Error("validation check failed", "check", rec.Check, "error", rec.ErrorMessage)
		}
		if err := s.meta.RecordQuality(ctx, rec); err != nil {
			s.metrics.IncCatalogErrors()
			s.log.Warn("failed to record quality result", "check", rec.Check, "error", err)
		}
	}
}

func (s *Session) writeSummary(ctx context.Context, st *runState) error {
	st.summary.FinishedAt = s.now().UTC()
	data, err := st.summary.Marshal()
	if err != nil {
		return fmt.Errorf("marshal run summary: %w", err)
	}
	if err := s.store.Put(ctx, st.summary.Key(), data); err != nil {
		return fmt.Errorf("write run summary: %w", err)
	}
	return nil
}

// emitAudit publishes the run's table checksums. Audit failures do not fail
// a run whose tables are already committed.
func (s *Session) emitAudit(ctx context.Context, st *runState) {
	if s.audit == nil {
		return
	}

	evt := &audit.Event{
		Timestamp: st.summary.FinishedAt,
		Run: audit.RunInfo{
			RunID:     s.runID,
			InputURI:  st.summary.InputURI,
			OutputURI: st.summary.OutputURI,
		},
		Tables: make(map[string]audit.TableInfo, len(st.summary.Tables)),
		Producer: audit.ProducerInfo{
			Name:    producerName,
			Version: Version,
			GitSHA:  GitSHA,
		},
	}
	for table, rec := range st.summary.Tables {
		evt.Tables[table] = audit.TableInfo{
			Checksum:   rec.Checksum,
			RowCount:   rec.RowCount,
			ByteSize:   rec.ByteSize,
			FileCount:  rec.FileCount,
			StorageURI: rec.StorageURI,
		}
	}

	if err := s.audit.Emit(ctx, evt); err != nil {
		s.log.Warn("failed to emit audit event", "error", err)
	}
}

// stage times fn and records the duration.
func (s *Session) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	d := time.Since(start)

	s.metrics.ObserveStage(name, d)
	s.log.Debug("stage finished", "stage", name, "duration", d, "ok", err == nil)
	return err
}

// catalogErr decides whether a catalog failure ends the run. Outside strict
// mode the catalog is optional and failures are only logged.
func (s *Session) catalogErr(op string, err error) error {
	if err == nil {
		return nil
	}
	s.metrics.IncCatalogErrors()
	if s.cfg.Catalog.Strict {
		return fmt.Errorf("catalog %s: %w", op, err)
	}
	s.log.Warn("catalog write failed", "op", op, "error", err)
	return nil
}

func (s *Session) producer() storage.ProducerInfo {
	return storage.ProducerInfo{
		Name:    producerName,
		Version: Version,
		GitSHA:  GitSHA,
	}
}
