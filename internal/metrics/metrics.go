// Package metrics provides Prometheus metrics for the songplay ETL.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for one ETL process. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Input metrics
	InputFiles   *prometheus.CounterVec
	InputRecords *prometheus.CounterVec

	// Table metrics
	TableRows  *prometheus.GaugeVec
	TableBytes *prometheus.GaugeVec
	TableFiles *prometheus.GaugeVec

	// Timing metrics
	StageDuration *prometheus.HistogramVec
	RunDuration   prometheus.Histogram

	// Data quality
	UnmatchedSongplays prometheus.Gauge
	ValidationFailures *prometheus.CounterVec

	// Run outcome
	Runs             *prometheus.CounterVec
	LastRunTimestamp prometheus.Gauge

	// Error metrics
	SourceErrors  *prometheus.CounterVec
	StorageErrors *prometheus.CounterVec
	CatalogErrors prometheus.Counter
}

// New creates the metrics on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "songplay_etl"
	}

	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		InputFiles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "input_files_total",
				Help:      "Total number of raw input files read",
			},
			[]string{"dataset"},
		),
		InputRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "input_records_total",
				Help:      "Total number of raw records decoded",
			},
			[]string{"dataset"},
		),
		TableRows: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "table_rows",
				Help:      "Rows written to each table by the last run",
			},
			[]string{"table"},
		),
		TableBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "table_bytes",
				Help:      "Parquet bytes written to each table by the last run",
			},
			[]string{"table"},
		),
		TableFiles: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "table_files",
				Help:      "Parquet files written to each table by the last run",
			},
			[]string{"table"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "stage_duration_seconds",
				Help:      "Time spent in each pipeline stage",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
			},
			[]string{"stage"},
		),
		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Total time of an ETL run",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1h
			},
		),
		UnmatchedSongplays: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "unmatched_songplays",
				Help:      "Songplays of the last run whose title matched no track",
			},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "validation_failures_total",
				Help:      "Total number of failed output checks",
			},
			[]string{"check"},
		),
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of ETL runs by outcome",
			},
			[]string{"status"},
		),
		LastRunTimestamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful run",
			},
		),
		SourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_errors_total",
				Help:      "Total number of source read errors",
			},
			[]string{"dataset"},
		),
		StorageErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "storage_errors_total",
				Help:      "Total number of storage write errors",
			},
			[]string{"table"},
		),
		CatalogErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "catalog_errors_total",
				Help:      "Total number of lineage catalog errors",
			},
		),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the metrics in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// NewServer returns an HTTP server exposing /metrics and /health.
func (m *Metrics) NewServer(address string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	return &http.Server{
		Addr:              address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// AddInput records the files and records read for a dataset.
func (m *Metrics) AddInput(dataset string, files, records int) {
	if m == nil {
		return
	}
	m.InputFiles.WithLabelValues(dataset).Add(float64(files))
	m.InputRecords.WithLabelValues(dataset).Add(float64(records))
}

// SetTable records the size of a written table.
func (m *Metrics) SetTable(table string, rows, bytes int64, files int) {
	if m == nil {
		return
	}
	m.TableRows.WithLabelValues(table).Set(float64(rows))
	m.TableBytes.WithLabelValues(table).Set(float64(bytes))
	m.TableFiles.WithLabelValues(table).Set(float64(files))
}

// ObserveStage records the duration of a pipeline stage.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetUnmatchedSongplays records the join misses of the last run.
func (m *Metrics) SetUnmatchedSongplays(n int) {
	if m == nil {
		return
	}
	m.UnmatchedSongplays.Set(float64(n))
}

// IncValidationFailure increments the failed check counter.
func (m *Metrics) IncValidationFailure(check string) {
	if m == nil {
		return
	}
	m.ValidationFailures.WithLabelValues(check).Inc()
}

// IncSourceErrors increments the source errors counter.
func (m *Metrics) IncSourceErrors(dataset string) {
	if m == nil {
		return
	}
	m.SourceErrors.WithLabelValues(dataset).Inc()
}

// IncStorageErrors increments the storage errors counter.
func (m *Metrics) IncStorageErrors(table string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(table).Inc()
}

// IncCatalogErrors increments the catalog errors counter.
func (m *Metrics) IncCatalogErrors() {
	if m == nil {
		return
	}
	m.CatalogErrors.Inc()
}

// RunFinished records the outcome and duration of a run.
func (m *Metrics) RunFinished(err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failure"
	} else {
		m.LastRunTimestamp.SetToCurrentTime()
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(d.Seconds())
}
