package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/config"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/etl"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/logging"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/metrics"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/tables"
)

func main() {
	configPath := flag.String("config", os.Getenv("SONGPLAY_CONFIG"), "path to YAML or JSON config file")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Printf("[main] songplay-etl %s (%s)", etl.Version, etl.GitSHA)

	cfg := config.MustLoad(*configPath)
	logging.Setup(cfg.Logging)

	loadCredentials(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics.Namespace)
		srv := m.NewServer(cfg.Metrics.Address)
		go func() {
			log.Printf("[metrics] listening on %s", cfg.Metrics.Address)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[metrics] server error: %v", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if err := run(ctx, cfg, m); err != nil {
		if ctx.Err() != nil {
			log.Printf("[main] interrupted: %v", err)
		} else {
			log.Printf("[main] run failed: %v", err)
		}
		os.Exit(1)
	}

	log.Println("[main] songplay-etl finished cleanly")
}

// run owns the session so it is closed before main exits.
func run(ctx context.Context, cfg *config.Config, m *metrics.Metrics) error {
	session, err := etl.Open(ctx, cfg, etl.WithMetrics(m))
	if err != nil {
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Printf("[main] close session: %v", err)
		}
	}()

	log.Printf("[main] run %s started", session.RunID())
	stats, err := session.Run(ctx)
	if err != nil {
		return err
	}

	for _, table := range []string{tables.TracksTable, tables.ArtistsTable, tables.UsersTable, tables.TimeTable, tables.SongplaysTable} {
		if res, ok := stats.Tables[table]; ok {
			log.Printf("[main] %-9s rows=%d files=%d uri=%s", table, res.Manifest.RowCount, len(res.Manifest.Files), res.URI)
		}
	}
	log.Printf("[main] unmatched songplays: %d, duration: %s", stats.Unmatched, stats.Duration)
	return nil
}

// loadCredentials exports the [STORAGE] keys. A missing artifact is fatal
// when an S3 backend needs them.
func loadCredentials(cfg *config.Config) {
	creds, err := cfg.LoadRunCredentials()
	if err != nil {
		log.Fatalf("[config] %v", err)
	}
	if creds == nil {
		return
	}
	if err := creds.Export(); err != nil {
		log.Fatalf("[config] %v", err)
	}
	log.Printf("[config] loaded credentials from %s", cfg.CredentialsFile)
}
