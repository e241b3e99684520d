package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	m := New("test_etl")

	m.AddInput("log_data", 2, 30)
	m.AddInput("log_data", 1, 5)
	m.SetTable("songplays", 35, 4096, 3)
	m.SetUnmatchedSongplays(12)
	m.IncValidationFailure("users_latest")
	m.RunFinished(nil, 3*time.Second)
	m.RunFinished(errors.New("boom"), time.Second)

	if got := testutil.ToFloat64(m.InputRecords.WithLabelValues("log_data")); got != 35 {
		t.Errorf("input records = %v, want 35", got)
	}
	if got := testutil.ToFloat64(m.TableRows.WithLabelValues("songplays")); got != 35 {
		t.Errorf("table rows = %v, want 35", got)
	}
	if got := testutil.ToFloat64(m.UnmatchedSongplays); got != 12 {
		t.Errorf("unmatched = %v, want 12", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("success")); got != 1 {
		t.Errorf("successful runs = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Runs.WithLabelValues("failure")); got != 1 {
		t.Errorf("failed runs = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.AddInput("song_data", 1, 1)
	m.SetTable("tracks", 1, 1, 1)
	m.ObserveStage("read", time.Second)
	m.RunFinished(nil, time.Second)
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New("")
	m.SetTable("users", 96, 2048, 1)

	srv := m.NewServer(":0")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Result().Body)
	if !strings.Contains(string(body), `songplay_etl_table_rows{table="users"} 96`) {
		t.Errorf("metrics output missing table rows:\n%s", body)
	}

	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	if rec.Code != 200 {
		t.Errorf("health status = %d", rec.Code)
	}
}
