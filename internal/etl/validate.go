package etl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/metadata"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/storage"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/tables"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/writer"
)

// ErrValidation is returned by a run whose outputs failed a check.
var ErrValidation = errors.New("output validation failed")

// Check names.
const (
	CheckPlayOnly       = "play_only_events"
	CheckUsersLatest    = "users_at_latest_event"
	CheckTimeConsistent = "time_matches_start_time"
	CheckSongplayCount  = "songplay_count"
	CheckStoredPrefix   = "stored_"
)

// CheckResult is the outcome of one named check.
type CheckResult struct {
	Name    string
	Passed  bool
	Message string
}

// ValidationResult contains the outcome of output validation.
type ValidationResult struct {
	Passed   bool
	Errors   []string
	Warnings []string
	Checks   []CheckResult
}

func newValidationResult() ValidationResult {
	return ValidationResult{Passed: true}
}

func (r *ValidationResult) record(name string, problems []string) {
	res := CheckResult{Name: name, Passed: len(problems) == 0}
	if !res.Passed {
		res.Message = strings.Join(problems, "; ")
		r.Errors = append(r.Errors, name+": "+res.Message)
		r.Passed = false
	}
	r.Checks = append(r.Checks, res)
}

func (r *ValidationResult) merge(other ValidationResult) {
	r.Passed = r.Passed && other.Passed
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Checks = append(r.Checks, other.Checks...)
}

// Err returns ErrValidation wrapping the failed checks, or nil.
func (r ValidationResult) Err() error {
	if r.Passed {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrValidation, strings.Join(r.Errors, "; "))
}

// QualityRecords converts the checks to catalog records for runID.
func (r ValidationResult) QualityRecords(runID string) []metadata.QualityRecord {
	recs := make([]metadata.QualityRecord, len(r.Checks))
	for i, c := range r.Checks {
		recs[i] = metadata.QualityRecord{
			RunID:        runID,
			Check:        c.Name,
			Passed:       c.Passed,
			ErrorMessage: c.Message,
		}
	}
	return recs
}

// CheckTables runs the in-memory checks over a run's outputs:
//   - every normalized event is a play
//   - every user with an event has a snapshot, taken at their latest event
//   - every time row matches the attributes of its start_time
//   - there are at least as many songplays as events
func CheckTables(out *Outputs, playPage string) ValidationResult {
	result := newValidationResult()

	// Check 1: play-only events
	var problems []string
	nonPlays := 0
	for _, e := range out.Events {
		if e.Page != playPage {
			nonPlays++
		}
	}
	if nonPlays > 0 {
		problems = append(problems, fmt.Sprintf("%d events with page other than %q", nonPlays, playPage))
	}
	result.record(CheckPlayOnly, problems)

	// Check 2: users at their latest event
	problems = nil
	latest := make(map[string]time.Time)
	for _, e := range out.Events {
		if cur, ok := latest[e.UserID]; !ok || e.Timestamp.After(cur) {
			latest[e.UserID] = e.Timestamp
		}
	}
	seen := make(map[string]bool, len(latest))
	for _, u := range out.Users {
		seen[u.UserID] = true
		want, ok := latest[u.UserID]
		if !ok {
			problems = append(problems, fmt.Sprintf("user %q has no play events", u.UserID))
			continue
		}
		if !u.LastSeen.Equal(want) {
			problems = append(problems, fmt.Sprintf("user %q snapshot at %s, latest event at %s",
				u.UserID, u.LastSeen.Format(time.RFC3339Nano), want.Format(time.RFC3339Nano)))
		}
	}
	for id := range latest {
		if !seen[id] {
			problems = append(problems, fmt.Sprintf("user %q has no snapshot", id))
		}
	}
	result.record(CheckUsersLatest, problems)

	// Check 3: time rows agree with start_time
	problems = nil
	if len(out.Time) != len(out.Events) {
		problems = append(problems, fmt.Sprintf("%d time rows for %d events", len(out.Time), len(out.Events)))
	}
	for _, row := range out.Time {
		if want := tables.NewTimeRecord(row.StartTime); row != want {
			problems = append(problems, fmt.Sprintf("time row %s has %+v, want %+v",
				row.StartTime.Format(time.RFC3339Nano), row, want))
			break
		}
	}
	result.record(CheckTimeConsistent, problems)

	// Check 4: songplay count
	problems = nil
	if len(out.Songplays) < len(out.Events) {
		problems = append(problems, fmt.Sprintf("%d songplays for %d events", len(out.Songplays), len(out.Events)))
	}
	result.record(CheckSongplayCount, problems)

	if n := tables.Unmatched(out.Songplays); n > 0 {
		result.Warnings = append(result.Warnings, fmt.Sprintf("%d songplays matched no track", n))
	}
	if len(out.Tracks) == 0 {
		result.Warnings = append(result.Warnings, "tracks table is empty")
	}

	return result
}

// VerifyTables checks every written table against its manifest and the
// number of rows the run produced for it.
func VerifyTables(ctx context.Context, store storage.Store, out *Outputs) ValidationResult {
	result := newValidationResult()

	expected := []struct {
		table string
		rows  int
	}{
		{tables.TracksTable, len(out.Tracks)},
		{tables.ArtistsTable, len(out.Artists)},
		{tables.UsersTable, len(out.Users)},
		{tables.TimeTable, len(out.Time)},
		{tables.SongplaysTable, len(out.Songplays)},
	}

	for _, e := range expected {
		var problems []string
		m, err := writer.Verify(ctx, store, e.table)
		switch {
		case err != nil:
			problems = append(problems, err.Error())
		case m.RowCount != int64(e.rows):
			problems = append(problems, fmt.Sprintf("manifest has %d rows, run produced %d", m.RowCount, e.rows))
		}
		result.record(CheckStoredPrefix+e.table, problems)
	}

	return result
}
