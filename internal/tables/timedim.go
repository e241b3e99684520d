package tables

import (
	"context"
	"time"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/frame"
)

// BuildTime returns one time dimension row per event. Events sharing a
// timestamp produce repeated rows.
func BuildTime(ctx context.Context, p frame.Pool, events []EventRecord) ([]TimeRecord, error) {
	return frame.Project(ctx, p, events, func(e EventRecord) TimeRecord {
		return NewTimeRecord(e.Timestamp)
	})
}

// NewTimeRecord derives the calendar attributes of t in t's location. Week is
// the ISO 8601 week number; Weekday counts from Sunday=1 to Saturday=7.
func NewTimeRecord(t time.Time) TimeRecord {
	_, week := t.ISOWeek()
	return TimeRecord{
		StartTime: t,
		Hour:      int32(t.Hour()),
		Day:       int32(t.Day()),
		Week:      int32(week),
		Month:     int32(t.Month()),
		Year:      int32(t.Year()),
		Weekday:   int32(t.Weekday()) + 1,
	}
}
