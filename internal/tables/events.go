package tables

import (
	"context"
	"time"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/frame"
)

// FilterPlays keeps the events whose page equals playPage.
func FilterPlays(ctx context.Context, p frame.Pool, events []EventRecord, playPage string) ([]EventRecord, error) {
	return frame.Filter(ctx, p, events, func(e EventRecord) bool {
		return e.Page == playPage
	})
}

// DeriveTimestamps sets Timestamp from the epoch-millisecond Ts field,
// expressed in loc. A nil loc means UTC.
func DeriveTimestamps(ctx context.Context, p frame.Pool, events []EventRecord, loc *time.Location) ([]EventRecord, error) {
	if loc == nil {
		loc = time.UTC
	}
	return frame.Project(ctx, p, events, func(e EventRecord) EventRecord {
		e.Timestamp = EventTime(e.Ts, loc)
		return e
	})
}

// EventTime converts an epoch-millisecond value to a time in loc.
func EventTime(ts int64, loc *time.Location) time.Time {
	return time.UnixMilli(ts).In(loc)
}

// NormalizeEvents filters the raw events down to plays and derives their
// timestamps. Records missing optional fields are kept.
func NormalizeEvents(ctx context.Context, p frame.Pool, events []EventRecord, playPage string, loc *time.Location) ([]EventRecord, error) {
	plays, err := FilterPlays(ctx, p, events, playPage)
	if err != nil {
		return nil, err
	}
	return DeriveTimestamps(ctx, p, plays, loc)
}
