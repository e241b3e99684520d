package tables

import (
	"context"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/frame"
)

// ResolveUsers returns the current profile of every user: the fields of the
// event(s) carrying that user's maximum timestamp.
//
// When several events share a user's maximum timestamp, each of them yields
// a snapshot, so the result may hold more than one row for that user. No
// tie-break is applied.
func ResolveUsers(ctx context.Context, p frame.Pool, events []EventRecord) ([]UserSnapshot, error) {
	latest, err := frame.GroupMax(ctx, p, events,
		func(e EventRecord) string { return e.UserID },
		func(e EventRecord) int64 { return e.Ts })
	if err != nil {
		return nil, err
	}

	current, err := frame.Filter(ctx, p, events, func(e EventRecord) bool {
		return e.Ts == latest[e.UserID]
	})
	if err != nil {
		return nil, err
	}

	return frame.Project(ctx, p, current, NewUserSnapshot)
}

// NewUserSnapshot projects the user profile fields of an event.
func NewUserSnapshot(e EventRecord) UserSnapshot {
	return UserSnapshot{
		UserID:    e.UserID,
		FirstName: e.FirstName,
		LastName:  e.LastName,
		Gender:    e.Gender,
		Level:     e.Level,
		LastSeen:  e.Timestamp,
	}
}
