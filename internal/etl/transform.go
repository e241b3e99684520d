package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/frame"
	"github.com/withObsrvr/obsrvr-songplay-lake/internal/tables"
)

// Outputs holds the rows of every lake table built by one run, plus the
// normalized play events they were derived from.
type Outputs struct {
	Events    []tables.EventRecord
	Tracks    []tables.TrackRecord
	Artists   []tables.ArtistRecord
	Users     []tables.UserSnapshot
	Time      []tables.TimeRecord
	Songplays []tables.SongplayFact
}

// Transform builds all five tables from the raw song and event records.
// Songplays are joined against the tracks built here, so the tracks table is
// never read back from storage.
func Transform(ctx context.Context, p frame.Pool, songs []tables.SongRecord, events []tables.EventRecord, playPage string, loc *time.Location) (*Outputs, error) {
	var (
		out Outputs
		err error
	)

	if out.Tracks, err = tables.ExtractTracks(ctx, p, songs); err != nil {
		return nil, fmt.Errorf("extract tracks: %w", err)
	}
	if out.Artists, err = tables.ExtractArtists(ctx, p, songs); err != nil {
		return nil, fmt.Errorf("extract artists: %w", err)
	}
	if out.Events, err = tables.NormalizeEvents(ctx, p, events, playPage, loc); err != nil {
		return nil, fmt.Errorf("normalize events: %w", err)
	}
	if out.Users, err = tables.ResolveUsers(ctx, p, out.Events); err != nil {
		return nil, fmt.Errorf("resolve users: %w", err)
	}
	if out.Time, err = tables.BuildTime(ctx, p, out.Events); err != nil {
		return nil, fmt.Errorf("build time: %w", err)
	}
	if out.Songplays, err = tables.BuildSongplays(ctx, p, out.Events, out.Tracks); err != nil {
		return nil, fmt.Errorf("build songplays: %w", err)
	}

	return &out, nil
}
