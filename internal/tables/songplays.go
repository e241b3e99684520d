package tables

import (
	"context"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/frame"
)

// BuildSongplays left-joins play events to tracks on the song title alone.
//
// An event whose title matches no track yields one fact with nil song and
// artist ids. An event whose title matches k tracks yields k facts. Events
// without a song title never match. Songplay ids are assigned sequentially
// from zero in output order.
func BuildSongplays(ctx context.Context, p frame.Pool, events []EventRecord, tracks []TrackRecord) ([]SongplayFact, error) {
	facts, err := frame.LeftJoin(ctx, p, events, tracks,
		func(e EventRecord) (string, bool) {
			if e.Song == nil {
				return "", false
			}
			return *e.Song, true
		},
		func(t TrackRecord) (string, bool) { return t.Title, true },
		newSongplayFact,
	)
	if err != nil {
		return nil, err
	}

	for i := range facts {
		facts[i].SongplayID = int64(i)
	}
	return facts, nil
}

func newSongplayFact(e EventRecord, t *TrackRecord) SongplayFact {
	f := SongplayFact{
		StartTime: e.Timestamp,
		UserID:    e.UserID,
		Level:     e.Level,
		SessionID: e.SessionID,
		Location:  e.Location,
		UserAgent: e.UserAgent,
		Year:      int32(e.Timestamp.Year()),
		Month:     int32(e.Timestamp.Month()),
	}
	if t != nil {
		songID, artistID := t.SongID, t.ArtistID
		f.SongID = &songID
		f.ArtistID = &artistID
	}
	return f
}

// Unmatched counts the facts that found no track.
func Unmatched(facts []SongplayFact) int {
	n := 0
	for _, f := range facts {
		if f.SongID == nil {
			n++
		}
	}
	return n
}
