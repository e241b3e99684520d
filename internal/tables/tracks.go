package tables

import (
	"context"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/frame"
)

// ExtractTracks projects one TrackRecord per song record. Nothing is filtered
// or deduplicated.
func ExtractTracks(ctx context.Context, p frame.Pool, songs []SongRecord) ([]TrackRecord, error) {
	return frame.Project(ctx, p, songs, NewTrackRecord)
}

// NewTrackRecord selects the track fields of a song record.
func NewTrackRecord(s SongRecord) TrackRecord {
	return TrackRecord{
		SongID:   s.SongID,
		Title:    s.Title,
		ArtistID: s.ArtistID,
		Year:     int32(s.Year),
		Duration: s.Duration,
	}
}

// ExtractArtists projects one ArtistRecord per song record. An artist with
// several songs appears once per song.
func ExtractArtists(ctx context.Context, p frame.Pool, songs []SongRecord) ([]ArtistRecord, error) {
	return frame.Project(ctx, p, songs, NewArtistRecord)
}

// NewArtistRecord selects the artist fields of a song record.
func NewArtistRecord(s SongRecord) ArtistRecord {
	return ArtistRecord{
		ArtistID:  s.ArtistID,
		Name:      s.ArtistName,
		Location:  s.ArtistLocation,
		Latitude:  s.ArtistLatitude,
		Longitude: s.ArtistLongitude,
	}
}
