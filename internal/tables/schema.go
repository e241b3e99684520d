package tables

import (
	"time"
)

// SongRecord is one line of the raw track metadata input.
type SongRecord struct {
	NumSongs        int      `json:"num_songs"`
	SongID          string   `json:"song_id"`
	Title           string   `json:"title"`
	ArtistID        string   `json:"artist_id"`
	ArtistName      string   `json:"artist_name"`
	ArtistLocation  *string  `json:"artist_location"`
	ArtistLatitude  *float64 `json:"artist_latitude"`
	ArtistLongitude *float64 `json:"artist_longitude"`
	Year            int      `json:"year"`
	Duration        float64  `json:"duration"`
}

// EventRecord is one line of the raw listening event log. Timestamp is
// derived from Ts during normalization and is not part of the input.
type EventRecord struct {
	Artist        *string  `json:"artist"`
	Auth          string   `json:"auth"`
	FirstName     *string  `json:"firstName"`
	Gender        *string  `json:"gender"`
	ItemInSession int      `json:"itemInSession"`
	LastName      *string  `json:"lastName"`
	Length        *float64 `json:"length"`
	Level         string   `json:"level"`
	Location      *string  `json:"location"`
	Method        string   `json:"method"`
	Page          string   `json:"page"`
	Registration  *float64 `json:"registration"`
	SessionID     int64    `json:"sessionId"`
	Song          *string  `json:"song"`
	Status        int      `json:"status"`
	Ts            int64    `json:"ts"` // epoch milliseconds
	UserAgent     *string  `json:"userAgent"`
	UserID        string   `json:"userId"`

	Timestamp time.Time `json:"-"`
}

// Output rows. Partition columns are tagged `parquet:"-"`: their values only
// appear in the Hive-style directory names of the written table.

// TrackRecord is a row of the tracks table.
type TrackRecord struct {
	SongID   string  `parquet:"song_id"`
	Title    string  `parquet:"title"`
	ArtistID string  `parquet:"-"`
	Year     int32   `parquet:"-"`
	Duration float64 `parquet:"duration"`
}

// ArtistRecord is a row of the artists table.
type ArtistRecord struct {
	ArtistID  string   `parquet:"artist_id"`
	Name      string   `parquet:"name"`
	Location  *string  `parquet:"location"`
	Latitude  *float64 `parquet:"latitude"`
	Longitude *float64 `parquet:"longitude"`
}

// UserSnapshot is a row of the users table: the profile carried by a user's
// most recent play event.
type UserSnapshot struct {
	UserID    string  `parquet:"user_id"`
	FirstName *string `parquet:"first_name"`
	LastName  *string `parquet:"last_name"`
	Gender    *string `parquet:"gender"`
	Level     string  `parquet:"level"`

	// LastSeen is the timestamp of the event the snapshot was taken from.
	LastSeen time.Time `parquet:"-"`
}

// TimeRecord is a row of the time dimension.
type TimeRecord struct {
	StartTime time.Time `parquet:"start_time,timestamp(millisecond)"`
	Hour      int32     `parquet:"hour"`
	Day       int32     `parquet:"day"`
	Week      int32     `parquet:"week"`
	Month     int32     `parquet:"-"`
	Year      int32     `parquet:"-"`
	Weekday   int32     `parquet:"weekday"` // Sunday=1 ... Saturday=7
}

// SongplayFact is a row of the songplays fact table. SongID and ArtistID are
// nil when the event's song title matched no track.
type SongplayFact struct {
	SongplayID int64     `parquet:"songplay_id"`
	StartTime  time.Time `parquet:"start_time,timestamp(millisecond)"`
	UserID     string    `parquet:"user_id"`
	Level      string    `parquet:"level"`
	SongID     *string   `parquet:"song_id"`
	ArtistID   *string   `parquet:"artist_id"`
	SessionID  int64     `parquet:"session_id"`
	Location   *string   `parquet:"location"`
	UserAgent  *string   `parquet:"user_agent"`
	Year       int32     `parquet:"-"`
	Month      int32     `parquet:"-"`
}

// Table names, also used as the output directory stems.
const (
	TracksTable    = "tracks"
	ArtistsTable   = "artists"
	UsersTable     = "users"
	TimeTable      = "time"
	SongplaysTable = "songplays"
)

// TableName returns the canonical table name.
func (TrackRecord) TableName() string { return TracksTable }

// TableName returns the canonical table name.
func (ArtistRecord) TableName() string { return ArtistsTable }

// TableName returns the canonical table name.
func (UserSnapshot) TableName() string { return UsersTable }

// TableName returns the canonical table name.
func (TimeRecord) TableName() string { return TimeTable }

// TableName returns the canonical table name.
func (SongplayFact) TableName() string { return SongplaysTable }

// SchemaVersion returns the version of the output schema.
// Increment this when making breaking changes.
const SchemaVersion = "1.0.0"

// DefaultPlayPage is the page value of an event that played a track.
const DefaultPlayPage = "NextSong"
