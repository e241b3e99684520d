package tables

import (
	"context"
	"testing"
	"time"

	"github.com/withObsrvr/obsrvr-songplay-lake/internal/frame"
)

func strPtr(s string) *string { return &s }

func testPool() frame.Pool {
	return frame.Pool{Workers: 3, ChunkSize: 2}
}

func play(user string, ts int64, song string) EventRecord {
	e := EventRecord{
		Page:      DefaultPlayPage,
		UserID:    user,
		Ts:        ts,
		Level:     "free",
		SessionID: 42,
		FirstName: strPtr("First" + user),
		Location:  strPtr("Somewhere, CA"),
		UserAgent: strPtr("Mozilla/5.0"),
	}
	if song != "" {
		e.Song = strPtr(song)
	}
	return e
}

func TestExtractTracksAndArtists(t *testing.T) {
	lat := 35.14968
	songs := []SongRecord{
		{SongID: "SG1", Title: "Song A", ArtistID: "AR1", ArtistName: "Artist One", ArtistLatitude: &lat, Year: 2020, Duration: 210.5},
		{SongID: "SG2", Title: "Song B", ArtistID: "AR1", ArtistName: "Artist One", ArtistLatitude: &lat, Year: 0, Duration: 100},
		{SongID: "SG2", Title: "Song B", ArtistID: "AR1", ArtistName: "Artist One", Year: 0, Duration: 100},
	}

	ctx := context.Background()
	tracks, err := ExtractTracks(ctx, testPool(), songs)
	if err != nil {
		t.Fatalf("ExtractTracks failed: %v", err)
	}
	if len(tracks) != len(songs) {
		t.Fatalf("got %d tracks, want %d (no dedup)", len(tracks), len(songs))
	}
	want := TrackRecord{SongID: "SG1", Title: "Song A", ArtistID: "AR1", Year: 2020, Duration: 210.5}
	if tracks[0] != want {
		t.Errorf("tracks[0] = %+v, want %+v", tracks[0], want)
	}

	artists, err := ExtractArtists(ctx, testPool(), songs)
	if err != nil {
		t.Fatalf("ExtractArtists failed: %v", err)
	}
	if len(artists) != 3 {
		t.Fatalf("got %d artists, want 3 (no dedup)", len(artists))
	}
	if artists[0].Name != "Artist One" || artists[0].Latitude == nil || *artists[0].Latitude != lat {
		t.Errorf("artists[0] = %+v", artists[0])
	}
	if artists[2].Latitude != nil {
		t.Error("missing latitude should stay nil")
	}
}

func TestNormalizeEvents(t *testing.T) {
	events := []EventRecord{
		play("10", 1700000000000, "Song A"),
		{Page: "Home", UserID: "10", Ts: 1700000001000},
		{Page: "Logout", UserID: "11", Ts: 1700000002000},
		play("11", 1700000003000, ""),
		{Page: "nextsong", UserID: "12", Ts: 1700000004000},
	}

	got, err := NormalizeEvents(context.Background(), testPool(), events, DefaultPlayPage, nil)
	if err != nil {
		t.Fatalf("NormalizeEvents failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	for _, e := range got {
		if e.Page != DefaultPlayPage {
			t.Errorf("non-play event survived: %+v", e)
		}
		if e.Timestamp.IsZero() {
			t.Errorf("timestamp not derived for ts %d", e.Ts)
		}
	}

	want := time.Date(2023, time.November, 14, 22, 13, 20, 0, time.UTC)
	if !got[0].Timestamp.Equal(want) || got[0].Timestamp.Location() != time.UTC {
		t.Errorf("Timestamp = %v, want %v", got[0].Timestamp, want)
	}
	if got[1].Song != nil {
		t.Error("event without a song should be kept with a nil song")
	}
}

func TestDeriveTimestampsKeepsMilliseconds(t *testing.T) {
	events := []EventRecord{{Page: DefaultPlayPage, Ts: 1541903636796}}
	got, err := DeriveTimestamps(context.Background(), testPool(), events, time.UTC)
	if err != nil {
		t.Fatalf("DeriveTimestamps failed: %v", err)
	}
	if ms := got[0].Timestamp.Nanosecond() / int(time.Millisecond); ms != 796 {
		t.Errorf("millisecond part = %d, want 796", ms)
	}
}

func TestNewTimeRecord(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want TimeRecord
	}{
		{
			name: "wednesday afternoon",
			t:    time.Date(2023, 11, 15, 14, 30, 0, 0, time.UTC),
			want: TimeRecord{Hour: 14, Day: 15, Week: 46, Month: 11, Year: 2023, Weekday: 4},
		},
		{
			name: "sunday",
			t:    time.Date(2018, 11, 4, 0, 0, 0, 0, time.UTC),
			want: TimeRecord{Hour: 0, Day: 4, Week: 44, Month: 11, Year: 2018, Weekday: 1},
		},
		{
			name: "saturday",
			t:    time.Date(2018, 11, 10, 23, 59, 59, 0, time.UTC),
			want: TimeRecord{Hour: 23, Day: 10, Week: 45, Month: 11, Year: 2018, Weekday: 7},
		},
		{
			name: "iso week belongs to next year",
			t:    time.Date(2018, 12, 31, 8, 0, 0, 0, time.UTC),
			want: TimeRecord{Hour: 8, Day: 31, Week: 1, Month: 12, Year: 2018, Weekday: 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewTimeRecord(tt.t)
			tt.want.StartTime = tt.t
			if got != tt.want {
				t.Errorf("NewTimeRecord(%v) = %+v, want %+v", tt.t, got, tt.want)
			}
		})
	}
}

func TestBuildTimeKeepsDuplicates(t *testing.T) {
	events := []EventRecord{
		play("1", 1700000000000, "a"),
		play("2", 1700000000000, "b"),
		play("3", 1700000060000, "c"),
	}
	events, err := DeriveTimestamps(context.Background(), testPool(), events, time.UTC)
	if err != nil {
		t.Fatalf("DeriveTimestamps failed: %v", err)
	}

	rows, err := BuildTime(context.Background(), testPool(), events)
	if err != nil {
		t.Fatalf("BuildTime failed: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d time rows, want 3", len(rows))
	}
	if !rows[0].StartTime.Equal(rows[1].StartTime) {
		t.Error("events sharing a timestamp should produce repeated rows")
	}
}

func TestResolveUsers(t *testing.T) {
	events := []EventRecord{
		play("10", 1000, "a"),
		play("10", 3000, "b"),
		play("11", 2000, "c"),
		play("10", 2000, "d"),
	}
	events[1].Level = "paid"

	events, err := DeriveTimestamps(context.Background(), testPool(), events, time.UTC)
	if err != nil {
		t.Fatalf("DeriveTimestamps failed: %v", err)
	}

	users, err := ResolveUsers(context.Background(), testPool(), events)
	if err != nil {
		t.Fatalf("ResolveUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d snapshots, want 2: %+v", len(users), users)
	}

	byID := make(map[string]UserSnapshot)
	for _, u := range users {
		byID[u.UserID] = u
	}
	if byID["10"].Level != "paid" {
		t.Errorf("user 10 level = %q, want paid (latest event)", byID["10"].Level)
	}
	if !byID["10"].LastSeen.Equal(time.UnixMilli(3000)) {
		t.Errorf("user 10 LastSeen = %v", byID["10"].LastSeen)
	}
}

func TestResolveUsersTiesYieldDuplicates(t *testing.T) {
	events := []EventRecord{
		play("7", 5000, "a"),
		play("7", 5000, "b"),
		play("7", 4000, "c"),
	}
	events[0].Level = "free"
	events[1].Level = "paid"

	users, err := ResolveUsers(context.Background(), testPool(), events)
	if err != nil {
		t.Fatalf("ResolveUsers failed: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("got %d snapshots, want 2 for a tie at the maximum", len(users))
	}
	if users[0].Level != "free" || users[1].Level != "paid" {
		t.Errorf("tied snapshots = %+v", users)
	}
}

func TestBuildSongplaysEndToEnd(t *testing.T) {
	ctx := context.Background()
	songs := []SongRecord{{SongID: "SG1", Title: "Song A", ArtistID: "AR1", Year: 2020, Duration: 210.5}}
	raw := []EventRecord{play("10", 1700000000000, "Song A")}

	tracks, err := ExtractTracks(ctx, testPool(), songs)
	if err != nil {
		t.Fatalf("ExtractTracks failed: %v", err)
	}
	events, err := NormalizeEvents(ctx, testPool(), raw, DefaultPlayPage, time.UTC)
	if err != nil {
		t.Fatalf("NormalizeEvents failed: %v", err)
	}

	facts, err := BuildSongplays(ctx, testPool(), events, tracks)
	if err != nil {
		t.Fatalf("BuildSongplays failed: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("got %d facts, want 1", len(facts))
	}

	f := facts[0]
	if f.SongID == nil || *f.SongID != "SG1" {
		t.Errorf("SongID = %v, want SG1", f.SongID)
	}
	if f.ArtistID == nil || *f.ArtistID != "AR1" {
		t.Errorf("ArtistID = %v, want AR1", f.ArtistID)
	}
	if f.Year != 2023 || f.Month != 11 {
		t.Errorf("year/month = %d/%d, want 2023/11", f.Year, f.Month)
	}
	if f.UserID != "10" || f.SongplayID != 0 {
		t.Errorf("fact = %+v", f)
	}
}

func TestBuildSongplaysMatchMultiplicity(t *testing.T) {
	tracks := []TrackRecord{
		{SongID: "SG1", Title: "Intro", ArtistID: "AR1"},
		{SongID: "SG2", Title: "Intro", ArtistID: "AR2"},
		{SongID: "SG3", Title: "Outro", ArtistID: "AR3"},
	}
	events := []EventRecord{
		play("1", 1700000000000, "Intro"),
		play("2", 1700000001000, "Unknown"),
		play("3", 1700000002000, ""),
		play("4", 1700000003000, "Outro"),
		play("5", 1700000004000, "intro"),
	}

	facts, err := BuildSongplays(context.Background(), testPool(), events, tracks)
	if err != nil {
		t.Fatalf("BuildSongplays failed: %v", err)
	}

	// Intro matches two tracks; the rest yield one row each.
	if len(facts) != 6 {
		t.Fatalf("got %d facts, want 6", len(facts))
	}
	if *facts[0].SongID != "SG1" || *facts[1].SongID != "SG2" {
		t.Errorf("multi-match rows = %v, %v", *facts[0].SongID, *facts[1].SongID)
	}
	if facts[2].SongID != nil || facts[2].ArtistID != nil {
		t.Error("unmatched title should have nil song and artist ids")
	}
	if facts[3].SongID != nil {
		t.Error("event without a song should not match")
	}
	if facts[5].SongID != nil {
		t.Error("join on title is case sensitive")
	}
	if Unmatched(facts) != 3 {
		t.Errorf("Unmatched = %d, want 3", Unmatched(facts))
	}
	for i, f := range facts {
		if f.SongplayID != int64(i) {
			t.Errorf("facts[%d].SongplayID = %d", i, f.SongplayID)
		}
	}
}

func TestTableNames(t *testing.T) {
	names := []string{
		TrackRecord{}.TableName(),
		ArtistRecord{}.TableName(),
		UserSnapshot{}.TableName(),
		TimeRecord{}.TableName(),
		SongplayFact{}.TableName(),
	}
	want := []string{"tracks", "artists", "users", "time", "songplays"}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("table %d = %q, want %q", i, names[i], want[i])
		}
	}
}
