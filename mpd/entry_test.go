package mpd

import (
	"reflect"
	"testing"
)

func TestGroupRecords(t *testing.T) {
	props := []Prop{
		{"updating_db", "3"},
		{"file", "a.mp3"},
		{"Title", "Song A"},
		{"file", "b.mp3"},
		{"directory", "Sub"},
		{"Last-Modified", "2024-01-01T00:00:00Z"},
	}
	got := groupRecords(props, "file", "directory", "playlist")
	want := []record{
		{{"file", "a.mp3"}, {"Title", "Song A"}},
		{{"file", "b.mp3"}},
		{{"directory", "Sub"}, {"Last-Modified", "2024-01-01T00:00:00Z"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("groupRecords = %v, want %v", got, want)
	}
}

func TestEntries(t *testing.T) {
	frame := &Frame{Props: []Prop{
		{"file", "Artist/Album/01 Intro.flac"},
		{"Title", "Intro"},
		{"Artist", "Someone"},
		{"Track", "1/12"},
		{"file", "Artist/Album/02 Untitled.flac"},
		{"Title", ""},
		{"directory", "Artist/Album/Scans"},
		{"playlist", "Artist/Album/album.m3u"},
	}}
	want := []Entry{
		{Kind: EntrySong, Path: "Artist/Album/01 Intro.flac", Name: "Intro", Artist: "Someone", Track: 1},
		{Kind: EntrySong, Path: "Artist/Album/02 Untitled.flac", Name: "02 Untitled.flac"},
		{Kind: EntryDirectory, Path: "Artist/Album/Scans", Name: "Scans"},
		{Kind: EntryPlaylist, Path: "Artist/Album/album.m3u", Name: "album.m3u"},
	}
	if got := entries(frame); !reflect.DeepEqual(got, want) {
		t.Errorf("entries =\n%+v\nwant\n%+v", got, want)
	}
}

func TestQueueItems(t *testing.T) {
	frame := &Frame{Props: []Prop{
		{"file", "a.flac"},
		{"Title", "A"},
		{"Artist", "X"},
		{"Pos", "0"},
		{"Id", "7"},
		{"file", "dir/b.flac"},
		{"Pos", "1"},
		{"Id", "8"},
	}}
	want := []QueueItem{
		{ID: 7, Pos: 0, File: "a.flac", Title: "A", Artist: "X"},
		{ID: 8, Pos: 1, File: "dir/b.flac", Title: "b.flac", Playing: true},
	}
	if got := queueItems(frame, 8); !reflect.DeepEqual(got, want) {
		t.Errorf("queueItems =\n%+v\nwant\n%+v", got, want)
	}
}

func TestLeadingInt(t *testing.T) {
	tests := map[string]int{
		"3":     3,
		"3/12":  3,
		" 12 ":  12,
		"":      0,
		"x":     0,
		"07abc": 7,
	}
	for in, want := range tests {
		if got := leadingInt(in); got != want {
			t.Errorf("leadingInt(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestPlayerSnapshot(t *testing.T) {
	song := map[string]string{"file": "a/b.flac", "Title": ""}
	status := map[string]string{
		"state":    "play",
		"elapsed":  "30.5",
		"duration": "61.0",
		"volume":   "80",
		"random":   "1",
		"single":   "oneshot",
	}
	p := newPlayer(song, status)
	if p.Name != "a/b.flac" {
		t.Errorf("Name = %q, want file fallback", p.Name)
	}
	if p.Volume != 80 || !p.Random || p.Repeat || !p.Single {
		t.Errorf("flags = %+v", p)
	}
	if p.Progress() != 0.5 {
		t.Errorf("Progress() = %v, want 0.5", p.Progress())
	}

	stopped := newPlayer(map[string]string{}, map[string]string{"state": "stop"})
	if stopped.Song != nil || stopped.Name != "" {
		t.Errorf("stopped player has a song: %+v", stopped)
	}
	if stopped.Progress() != 0 || stopped.Volume != -1 {
		t.Errorf("stopped player = %+v", stopped)
	}
}

func TestEntryKindText(t *testing.T) {
	for _, kind := range []EntryKind{EntrySong, EntryDirectory, EntryPlaylist} {
		text, err := kind.MarshalText()
		if err != nil {
			t.Fatal(err)
		}
		var back EntryKind
		if err := back.UnmarshalText(text); err != nil || back != kind {
			t.Errorf("UnmarshalText(%q) = %v, %v; want %v", text, back, err, kind)
		}
	}
	var k EntryKind
	if err := k.UnmarshalText([]byte("album")); err == nil {
		t.Error("UnmarshalText accepted an unknown kind")
	}
}
