package mpd

import (
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
)

// EntryKind tells songs, directories and stored playlists apart.
type EntryKind int

const (
	EntrySong EntryKind = iota
	EntryDirectory
	EntryPlaylist
)

func (k EntryKind) String() string {
	switch k {
	case EntrySong:
		return "song"
	case EntryDirectory:
		return "directory"
	case EntryPlaylist:
		return "playlist"
	}
	return "unknown"
}

// MarshalText makes the kind readable in JSON.
func (k EntryKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *EntryKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "song":
		*k = EntrySong
	case "directory":
		*k = EntryDirectory
	case "playlist":
		*k = EntryPlaylist
	default:
		return fmt.Errorf("mpd: unknown entry kind %q", text)
	}
	return nil
}

// Entry is one item of a directory listing.
//
// Name is the Title tag when the daemon sent a non-empty one and the last
// path segment otherwise. Artist and Track are only set for songs: Artist
// is empty without an Artist tag and Track is 0 without a Track tag
// (a "3/12" tag yields 3).
type Entry struct {
	Kind   EntryKind `json:"kind"`
	Path   string    `json:"path"`
	Name   string    `json:"name"`
	Artist string    `json:"artist,omitempty"`
	Track  int       `json:"track,omitempty"`
}

// QueueItem is one song of the play queue. Title follows the same rule as
// Entry.Name. Playing is set for the song the daemon reports as current.
type QueueItem struct {
	ID      int    `json:"id"`
	Pos     int    `json:"pos"`
	File    string `json:"file"`
	Title   string `json:"title"`
	Artist  string `json:"artist,omitempty"`
	Playing bool   `json:"playing"`
}

// record is the run of properties from one boundary key to the next.
type record []Prop

func (r record) get(key string) (string, bool) {
	for _, p := range r {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// groupRecords splits a listing into records. A record opens at every
// boundary key; properties before the first boundary belong to no record
// and are dropped.
func groupRecords(props []Prop, boundaries ...string) []record {
	var records []record
	for _, p := range props {
		if slices.Contains(boundaries, p.Key) {
			records = append(records, record{p})
			continue
		}
		if len(records) == 0 {
			continue
		}
		last := len(records) - 1
		records[last] = append(records[last], p)
	}
	return records
}

func entries(frame *Frame) []Entry {
	records := groupRecords(frame.Props, "file", "directory", "playlist")
	list := make([]Entry, 0, len(records))
	for _, r := range records {
		e := Entry{Path: r[0].Value, Name: displayName(r, r[0].Value)}
		switch r[0].Key {
		case "file":
			e.Kind = EntrySong
			e.Artist, _ = r.get("Artist")
			if track, ok := r.get("Track"); ok {
				e.Track = leadingInt(track)
			}
		case "directory":
			e.Kind = EntryDirectory
		case "playlist":
			e.Kind = EntryPlaylist
		}
		list = append(list, e)
	}
	return list
}

func queueItems(frame *Frame, currentID int) []QueueItem {
	records := groupRecords(frame.Props, "file")
	items := make([]QueueItem, 0, len(records))
	for _, r := range records {
		item := QueueItem{
			ID:    -1,
			Pos:   -1,
			File:  r[0].Value,
			Title: displayName(r, r[0].Value),
		}
		if id, ok := r.get("Id"); ok {
			item.ID = leadingInt(id)
		}
		if pos, ok := r.get("Pos"); ok {
			item.Pos = leadingInt(pos)
		}
		item.Artist, _ = r.get("Artist")
		item.Playing = item.ID >= 0 && item.ID == currentID
		items = append(items, item)
	}
	return items
}

func displayName(r record, uri string) string {
	if title, ok := r.get("Title"); ok && title != "" {
		return title
	}
	return baseName(uri)
}

func baseName(uri string) string {
	uri = strings.TrimSuffix(uri, "/")
	if uri == "" {
		return ""
	}
	return path.Base(uri)
}

// leadingInt parses the digits at the start of s, so "3/12" is 3. It
// returns 0 when there are none.
func leadingInt(s string) int {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, _ := strconv.Atoi(s[:end])
	return n
}
