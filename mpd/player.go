package mpd

import (
	"strconv"

	gompd "github.com/fhs/gompd/v2/mpd"
)

// Player is a snapshot of the playback state taken from currentsong and
// status in one exchange.
//
// Song is nil when nothing is queued as current. Name is the song's Title,
// falling back to its file path. Elapsed and Duration are seconds and are
// 0 when the daemon does not report them.
type Player struct {
	State    string      `json:"state"`
	Song     gompd.Attrs `json:"song,omitempty"`
	Name     string      `json:"name,omitempty"`
	Elapsed  float64     `json:"elapsed"`
	Duration float64     `json:"duration"`
	Volume   int         `json:"volume"`
	Random   bool        `json:"random"`
	Repeat   bool        `json:"repeat"`
	Consume  bool        `json:"consume"`
	Single   bool        `json:"single"`
}

// Progress is the elapsed fraction of the current song in [0, 1].
func (p *Player) Progress() float64 {
	if p.Duration <= 0 {
		return 0
	}
	return min(max(p.Elapsed/p.Duration, 0), 1)
}

func newPlayer(song, status gompd.Attrs) *Player {
	p := &Player{
		State:    status["state"],
		Elapsed:  parseFloat(status["elapsed"]),
		Duration: parseFloat(status["duration"]),
		Volume:   -1,
		Random:   settingOn(status["random"]),
		Repeat:   settingOn(status["repeat"]),
		Consume:  settingOn(status["consume"]),
		Single:   settingOn(status["single"]),
	}
	if volume, err := strconv.Atoi(status["volume"]); err == nil {
		p.Volume = volume
	}
	if len(song) > 0 {
		p.Song = song
		p.Name = song["Title"]
		if p.Name == "" {
			p.Name = song["file"]
		}
	}
	return p
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f
}

// settingOn reads a status flag. single may also be "oneshot", which counts
// as on.
func settingOn(value string) bool {
	return value != "" && value != "0"
}
