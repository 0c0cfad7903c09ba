package mpd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gompd "github.com/fhs/gompd/v2/mpd"
)

// Setting is a playback option toggled through status.
type Setting string

const (
	SettingRandom  Setting = "random"
	SettingRepeat  Setting = "repeat"
	SettingConsume Setting = "consume"
	SettingSingle  Setting = "single"
)

func (s Setting) valid() bool {
	switch s {
	case SettingRandom, SettingRepeat, SettingConsume, SettingSingle:
		return true
	}
	return false
}

// AddOptions modify Add.
type AddOptions struct {
	// Replace clears the queue first.
	Replace bool
	// Next inserts right after the current song instead of appending.
	Next bool
	// Play starts playback afterwards.
	Play bool
}

// Client is the typed command API. All commands share one connection
// through Shared; sequences that must not be split by other callers run
// under a single lock acquisition.
//
// Create one Client at startup and pass it to whatever needs it.
type Client struct {
	config Config
	shared *Shared
	logger *slog.Logger
}

// NewClient returns a Client. No connection is made until the first
// command.
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		shared: NewShared(config),
		logger: config.logger().With("address", config.Address),
	}
}

// Shared exposes the underlying lock-guarded connection for commands the
// Client has no method for.
func (c *Client) Shared() *Shared { return c.shared }

// Notifier returns a Notifier using the Client's connection settings.
func (c *Client) Notifier(subsystems ...Subsystem) *Notifier {
	return NewNotifier(c.config, subsystems...)
}

// Close closes the shared connection.
func (c *Client) Close() error { return c.shared.Close() }

func (c *Client) run(ctx context.Context, command string) error {
	_, err := c.shared.Execute(ctx, command)
	return err
}

// Enqueue appends uri (a song or a whole directory) to the queue.
func (c *Client) Enqueue(ctx context.Context, uri string) error {
	return c.run(ctx, Command("add", uri))
}

// EnqueueNext inserts uri right after the current song.
func (c *Client) EnqueueNext(ctx context.Context, uri string) error {
	return c.run(ctx, Command("add", uri, "+0"))
}

// Add queues uri as directed by opts in one uninterrupted sequence.
func (c *Client) Add(ctx context.Context, uri string, opts AddOptions) error {
	return c.shared.WithLock(ctx, func(conn *Conn) error {
		if opts.Replace {
			if _, err := conn.Execute(ctx, "clear"); err != nil {
				return err
			}
		}
		add := Command("add", uri)
		if opts.Next {
			add = Command("add", uri, "+0")
		}
		if _, err := conn.Execute(ctx, add); err != nil {
			return err
		}
		if opts.Play {
			if _, err := conn.Execute(ctx, "play"); err != nil {
				return err
			}
		}
		return nil
	})
}

func (c *Client) Play(ctx context.Context) error     { return c.run(ctx, "play") }
func (c *Client) Pause(ctx context.Context) error    { return c.run(ctx, Command("pause", true)) }
func (c *Client) Previous(ctx context.Context) error { return c.run(ctx, "previous") }
func (c *Client) Next(ctx context.Context) error     { return c.run(ctx, "next") }

// Shuffle shuffles the queue once. It is not the random setting.
func (c *Client) Shuffle(ctx context.Context) error { return c.run(ctx, "shuffle") }

// ClearQueue removes every song from the queue.
func (c *Client) ClearQueue(ctx context.Context) error { return c.run(ctx, "clear") }

// RemoveByID removes the queued song with the given song id.
func (c *Client) RemoveByID(ctx context.Context, id int) error {
	return c.run(ctx, Command("deleteid", id))
}

// Move moves the song at queue position from to position to.
func (c *Client) Move(ctx context.Context, from, to int) error {
	return c.run(ctx, Command("move", from, to))
}

// ToggleSetting reads the current value of setting and writes its
// inverse, without letting another caller in between.
func (c *Client) ToggleSetting(ctx context.Context, setting Setting) error {
	if !setting.valid() {
		return fmt.Errorf("mpd: unknown setting %q", setting)
	}
	return c.shared.WithLock(ctx, func(conn *Conn) error {
		status, err := conn.Execute(ctx, "status")
		if err != nil {
			return err
		}
		value, _ := status.Get(string(setting))
		on := !settingOn(value)
		if _, err := conn.Execute(ctx, Command(string(setting), on)); err != nil {
			return err
		}
		c.logger.Debug("setting toggled", "setting", setting, "on", on)
		return nil
	})
}

// ListDirectory lists the songs, directories and playlists directly under
// uri. The empty uri is the library root.
func (c *Client) ListDirectory(ctx context.Context, uri string) ([]Entry, error) {
	frame, err := c.shared.Execute(ctx, Command("lsinfo", uri))
	if err != nil {
		return nil, err
	}
	return entries(frame), nil
}

// QueueSnapshot lists the queue, marking the song currently playing.
func (c *Client) QueueSnapshot(ctx context.Context) ([]QueueItem, error) {
	var items []QueueItem
	err := c.shared.WithLock(ctx, func(conn *Conn) error {
		status, err := conn.Execute(ctx, "status")
		if err != nil {
			return err
		}
		currentID := -1
		if songID, ok := status.Get("songid"); ok {
			currentID = leadingInt(songID)
		}

		queue, err := conn.Execute(ctx, "playlistinfo")
		if err != nil {
			return err
		}
		items = queueItems(queue, currentID)
		return nil
	})
	return items, err
}

// Status returns the daemon's status properties.
func (c *Client) Status(ctx context.Context) (gompd.Attrs, error) {
	frame, err := c.shared.Execute(ctx, "status")
	if err != nil {
		return nil, err
	}
	return frame.Attrs(), nil
}

// CurrentSong returns the tags of the current song, empty when there is
// none.
func (c *Client) CurrentSong(ctx context.Context) (gompd.Attrs, error) {
	frame, err := c.shared.Execute(ctx, "currentsong")
	if err != nil {
		return nil, err
	}
	return frame.Attrs(), nil
}

// Player returns the current song and status as one consistent snapshot.
func (c *Client) Player(ctx context.Context) (*Player, error) {
	var player *Player
	err := c.shared.WithLock(ctx, func(conn *Conn) error {
		song, err := conn.Execute(ctx, "currentsong")
		if err != nil {
			return err
		}
		status, err := conn.Execute(ctx, "status")
		if err != nil {
			return err
		}
		player = newPlayer(song.Attrs(), status.Attrs())
		return nil
	})
	return player, err
}

// FetchArtwork returns the cover for the song at uri: the image file next
// to it (albumart) or, failing that, the picture embedded in it
// (readpicture). It returns ErrNotFound when there is neither.
//
// The lock is taken per chunk, so other callers are not held up for the
// whole transfer.
func (c *Client) FetchArtwork(ctx context.Context, uri string) ([]byte, error) {
	data, err := FetchBinary(ctx, c.shared, "albumart", uri)
	if errors.Is(err, ErrNotFound) {
		data, err = FetchBinary(ctx, c.shared, "readpicture", uri)
	}
	return data, err
}
