package mpd_test

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"sync"
	"testing"

	"empede/internal/mpdtest"
	"empede/mpd"
)

func newClient(t *testing.T, srv *mpdtest.Server) *mpd.Client {
	t.Helper()
	client := mpd.NewClient(testConfig(srv))
	t.Cleanup(func() { client.Close() })
	return client
}

func TestListDirectory(t *testing.T) {
	srv := mpdtest.NewServer(t)
	srv.Reply("lsinfo", "file: a.mp3\nTitle: Song A\nfile: b.mp3\ndirectory: Sub\nOK\n")
	client := newClient(t, srv)

	got, err := client.ListDirectory(context.Background(), "")
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	want := []mpd.Entry{
		{Kind: mpd.EntrySong, Path: "a.mp3", Name: "Song A"},
		{Kind: mpd.EntrySong, Path: "b.mp3", Name: "b.mp3"},
		{Kind: mpd.EntryDirectory, Path: "Sub", Name: "Sub"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ListDirectory =\n%+v\nwant\n%+v", got, want)
	}
	if lines := commands(srv); !reflect.DeepEqual(lines, []string{`lsinfo ""`}) {
		t.Errorf("sent %q", lines)
	}
}

func TestListDirectoryQuotesPath(t *testing.T) {
	srv := mpdtest.NewServer(t)
	args := make(chan []string, 1)
	srv.Handle("lsinfo", func(req *mpdtest.Request) string {
		args <- req.Args
		return mpdtest.OK
	})
	client := newClient(t, srv)

	path := `Guns N' Roses/"Live" Era`
	entries, err := client.ListDirectory(context.Background(), path)
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %v, want none", entries)
	}
	if got := <-args; !reflect.DeepEqual(got, []string{path}) {
		t.Errorf("server saw args %q, want %q", got, path)
	}
}

func TestListDirectoryMissing(t *testing.T) {
	srv := mpdtest.NewServer(t)
	srv.Reply("lsinfo", mpdtest.Ack(mpd.AckErrorNoExist, "lsinfo", "No such directory"))
	client := newClient(t, srv)

	_, err := client.ListDirectory(context.Background(), "nope")
	var serverErr *mpd.ServerError
	if !errors.As(err, &serverErr) || serverErr.Code != mpd.AckErrorNoExist {
		t.Fatalf("error = %v, want ACK 50", err)
	}
	if serverErr.Message != "[50@0] {lsinfo} No such directory" {
		t.Errorf("Message = %q, want the daemon text verbatim", serverErr.Message)
	}
}

// settingServer keeps one boolean setting and serves it through status.
type settingServer struct {
	mu    sync.Mutex
	value bool
}

func (s *settingServer) install(srv *mpdtest.Server, name string) {
	srv.Handle("status", func(*mpdtest.Request) string {
		s.mu.Lock()
		defer s.mu.Unlock()
		v := "0"
		if s.value {
			v = "1"
		}
		return mpdtest.Props("volume", "50", name, v, "state", "stop")
	})
	srv.Handle(name, func(req *mpdtest.Request) string {
		s.mu.Lock()
		defer s.mu.Unlock()
		if len(req.Args) != 1 {
			return mpdtest.Ack(mpd.AckErrorArg, name, "wrong number of arguments")
		}
		s.value = req.Args[0] == "1"
		return mpdtest.OK
	})
}

func (s *settingServer) get() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func TestToggleSettingRoundTrip(t *testing.T) {
	for _, setting := range []mpd.Setting{mpd.SettingRandom, mpd.SettingRepeat, mpd.SettingConsume, mpd.SettingSingle} {
		t.Run(string(setting), func(t *testing.T) {
			srv := mpdtest.NewServer(t)
			state := &settingServer{}
			state.install(srv, string(setting))
			client := newClient(t, srv)

			ctx := context.Background()
			if err := client.ToggleSetting(ctx, setting); err != nil {
				t.Fatalf("first toggle: %v", err)
			}
			if !state.get() {
				t.Error("setting still off after one toggle")
			}
			if err := client.ToggleSetting(ctx, setting); err != nil {
				t.Fatalf("second toggle: %v", err)
			}
			if state.get() {
				t.Error("setting not restored after two toggles")
			}

			want := []string{"status", string(setting) + " 1", "status", string(setting) + " 0"}
			if got := commands(srv); !reflect.DeepEqual(got, want) {
				t.Errorf("sent %q, want %q", got, want)
			}
		})
	}
}

func TestToggleSettingUnknown(t *testing.T) {
	srv := mpdtest.NewServer(t)
	client := newClient(t, srv)

	if err := client.ToggleSetting(context.Background(), mpd.Setting("crossfade")); err == nil {
		t.Fatal("ToggleSetting accepted an unknown setting")
	}
	if srv.Connections() != 0 {
		t.Error("unknown setting reached the daemon")
	}
}

func TestQueueSnapshot(t *testing.T) {
	srv := mpdtest.NewServer(t)
	srv.Reply("status", mpdtest.Props("state", "play", "song", "1", "songid", "12"))
	srv.Reply("playlistinfo", mpdtest.Props(
		"file", "x/one.flac",
		"Title", "One",
		"Pos", "0",
		"Id", "11",
		"file", "x/two.flac",
		"Artist", "Band",
		"Pos", "1",
		"Id", "12",
	))
	client := newClient(t, srv)

	got, err := client.QueueSnapshot(context.Background())
	if err != nil {
		t.Fatalf("QueueSnapshot: %v", err)
	}
	want := []mpd.QueueItem{
		{ID: 11, Pos: 0, File: "x/one.flac", Title: "One"},
		{ID: 12, Pos: 1, File: "x/two.flac", Title: "two.flac", Artist: "Band", Playing: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("QueueSnapshot =\n%+v\nwant\n%+v", got, want)
	}
}

func TestQueueSnapshotStopped(t *testing.T) {
	srv := mpdtest.NewServer(t)
	srv.Reply("status", mpdtest.Props("state", "stop"))
	srv.Reply("playlistinfo", mpdtest.Props("file", "a.flac", "Pos", "0", "Id", "0"))
	client := newClient(t, srv)

	got, err := client.QueueSnapshot(context.Background())
	if err != nil {
		t.Fatalf("QueueSnapshot: %v", err)
	}
	if len(got) != 1 || got[0].Playing {
		t.Errorf("QueueSnapshot = %+v, want one item not playing", got)
	}
}

func TestAdd(t *testing.T) {
	tests := []struct {
		name string
		opts mpd.AddOptions
		want []string
	}{
		{"append", mpd.AddOptions{}, []string{`add "Album"`}},
		{"next", mpd.AddOptions{Next: true}, []string{`add "Album" "+0"`}},
		{"replace and play", mpd.AddOptions{Replace: true, Play: true}, []string{"clear", `add "Album"`, "play"}},
		{"next and play", mpd.AddOptions{Next: true, Play: true}, []string{`add "Album" "+0"`, "play"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := mpdtest.NewServer(t)
			for _, name := range []string{"clear", "add", "play"} {
				srv.Reply(name, mpdtest.OK)
			}
			client := newClient(t, srv)

			if err := client.Add(context.Background(), "Album", tt.opts); err != nil {
				t.Fatalf("Add: %v", err)
			}
			if got := commands(srv); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("sent %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAddStopsAtFirstFailure(t *testing.T) {
	srv := mpdtest.NewServer(t)
	srv.Reply("clear", mpdtest.OK)
	srv.Reply("add", mpdtest.Ack(mpd.AckErrorNoExist, "add", "No such directory"))
	srv.Reply("play", mpdtest.OK)
	client := newClient(t, srv)

	err := client.Add(context.Background(), "gone", mpd.AddOptions{Replace: true, Play: true})
	if !mpd.IsServerError(err, mpd.AckErrorNoExist) {
		t.Fatalf("error = %v", err)
	}
	if srv.Count("play") != 0 {
		t.Error("play sent after a failed add")
	}
}

func TestTransportCommands(t *testing.T) {
	tests := []struct {
		name string
		call func(*mpd.Client, context.Context) error
		want string
	}{
		{"play", (*mpd.Client).Play, "play"},
		{"pause", (*mpd.Client).Pause, "pause 1"},
		{"previous", (*mpd.Client).Previous, "previous"},
		{"next", (*mpd.Client).Next, "next"},
		{"shuffle", (*mpd.Client).Shuffle, "shuffle"},
		{"clear", (*mpd.Client).ClearQueue, "clear"},
		{"enqueue", func(c *mpd.Client, ctx context.Context) error { return c.Enqueue(ctx, "a b.flac") }, `add "a b.flac"`},
		{"enqueue next", func(c *mpd.Client, ctx context.Context) error { return c.EnqueueNext(ctx, "a.flac") }, `add "a.flac" "+0"`},
		{"remove", func(c *mpd.Client, ctx context.Context) error { return c.RemoveByID(ctx, 42) }, "deleteid 42"},
		{"move", func(c *mpd.Client, ctx context.Context) error { return c.Move(ctx, 3, 0) }, "move 3 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := mpdtest.NewServer(t)
			name, _ := mpdtest.Split(tt.want)
			srv.Reply(name, mpdtest.OK)
			client := newClient(t, srv)

			if err := tt.call(client, context.Background()); err != nil {
				t.Fatalf("call: %v", err)
			}
			if got := commands(srv); !reflect.DeepEqual(got, []string{tt.want}) {
				t.Errorf("sent %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFetchArtwork(t *testing.T) {
	cover := []byte("\x89PNG\r\n\x1a\nfake image data")
	size := strconv.Itoa(len(cover))

	t.Run("albumart", func(t *testing.T) {
		srv := mpdtest.NewServer(t)
		srv.Reply("albumart", mpdtest.Binary(cover, "size", size))
		client := newClient(t, srv)

		got, err := client.FetchArtwork(context.Background(), "a.flac")
		if err != nil {
			t.Fatalf("FetchArtwork: %v", err)
		}
		if string(got) != string(cover) {
			t.Errorf("got %q", got)
		}
		if srv.Count("readpicture") != 0 {
			t.Error("readpicture sent although albumart succeeded")
		}
	})

	t.Run("falls back to readpicture", func(t *testing.T) {
		srv := mpdtest.NewServer(t)
		srv.Reply("albumart", mpdtest.Ack(mpd.AckErrorNoExist, "albumart", "No file exists"))
		srv.Reply("readpicture", mpdtest.Binary(cover, "size", size, "type", "image/png"))
		client := newClient(t, srv)

		got, err := client.FetchArtwork(context.Background(), "a.flac")
		if err != nil {
			t.Fatalf("FetchArtwork: %v", err)
		}
		if string(got) != string(cover) {
			t.Errorf("got %q", got)
		}
	})

	t.Run("none", func(t *testing.T) {
		srv := mpdtest.NewServer(t)
		srv.Reply("albumart", mpdtest.Ack(mpd.AckErrorNoExist, "albumart", "No file exists"))
		srv.Reply("readpicture", mpdtest.OK)
		client := newClient(t, srv)

		got, err := client.FetchArtwork(context.Background(), "a.flac")
		if !errors.Is(err, mpd.ErrNotFound) {
			t.Fatalf("FetchArtwork = %d bytes, %v; want ErrNotFound", len(got), err)
		}
		var connErr *mpd.ConnectionError
		if errors.As(err, &connErr) {
			t.Errorf("not-found reported as a connection error: %v", err)
		}
		if srv.Connections() != 1 {
			t.Errorf("Connections() = %d, want 1", srv.Connections())
		}
	})
}

func TestPlayer(t *testing.T) {
	srv := mpdtest.NewServer(t)
	srv.Reply("currentsong", mpdtest.Props("file", "a/b.flac", "Title", "B", "Artist", "A", "Id", "3"))
	srv.Reply("status", mpdtest.Props(
		"volume", "65",
		"repeat", "1",
		"random", "0",
		"single", "0",
		"consume", "1",
		"state", "pause",
		"elapsed", "15.000",
		"duration", "60.000",
	))
	client := newClient(t, srv)

	player, err := client.Player(context.Background())
	if err != nil {
		t.Fatalf("Player: %v", err)
	}
	if player.State != "pause" || player.Name != "B" || player.Volume != 65 {
		t.Errorf("Player = %+v", player)
	}
	if !player.Repeat || player.Random || !player.Consume || player.Single {
		t.Errorf("settings = %+v", player)
	}
	if player.Progress() != 0.25 {
		t.Errorf("Progress() = %v, want 0.25", player.Progress())
	}
	if player.Song["Artist"] != "A" {
		t.Errorf("Song = %v", player.Song)
	}
	if got := commands(srv); !reflect.DeepEqual(got, []string{"currentsong", "status"}) {
		t.Errorf("sent %q", got)
	}
}
