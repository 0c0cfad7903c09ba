package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/coder/websocket"
	"github.com/gabriel-vasile/mimetype"

	"empede/mpd"
)

// eventSubsystems are pushed to browsers over /sse and /ws.
var eventSubsystems = []mpd.Subsystem{
	mpd.SubsystemPlaylist,
	mpd.SubsystemPlayer,
	mpd.SubsystemDatabase,
	mpd.SubsystemOptions,
}

type server struct {
	client *mpd.Client
	logger *slog.Logger
}

func newServer(client *mpd.Client, logger *slog.Logger) *server {
	return &server{client: client, logger: logger}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /player", s.handlePlayer)
	mux.HandleFunc("GET /queue", s.handleQueue)
	mux.HandleFunc("POST /queue", s.handleAdd)
	mux.HandleFunc("DELETE /queue", s.handleRemove)
	mux.HandleFunc("POST /queue/move", s.handleMove)
	mux.HandleFunc("GET /browser", s.handleBrowser)
	mux.HandleFunc("GET /art", s.handleArt)
	mux.HandleFunc("GET /sse", s.handleSSE)
	mux.HandleFunc("GET /ws", s.handleWS)

	controls := map[string]func(context.Context) error{
		"play":     s.client.Play,
		"pause":    s.client.Pause,
		"previous": s.client.Previous,
		"next":     s.client.Next,
		"shuffle":  s.client.Shuffle,
	}
	for name, fn := range controls {
		mux.HandleFunc("POST /"+name, s.control(fn))
	}
	for _, setting := range []mpd.Setting{mpd.SettingConsume, mpd.SettingRandom, mpd.SettingRepeat, mpd.SettingSingle} {
		mux.HandleFunc("POST /"+string(setting), s.control(func(ctx context.Context) error {
			return s.client.ToggleSetting(ctx, setting)
		}))
	}
	return mux
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

// errorStatus maps core errors to HTTP status codes.
func errorStatus(err error) int {
	var (
		connErr     *mpd.ConnectionError
		protocolErr *mpd.ProtocolError
		serverErr   *mpd.ServerError
	)
	switch {
	case errors.Is(err, mpd.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &connErr), errors.As(err, &protocolErr):
		return http.StatusBadGateway
	case errors.As(err, &serverErr):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		// The client is gone; nobody reads the answer.
		return
	}
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	http.Error(w, err.Error(), status)
}

func (s *server) control(fn func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := fn(r.Context()); err != nil {
			s.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *server) handlePlayer(w http.ResponseWriter, r *http.Request) {
	player, err := s.client.Player(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, struct {
		*mpd.Player
		Progress float64 `json:"progress"`
	}{player, player.Progress()})
}

func (s *server) handleQueue(w http.ResponseWriter, r *http.Request) {
	items, err := s.client.QueueSnapshot(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if items == nil {
		items = []mpd.QueueItem{}
	}
	writeJSON(w, items)
}

func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %q", name, v)
	}
	return b, nil
}

func (s *server) handleAdd(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("path")
	if uri == "" {
		http.Error(w, "Missing path parameter", http.StatusBadRequest)
		return
	}
	var opts mpd.AddOptions
	for name, dst := range map[string]*bool{"replace": &opts.Replace, "next": &opts.Next, "play": &opts.Play} {
		v, err := queryBool(r, name)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		*dst = v
	}

	if err := s.client.Add(r.Context(), uri, opts); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRemove(w http.ResponseWriter, r *http.Request) {
	var err error
	if v := r.URL.Query().Get("id"); v != "" {
		id, convErr := strconv.Atoi(v)
		if convErr != nil {
			http.Error(w, "Invalid id", http.StatusBadRequest)
			return
		}
		err = s.client.RemoveByID(r.Context(), id)
	} else {
		err = s.client.ClearQueue(r.Context())
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveRequest struct {
	From *int `json:"from"`
	To   *int `json:"to"`
}

func (s *server) handleMove(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<10)).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.From == nil || req.To == nil {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return
	}
	if err := s.client.Move(r.Context(), *req.From, *req.To); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type crumb struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// breadcrumbs splits a library path into its ancestors, root first.
func breadcrumbs(p string) []crumb {
	crumbs := []crumb{}
	p = strings.Trim(p, "/")
	if p == "" {
		return crumbs
	}
	for i, segment := range strings.Split(p, "/") {
		parent := ""
		if i > 0 {
			parent = crumbs[i-1].Path
		}
		crumbs = append(crumbs, crumb{Name: segment, Path: path.Join(parent, segment)})
	}
	return crumbs
}

func (s *server) handleBrowser(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	entries, err := s.client.ListDirectory(r.Context(), p)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []mpd.Entry{}
	}
	writeJSON(w, map[string]any{
		"path":    breadcrumbs(p),
		"entries": entries,
	})
}

func (s *server) handleArt(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("path")
	if uri == "" {
		http.Error(w, "Missing path parameter", http.StatusBadRequest)
		return
	}
	data, err := s.client.FetchArtwork(r.Context(), uri)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", mimetype.Detect(data).String())
	w.Header().Set("Cache-Control", "max-age=3600")
	w.Write(data)
}

// handleSSE streams one event per changed subsystem, starting with a
// resync of every subsystem.
func (s *server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := s.client.Notifier(eventSubsystems...).Subscribe(r.Context())
	defer sub.Close()

	for subsystem := range sub.Events() {
		if _, err := fmt.Fprintf(w, "event: %s\ndata:\n\n", subsystem); err != nil {
			return
		}
		flusher.Flush()
	}
	if err := sub.Err(); err != nil {
		s.logger.Warn("sse stream ended", "error", err)
	}
}

// handleWS pushes the same events as handleSSE as WebSocket text messages.
func (s *server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("ws accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Nothing is expected from the browser; CloseRead notices it leaving.
	ctx := conn.CloseRead(r.Context())

	sub := s.client.Notifier(eventSubsystems...).Subscribe(ctx)
	defer sub.Close()

	for subsystem := range sub.Events() {
		if err := conn.Write(ctx, websocket.MessageText, []byte(subsystem)); err != nil {
			s.logger.Debug("ws write failed", "error", err)
			return
		}
	}
	if err := sub.Err(); err != nil {
		s.logger.Warn("ws stream ended", "error", err)
		conn.Close(websocket.StatusInternalError, "mpd connection lost")
		return
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
