// Package mpd is a client for the Music Player Daemon protocol.
//
// The protocol is line based and strictly request/response: a command
// line goes out and a response comes back as "key: value" lines closed by
// "OK", or a single "ACK" line on failure. Responses to albumart and
// readpicture embed a "binary: <n>" property followed by n raw bytes.
//
// Conn is one session. It performs the handshake (greeting, optional
// password, binary limit), runs commands, and repairs itself once when a
// response does not parse:
//
//	conn, err := mpd.Dial(ctx, mpd.Config{Address: "localhost:6600"})
//	frame, err := conn.Execute(ctx, mpd.Command("lsinfo", "Music"))
//
// A session cannot pipeline, so concurrent callers go through Shared,
// which hands the single Conn to one caller at a time. Client builds the
// typed operations (queue, transport, settings, listings, artwork) on top
// of Shared. Notifier runs the blocking idle command on connections of its
// own and delivers changed subsystems over a channel.
//
// Errors are typed: *ConnectionError for transport failures,
// *ProtocolError for unparseable responses, *ServerError for ACKs and
// ErrNotFound for resources the daemon does not have.
package mpd
