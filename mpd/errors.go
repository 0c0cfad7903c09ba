package mpd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNotFound reports that the daemon legitimately has no data for the
// request, e.g. a song without cover art. It is an expected outcome, not a
// failure of the connection or the command.
var ErrNotFound = errors.New("mpd: not found")

// ErrInvalidCommand is returned for a command string that would break the
// line framing (it contains a newline).
var ErrInvalidCommand = errors.New("mpd: invalid command")

// ACK error codes sent by the daemon (src/protocol/Ack.hxx).
const (
	AckErrorNotList       = 1
	AckErrorArg           = 2
	AckErrorPassword      = 3
	AckErrorPermission    = 4
	AckErrorUnknown       = 5
	AckErrorNoExist       = 50
	AckErrorPlaylistMax   = 51
	AckErrorSystem        = 52
	AckErrorPlaylistLoad  = 53
	AckErrorUpdateAlready = 54
	AckErrorPlayerSync    = 55
	AckErrorExist         = 56
)

// ConnectionError is a transport-level failure: the socket could not be
// opened, read or written, or the connection stayed desynchronized after a
// reconnect. The Conn that produced it has been closed.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mpd: %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError is a response line that matched none of the shapes the
// framing allows. The connection is out of sync once one is seen.
type ProtocolError struct {
	Line   string
	Reason string
}

func (e *ProtocolError) Error() string {
	if e.Line == "" {
		return "mpd: protocol error: " + e.Reason
	}
	return fmt.Sprintf("mpd: protocol error: %s: %q", e.Reason, e.Line)
}

// ServerError is a well-formed ACK from the daemon. Message holds the text
// after "ACK " verbatim; Code, Index and Command are parsed from it when it
// has the usual "[code@index] {command} text" shape.
type ServerError struct {
	Code    int
	Index   int
	Command string
	Message string
}

func (e *ServerError) Error() string {
	return "mpd: server error: " + e.Message
}

// parseAck builds a ServerError from the text following "ACK ".
func parseAck(message string) *ServerError {
	e := &ServerError{Message: message}

	rest, ok := strings.CutPrefix(message, "[")
	if !ok {
		return e
	}
	inner, rest, ok := strings.Cut(rest, "]")
	if !ok {
		return e
	}
	code, index, ok := strings.Cut(inner, "@")
	if !ok {
		return e
	}
	e.Code, _ = strconv.Atoi(code)
	e.Index, _ = strconv.Atoi(index)

	rest = strings.TrimSpace(rest)
	if cmd, ok := strings.CutPrefix(rest, "{"); ok {
		if name, _, ok := strings.Cut(cmd, "}"); ok {
			e.Command = name
		}
	}
	return e
}

// IsServerError reports whether err carries an ACK with the given code.
func IsServerError(err error, code int) bool {
	var serverErr *ServerError
	return errors.As(err, &serverErr) && serverErr.Code == code
}
