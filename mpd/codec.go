package mpd

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	gompd "github.com/fhs/gompd/v2/mpd"
)

// MaxChunkSize bounds a single binary payload. The daemon never sends
// more than the negotiated binary limit per response; anything beyond this
// is treated as a corrupt length.
const MaxChunkSize = 16 << 20

// Prop is one "key: value" line of a response.
type Prop struct {
	Key   string
	Value string
}

// Frame is one decoded response. Props keeps every property in arrival
// order, duplicates included. Binary is non-nil exactly when the response
// carried a "binary" property; a zero-length chunk is an empty slice.
type Frame struct {
	Props  []Prop
	Binary []byte
}

// HasBinary reports whether the response carried a binary payload.
func (f *Frame) HasBinary() bool { return f.Binary != nil }

// Get returns the first value for key.
func (f *Frame) Get(key string) (string, bool) {
	for _, p := range f.Props {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Values returns every value for key in arrival order.
func (f *Frame) Values(key string) []string {
	var values []string
	for _, p := range f.Props {
		if p.Key == key {
			values = append(values, p.Value)
		}
	}
	return values
}

// Attrs flattens the properties into a map. Later duplicates win.
func (f *Frame) Attrs() gompd.Attrs {
	attrs := make(gompd.Attrs, len(f.Props))
	for _, p := range f.Props {
		attrs[p.Key] = p.Value
	}
	return attrs
}

// Raw is a command argument written to the wire as-is, without quoting.
type Raw string

// Quote wraps s in double quotes, backslash-escaping backslashes and both
// quote characters.
func Quote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\', '"', '\'':
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}

// Command formats a request line (without the trailing newline). Strings
// are quoted, integers and Raw values are written bare, and booleans become
// 1 or 0.
//
//	Command("add", "Artist/Album/01.flac", "+0") // add "Artist/Album/01.flac" "+0"
//	Command("move", 3, 0)                        // move 3 0
func Command(name string, args ...any) string {
	var b strings.Builder
	b.WriteString(name)
	for _, arg := range args {
		b.WriteByte(' ')
		switch v := arg.(type) {
		case Raw:
			b.WriteString(string(v))
		case Subsystem:
			b.WriteString(string(v))
		case string:
			b.WriteString(Quote(v))
		case int:
			b.WriteString(strconv.Itoa(v))
		case int64:
			b.WriteString(strconv.FormatInt(v, 10))
		case uint:
			b.WriteString(strconv.FormatUint(uint64(v), 10))
		case uint64:
			b.WriteString(strconv.FormatUint(v, 10))
		case bool:
			if v {
				b.WriteByte('1')
			} else {
				b.WriteByte('0')
			}
		default:
			b.WriteString(Quote(fmt.Sprint(v)))
		}
	}
	return b.String()
}

// readFrame decodes one response. Transport failures are returned as-is;
// an ACK becomes a *ServerError and a malformed line a *ProtocolError.
func readFrame(r *bufio.Reader) (*Frame, error) {
	frame := &Frame{}
	for {
		line, err := readLine(r)
		if err != nil {
			return nil, err
		}
		if line == "OK" {
			return frame, nil
		}
		if message, ok := strings.CutPrefix(line, "ACK"); ok && (message == "" || message[0] == ' ') {
			return nil, parseAck(strings.TrimPrefix(message, " "))
		}

		key, value, ok := splitProp(line)
		if !ok {
			return nil, &ProtocolError{Line: line, Reason: "unexpected line"}
		}
		frame.Props = append(frame.Props, Prop{Key: key, Value: value})

		if key == "binary" {
			payload, err := readBinary(r, value)
			if err != nil {
				return nil, err
			}
			frame.Binary = payload
			return frame, nil
		}
	}
}

// readBinary reads exactly the announced number of bytes, the newline that
// follows them and the closing OK.
func readBinary(r *bufio.Reader, length string) ([]byte, error) {
	n, err := strconv.Atoi(length)
	if err != nil || n < 0 || n > MaxChunkSize {
		return nil, &ProtocolError{Line: "binary: " + length, Reason: "invalid binary length"}
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}

	newline, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if newline != '\n' {
		return nil, &ProtocolError{Reason: "missing newline after binary payload"}
	}

	line, err := readLine(r)
	if err != nil {
		return nil, err
	}
	if line != "OK" {
		return nil, &ProtocolError{Line: line, Reason: "expected OK after binary payload"}
	}
	return payload, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

func splitProp(line string) (key, value string, ok bool) {
	key, value, ok = strings.Cut(line, ": ")
	if !ok {
		// "Title:" with an empty value.
		key, ok = strings.CutSuffix(line, ":")
	}
	if !ok || key == "" || strings.ContainsAny(key, " \t") {
		return "", "", false
	}
	return key, value, true
}
