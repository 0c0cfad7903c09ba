package mpd

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
)

// MaxBinarySize caps the total size of one chunked transfer.
const MaxBinarySize = 64 << 20

// Executor runs one command and returns its decoded response. *Conn and
// *Shared implement it.
type Executor interface {
	Execute(ctx context.Context, command string) (*Frame, error)
}

// FetchBinary downloads a resource served in chunks by commands of the form
// "<command> <uri> <offset>", such as albumart and readpicture. It returns
// ErrNotFound when the daemon has nothing to send for uri.
func FetchBinary(ctx context.Context, executor Executor, command, uri string) ([]byte, error) {
	var buffer bytes.Buffer
	size := -1

	for {
		offset := buffer.Len()
		frame, err := executor.Execute(ctx, Command(command, uri, offset))
		if err != nil {
			if IsServerError(err, AckErrorNoExist) {
				return nil, fmt.Errorf("%s %q: %w", command, uri, ErrNotFound)
			}
			return nil, err
		}
		if !frame.HasBinary() {
			return nil, fmt.Errorf("%s %q: %w", command, uri, ErrNotFound)
		}

		if value, ok := frame.Get("size"); ok {
			n, err := strconv.Atoi(value)
			if err != nil || n < 0 {
				return nil, &ProtocolError{Line: "size: " + value, Reason: "invalid binary size"}
			}
			size = n
		}
		if size > MaxBinarySize {
			return nil, &ProtocolError{Reason: fmt.Sprintf("%s %q: size %d exceeds limit", command, uri, size)}
		}

		if len(frame.Binary) == 0 {
			if buffer.Len() == 0 {
				// An empty resource is no resource.
				return nil, fmt.Errorf("%s %q: %w", command, uri, ErrNotFound)
			}
			return buffer.Bytes(), nil
		}
		if buffer.Len()+len(frame.Binary) > MaxBinarySize {
			return nil, &ProtocolError{Reason: fmt.Sprintf("%s %q: transfer exceeds limit", command, uri)}
		}
		buffer.Write(frame.Binary)

		if size >= 0 {
			if buffer.Len() > size {
				return nil, &ProtocolError{Reason: fmt.Sprintf("%s %q: received %d bytes of %d", command, uri, buffer.Len(), size)}
			}
			if buffer.Len() == size {
				return buffer.Bytes(), nil
			}
		}
	}
}
