package mpd

import (
	"context"
)

// Shared serializes every caller onto one Conn. Each WithLock call owns
// the connection for its whole duration, so the request/response
// exchanges of two callers never interleave on the socket. Callers are
// served in the order they acquire the lock.
type Shared struct {
	lock chan struct{}
	conn *Conn
}

// NewShared returns a Shared whose connection is opened on first use.
func NewShared(config Config) *Shared {
	return &Shared{
		lock: make(chan struct{}, 1),
		conn: NewConn(config),
	}
}

// WithLock runs fn with exclusive use of the connection. Waiting for the
// lock is abandoned when ctx is done. fn must not retain the Conn.
func (s *Shared) WithLock(ctx context.Context, fn func(*Conn) error) error {
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.lock }()

	return fn(s.conn)
}

// Execute runs a single command under the lock.
func (s *Shared) Execute(ctx context.Context, command string) (*Frame, error) {
	var frame *Frame
	err := s.WithLock(ctx, func(conn *Conn) error {
		var err error
		frame, err = conn.Execute(ctx, command)
		return err
	})
	return frame, err
}

// Close waits for the current holder and closes the connection. A later
// call reopens it.
func (s *Shared) Close() error {
	s.lock <- struct{}{}
	defer func() { <-s.lock }()
	return s.conn.Close()
}
