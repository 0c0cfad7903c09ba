// Package mpdtest runs scripted fake daemons on loopback TCP for tests.
//
// Each command is answered by a Handler that returns the raw response
// text, so tests can send well-formed replies, ACKs, binary frames or
// deliberately broken framing:
//
//	srv := mpdtest.NewServer(t)
//	srv.Reply("status", mpdtest.Props("state", "play", "songid", "7"))
//	srv.Handle("lsinfo", func(req *mpdtest.Request) string { ... })
package mpdtest

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// OK is the success terminator.
const OK = "OK\n"

// Hangup, returned by a Handler, makes the server close the connection
// without replying.
const Hangup = "\x00hangup"

// DefaultGreeting is sent to every new connection unless changed.
const DefaultGreeting = "OK MPD 0.24.0"

// Request is one command received by the server.
type Request struct {
	// Conn is the 1-based ordinal of the connection it arrived on.
	Conn int
	Line string
	Name string
	// Args are unquoted.
	Args []string
	// Gone is closed when the client disconnects or the server shuts
	// down. Handlers that block (idle) must select on it.
	Gone <-chan struct{}
}

// Handler answers a Request with raw response text.
type Handler func(req *Request) string

// Server is a fake daemon.
type Server struct {
	listener net.Listener
	done     chan struct{}
	wg       sync.WaitGroup

	mu          sync.Mutex
	greeting    string
	handlers    map[string]Handler
	lines       []string
	conns       int
	disconnects int
	active      map[net.Conn]struct{}
	closed      bool
}

// NewServer starts a fake daemon that answers password, binarylimit, ping
// and close. It is shut down when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{
		listener: listener,
		done:     make(chan struct{}),
		greeting: DefaultGreeting,
		handlers: make(map[string]Handler),
		active:   make(map[net.Conn]struct{}),
	}
	s.Reply("password", OK)
	s.Reply("binarylimit", OK)
	s.Reply("ping", OK)
	s.Handle("close", func(*Request) string { return Hangup })

	s.wg.Add(1)
	go s.accept()
	t.Cleanup(s.Close)
	return s
}

// Addr is the host:port the server listens on.
func (s *Server) Addr() string { return s.listener.Addr().String() }

// SetGreeting replaces the first line sent to new connections.
func (s *Server) SetGreeting(greeting string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.greeting = greeting
}

// Handle installs h for the command name.
func (s *Server) Handle(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// Reply answers every name command with response.
func (s *Server) Reply(name, response string) {
	s.Handle(name, func(*Request) string { return response })
}

// Lines returns every command line received, across all connections, in
// arrival order.
func (s *Server) Lines() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.lines...)
}

// Count returns how many received lines start with the command name.
func (s *Server) Count(name string) int {
	n := 0
	for _, line := range s.Lines() {
		if first, _, _ := strings.Cut(line, " "); first == name {
			n++
		}
	}
	return n
}

// Connections returns how many connections have been accepted.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns
}

// Disconnects returns how many connections have ended.
func (s *Server) Disconnects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnects
}

// Close stops accepting, drops every connection and waits for the
// handlers to return.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	s.listener.Close()
	for conn := range s.active {
		conn.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns++
		ordinal := s.conns
		s.active[conn] = struct{}{}
		greeting := s.greeting
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(conn, ordinal, greeting)
	}
}

func (s *Server) serve(conn net.Conn, ordinal int, greeting string) {
	defer s.wg.Done()
	defer func() {
		conn.Close()
		s.mu.Lock()
		delete(s.active, conn)
		s.disconnects++
		s.mu.Unlock()
	}()

	if _, err := io.WriteString(conn, greeting+"\n"); err != nil {
		return
	}

	lines := make(chan string)
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		reader := bufio.NewReader(conn)
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			select {
			case lines <- strings.TrimSuffix(line, "\n"):
			case <-s.done:
				return
			}
		}
	}()

	goneOrDone := make(chan struct{})
	go func() {
		select {
		case <-gone:
		case <-s.done:
		}
		close(goneOrDone)
	}()

	for {
		var line string
		select {
		case line = <-lines:
		case <-goneOrDone:
			return
		}

		s.mu.Lock()
		s.lines = append(s.lines, line)
		s.mu.Unlock()

		name, args := Split(line)
		response := s.dispatch(&Request{
			Conn: ordinal,
			Line: line,
			Name: name,
			Args: args,
			Gone: goneOrDone,
		})
		if response == Hangup {
			return
		}
		if _, err := io.WriteString(conn, response); err != nil {
			return
		}
	}
}

func (s *Server) dispatch(req *Request) string {
	s.mu.Lock()
	h := s.handlers[req.Name]
	s.mu.Unlock()
	if h == nil {
		return Ack(5, req.Name, fmt.Sprintf("unknown command %q", req.Name))
	}
	return h(req)
}

// Split tokenizes a command line the way the daemon does: whitespace
// separated, double-quoted tokens with backslash escapes.
func Split(line string) (name string, args []string) {
	var tokens []string
	i := 0
	for i < len(line) {
		for i < len(line) && line[i] == ' ' {
			i++
		}
		if i >= len(line) {
			break
		}
		var b strings.Builder
		if line[i] == '"' {
			i++
			for i < len(line) && line[i] != '"' {
				if line[i] == '\\' && i+1 < len(line) {
					i++
				}
				b.WriteByte(line[i])
				i++
			}
			i++
		} else {
			for i < len(line) && line[i] != ' ' {
				b.WriteByte(line[i])
				i++
			}
		}
		tokens = append(tokens, b.String())
	}
	if len(tokens) == 0 {
		return "", nil
	}
	return tokens[0], tokens[1:]
}

// Props formats key/value pairs followed by OK.
func Props(kv ...string) string {
	return lines(kv) + OK
}

// Binary formats a chunked binary response: the key/value pairs, the
// binary property, the payload and OK.
func Binary(data []byte, kv ...string) string {
	return lines(kv) + "binary: " + strconv.Itoa(len(data)) + "\n" + string(data) + "\n" + OK
}

// Ack formats an error response.
func Ack(code int, command, message string) string {
	return fmt.Sprintf("ACK [%d@0] {%s} %s\n", code, command, message)
}

func lines(kv []string) string {
	if len(kv)%2 != 0 {
		panic("mpdtest: odd number of key/value arguments")
	}
	var b strings.Builder
	for i := 0; i < len(kv); i += 2 {
		b.WriteString(kv[i])
		b.WriteString(": ")
		b.WriteString(kv[i+1])
		b.WriteByte('\n')
	}
	return b.String()
}
