package mpd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"
)

const (
	// DefaultBinaryLimit is the chunk size requested with "binarylimit".
	DefaultBinaryLimit = 1 << 20

	DefaultTimeout     = 10 * time.Second
	DefaultDialTimeout = 5 * time.Second
)

// aLongTimeAgo is a deadline in the past, used to wake blocked socket
// calls when a context is cancelled.
var aLongTimeAgo = time.Unix(1, 0)

// Config describes how to reach and authenticate with the daemon.
type Config struct {
	// Network is "tcp" or "unix". Empty selects unix for addresses that
	// start with "/" or "@" and tcp otherwise.
	Network string

	// Address is host:port for tcp or a socket path for unix.
	Address string

	// Password is sent with the "password" command when non-empty.
	Password string

	// Timeout bounds one ordinary command exchange. Zero means
	// DefaultTimeout; negative disables it. Idle never uses it.
	Timeout time.Duration

	// DialTimeout bounds establishing the socket. Zero means
	// DefaultDialTimeout.
	DialTimeout time.Duration

	// BinaryLimit is the chunk size negotiated at open. Zero means
	// DefaultBinaryLimit; negative skips the negotiation.
	BinaryLimit int

	// Logger receives connection lifecycle events. Nil discards them.
	Logger *slog.Logger
}

func (c Config) network() string {
	if c.Network != "" {
		return c.Network
	}
	if strings.HasPrefix(c.Address, "/") || strings.HasPrefix(c.Address, "@") {
		return "unix"
	}
	return "tcp"
}

func (c Config) timeout() time.Duration {
	switch {
	case c.Timeout == 0:
		return DefaultTimeout
	case c.Timeout < 0:
		return 0
	}
	return c.Timeout
}

func (c Config) dialTimeout() time.Duration {
	if c.DialTimeout <= 0 {
		return DefaultDialTimeout
	}
	return c.DialTimeout
}

func (c Config) binaryLimit() int {
	if c.BinaryLimit == 0 {
		return DefaultBinaryLimit
	}
	return c.BinaryLimit
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

type connState int

const (
	stateClosed connState = iota
	stateReady
)

// Conn is one session with the daemon. A Conn is either fully handshaken
// or closed; Execute reopens a closed Conn before sending anything.
//
// Conn is not safe for concurrent use. Share one through Shared.
type Conn struct {
	config Config
	logger *slog.Logger

	netConn net.Conn
	reader  *bufio.Reader
	state   connState

	version    string
	generation uint64
}

// NewConn returns a closed Conn. The first Execute opens it.
func NewConn(config Config) *Conn {
	return &Conn{
		config: config,
		logger: config.logger().With("address", config.Address),
	}
}

// Dial opens a Conn and performs the handshake.
func Dial(ctx context.Context, config Config) (*Conn, error) {
	c := NewConn(config)
	if err := c.open(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Version is the protocol version from the daemon's greeting.
func (c *Conn) Version() string { return c.version }

// Generation counts successful opens. It changes only when the
// connection was torn down and established again.
func (c *Conn) Generation() uint64 { return c.generation }

// Ready reports whether the Conn holds a handshaken socket.
func (c *Conn) Ready() bool { return c.state == stateReady }

// Close tears down the socket. A later Execute reopens it.
func (c *Conn) Close() error {
	if c.netConn == nil {
		return nil
	}
	err := c.netConn.Close()
	c.close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (c *Conn) close() {
	if c.netConn != nil {
		c.netConn.Close()
	}
	c.netConn = nil
	c.reader = nil
	c.state = stateClosed
}

func (c *Conn) open(ctx context.Context) error {
	c.close()

	dialer := net.Dialer{Timeout: c.config.dialTimeout()}
	netConn, err := dialer.DialContext(ctx, c.config.network(), c.config.Address)
	if err != nil {
		return &ConnectionError{Op: "dial", Err: err}
	}
	c.netConn = netConn
	c.reader = bufio.NewReader(netConn)

	if err := c.handshake(ctx); err != nil {
		c.close()
		return &ConnectionError{Op: "open", Err: err}
	}

	c.state = stateReady
	c.generation++
	c.logger.Debug("mpd connection open", "version", c.version, "generation", c.generation)
	return nil
}

func (c *Conn) handshake(ctx context.Context) error {
	stop := c.bindContext(ctx, c.config.timeout())
	err := c.greet()
	stop()
	if err == nil {
		err = ctx.Err()
	}
	return err
}

func (c *Conn) greet() error {
	greeting, err := readLine(c.reader)
	if err != nil {
		return err
	}
	version, ok := strings.CutPrefix(greeting, "OK MPD ")
	if !ok {
		return &ProtocolError{Line: greeting, Reason: "unexpected greeting"}
	}
	c.version = version

	if c.config.Password != "" {
		if _, err := c.roundTrip(Command("password", c.config.Password)); err != nil {
			return fmt.Errorf("password: %w", err)
		}
	}
	if limit := c.config.binaryLimit(); limit > 0 {
		if _, err := c.roundTrip(Command("binarylimit", limit)); err != nil {
			return fmt.Errorf("binarylimit: %w", err)
		}
	}
	return nil
}

// bindContext applies the command timeout to the socket and arranges for
// ctx being done to interrupt blocked reads and writes. The context's own
// deadline is left to the AfterFunc so that ctx.Err is always set by the
// time an exchange fails because of it. The returned func must be called
// once the exchange is over; if the interruption already fired it closes
// the Conn, since the socket deadline is spoiled.
func (c *Conn) bindContext(ctx context.Context, timeout time.Duration) (stop func()) {
	netConn := c.netConn
	if timeout > 0 {
		netConn.SetDeadline(time.Now().Add(timeout))
	}

	stopAfter := context.AfterFunc(ctx, func() {
		netConn.SetDeadline(aLongTimeAgo)
	})
	return func() {
		if !stopAfter() {
			c.close()
			return
		}
		if timeout > 0 {
			netConn.SetDeadline(time.Time{})
		}
	}
}

func (c *Conn) roundTrip(command string) (*Frame, error) {
	if _, err := io.WriteString(c.netConn, command+"\n"); err != nil {
		return nil, err
	}
	return readFrame(c.reader)
}

// Execute sends command and decodes its response.
//
// A malformed response or a socket failure means the session is out of
// sync: the Conn is closed, reopened once and the command retried once. A
// second failure is returned as a *ConnectionError. An ACK is returned as
// a *ServerError and leaves the session intact.
func (c *Conn) Execute(ctx context.Context, command string) (*Frame, error) {
	return c.execute(ctx, command, c.config.timeout(), nil)
}

func (c *Conn) execute(ctx context.Context, command string, timeout time.Duration, check func(*Frame) error) (*Frame, error) {
	if strings.ContainsAny(command, "\r\n") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommand, command)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	retried := false
	for {
		if c.state != stateReady {
			if err := c.open(ctx); err != nil {
				return nil, err
			}
		}

		frame, err := c.attempt(ctx, command, timeout)
		if err == nil && check != nil {
			err = check(frame)
		}
		if err == nil {
			return frame, nil
		}

		var serverErr *ServerError
		if errors.As(err, &serverErr) {
			return nil, err
		}

		c.close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if retried {
			return nil, &ConnectionError{Op: commandName(command), Err: err}
		}
		retried = true
		c.logger.Warn("mpd connection out of sync, reconnecting",
			"command", commandName(command),
			"error", err,
		)
	}
}

func (c *Conn) attempt(ctx context.Context, command string, timeout time.Duration) (*Frame, error) {
	stop := c.bindContext(ctx, timeout)
	defer stop()

	c.logger.Debug("mpd command", "command", commandName(command))
	return c.roundTrip(command)
}

// Idle blocks until one of the subsystems changes (any subsystem when none
// are given) and returns the changed names in the order reported. Only
// cancellation of ctx ends the wait early; the command timeout does not
// apply.
func (c *Conn) Idle(ctx context.Context, subsystems ...Subsystem) ([]Subsystem, error) {
	args := make([]any, len(subsystems))
	for i, s := range subsystems {
		args[i] = s
	}

	frame, err := c.execute(ctx, Command("idle", args...), 0, checkIdle)
	if err != nil {
		return nil, err
	}

	changed := make([]Subsystem, 0, len(frame.Props))
	for _, p := range frame.Props {
		changed = append(changed, Subsystem(p.Value))
	}
	return changed, nil
}

func checkIdle(frame *Frame) error {
	for _, p := range frame.Props {
		if p.Key != "changed" {
			return &ProtocolError{Line: p.Key + ": " + p.Value, Reason: "unexpected idle property"}
		}
	}
	if frame.HasBinary() {
		return &ProtocolError{Reason: "binary payload in idle response"}
	}
	return nil
}

func commandName(command string) string {
	name, _, _ := strings.Cut(command, " ")
	return name
}
