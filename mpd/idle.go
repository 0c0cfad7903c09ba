package mpd

import (
	"context"
	"log/slog"
)

// Subsystem names a category of daemon state reported by idle.
type Subsystem string

const (
	SubsystemDatabase       Subsystem = "database"
	SubsystemUpdate         Subsystem = "update"
	SubsystemStoredPlaylist Subsystem = "stored_playlist"
	SubsystemPlaylist       Subsystem = "playlist"
	SubsystemPlayer         Subsystem = "player"
	SubsystemMixer          Subsystem = "mixer"
	SubsystemOutput         Subsystem = "output"
	SubsystemOptions        Subsystem = "options"
	SubsystemPartition      Subsystem = "partition"
	SubsystemSticker        Subsystem = "sticker"
	SubsystemSubscription   Subsystem = "subscription"
	SubsystemMessage        Subsystem = "message"
	SubsystemNeighbor       Subsystem = "neighbor"
	SubsystemMount          Subsystem = "mount"
)

// DefaultSubsystems are watched when a Notifier is created without any.
var DefaultSubsystems = []Subsystem{
	SubsystemPlaylist,
	SubsystemPlayer,
	SubsystemDatabase,
	SubsystemOptions,
	SubsystemMixer,
	SubsystemOutput,
}

// Notifier watches the daemon for changes. Every subscription runs idle on
// a connection of its own, so a blocked idle never holds up the commands
// going through Shared.
type Notifier struct {
	config     Config
	subsystems []Subsystem
	logger     *slog.Logger
}

// NewNotifier returns a Notifier for the given subsystems, or
// DefaultSubsystems when none are given.
func NewNotifier(config Config, subsystems ...Subsystem) *Notifier {
	if len(subsystems) == 0 {
		subsystems = DefaultSubsystems
	}
	return &Notifier{
		config:     config,
		subsystems: subsystems,
		logger:     config.logger().With("address", config.Address),
	}
}

// Subscription is a running idle loop. Read Events until it is closed,
// then Err tells whether the loop ended because of a failure.
type Subscription struct {
	events chan Subsystem
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Subscribe starts an idle loop. It first emits every watched subsystem
// once so consumers can load the current state, then one event per change
// reported by the daemon. The loop ends when ctx is cancelled, Close is
// called, or the connection fails.
func (n *Notifier) Subscribe(ctx context.Context) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		events: make(chan Subsystem),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go n.run(ctx, sub)
	return sub
}

// Events delivers subsystem names. It is closed when the loop ends.
func (s *Subscription) Events() <-chan Subsystem { return s.events }

// Err blocks until the loop has ended and returns the connection failure
// that ended it, or nil when it was cancelled.
func (s *Subscription) Err() error {
	<-s.done
	return s.err
}

// Close stops the loop and waits for its connection to be closed.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

func (n *Notifier) run(ctx context.Context, sub *Subscription) {
	err := n.loop(ctx, sub.events)
	if ctx.Err() != nil {
		err = nil
	}
	if err != nil {
		n.logger.Warn("idle loop failed", "error", err)
	}
	sub.err = err
	sub.cancel()
	close(sub.events)
	close(sub.done)
}

func (n *Notifier) loop(ctx context.Context, events chan<- Subsystem) error {
	for _, subsystem := range n.subsystems {
		if !send(ctx, events, subsystem) {
			return ctx.Err()
		}
	}

	conn, err := Dial(ctx, n.config)
	if err != nil {
		return err
	}
	defer conn.Close()
	n.logger.Debug("idle loop started", "subsystems", n.subsystems)

	for {
		changed, err := conn.Idle(ctx, n.subsystems...)
		if err != nil {
			return err
		}
		for _, subsystem := range changed {
			if !send(ctx, events, subsystem) {
				return ctx.Err()
			}
		}
	}
}

func send(ctx context.Context, events chan<- Subsystem, subsystem Subsystem) bool {
	select {
	case events <- subsystem:
		return true
	case <-ctx.Done():
		return false
	}
}
