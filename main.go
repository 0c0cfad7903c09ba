// Command empede is a small web front end for MPD. It serves a JSON API
// for browsing the library, editing the queue and controlling playback,
// and pushes change notifications over SSE and WebSocket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"empede/mpd"
)

var version = "0.3.0"

const discoverTimeout = 3 * time.Second

// options are the flags that are not settings.
type options struct {
	configPath  string
	discover    bool
	showVersion bool
	showHelp    bool
}

func newFlagSet(cli *settings, opts *options) *flag.FlagSet {
	flags := flag.NewFlagSet("empede", flag.ContinueOnError)
	flags.StringVar(&opts.configPath, "config", "", "path to config file (default ~/.config/empede.yaml)")
	flags.StringVar(&cli.Bind, "bind", defaultBind, "HTTP listen <address>")
	flags.StringVar(&cli.MPDHost, "mpdhost", defaultMPDHost, "MPD host <address> or socket <path>")
	flags.IntVar(&cli.MPDPort, "mpdport", defaultMPDPort, "MPD host <port>")
	flags.StringVar(&cli.MPDPassword, "mpdpass", "", "MPD server password")
	flags.DurationVar(&cli.Timeout, "timeout", defaultTimeout, "MPD command timeout")
	flags.StringVar(&cli.LogPath, "log", "", "write logs to file instead of stderr")
	flags.BoolVar(&cli.Verbose, "verbose", false, "enable debug logging")
	flags.BoolVar(&opts.discover, "discover", false, "use the first MPD found via zeroconf when no host is configured")
	flags.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	flags.BoolVar(&opts.showHelp, "help", false, "print help and exit")
	return flags
}

func newDiscoverFlags() *flag.FlagSet {
	flags := flag.NewFlagSet("empede discover", flag.ContinueOnError)
	flags.Duration("timeout", discoverTimeout, "how long to browse")
	return flags
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "empede:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// ------------------------------------------------------------------
	// Subcommands
	// ------------------------------------------------------------------
	if len(args) > 0 && args[0] == "discover" {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		return discoverCmd(args[1:], logger)
	}

	var (
		cli  settings
		opts options
	)
	flags := newFlagSet(&cli, &opts)
	if err := flags.Parse(args); err != nil {
		return err
	}

	if opts.showVersion {
		fmt.Printf("empede version %s\n", version)
		return nil
	}
	if opts.showHelp {
		fmt.Printf("empede version %s\n\n", version)
		fmt.Println("Usage: empede [flags]")
		fmt.Println("       empede discover [--timeout d]")
		fmt.Println()
		flags.PrintDefaults()
		return nil
	}

	// ------------------------------------------------------------------
	// Resolve settings: CLI > config > env > default
	// ------------------------------------------------------------------
	cf, cfPath, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	bootLogger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	env := parseEnv(os.Getenv, bootLogger)
	s := resolveSettings(flags, cli, cf, env)

	logger, closeLog, err := newLogger(s.LogPath, s.Verbose)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Debug("configuration loaded", "config", cfPath, "bind", s.Bind, "mpd_host", s.MPDHost, "mpd_port", s.MPDPort)

	hostConfigured := flags.Changed("mpdhost") || cf.MPDHost != "" || env.host != ""
	if opts.discover && !hostConfigured {
		e, err := firstDiscovered(discoverTimeout, logger)
		if err != nil {
			return fmt.Errorf("discovery: %w", err)
		}
		logger.Info("using discovered mpd", "instance", e.Instance, "address", e.Address())
		s.MPDHost, s.MPDPort = e.Host, e.Port
	}

	// ------------------------------------------------------------------
	// Serve
	// ------------------------------------------------------------------
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := mpd.NewClient(s.mpdConfig(logger))
	defer client.Close()

	httpServer := &http.Server{
		Addr:              s.Bind,
		Handler:           newServer(client, logger).routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", "bind", s.Bind, "mpd", s.mpdConfig(nil).Address)
		errc <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
} // func run()
