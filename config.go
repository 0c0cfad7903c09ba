package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"empede/mpd"
)

const (
	defaultBind    = "0.0.0.0:8080"
	defaultMPDHost = "localhost"
	defaultMPDPort = 6600
	defaultTimeout = mpd.DefaultTimeout
)

// settings is the resolved configuration of one run.
type settings struct {
	Bind        string
	MPDHost     string // hostname, or a unix socket path
	MPDPort     int
	MPDPassword string
	Timeout     time.Duration
	LogPath     string
	Verbose     bool
}

// fileConfig mirrors the YAML config file. Zero values mean "not set".
type fileConfig struct {
	Bind        string        `yaml:"bind"`
	MPDHost     string        `yaml:"mpd_host"`
	MPDPort     int           `yaml:"mpd_port"`
	MPDPassword string        `yaml:"mpd_password"`
	Timeout     time.Duration `yaml:"timeout"`
	Log         string        `yaml:"log"`
	Verbose     bool          `yaml:"verbose"`
}

// envConfig holds what the environment provides.
type envConfig struct {
	bind     string
	host     string
	port     int
	password string
}

// loadConfig reads the config file at path, or ~/.config/empede.yaml when
// path is empty. Only an explicitly named file has to exist.
func loadConfig(path string) (fileConfig, string, error) {
	var cf fileConfig
	explicit := path != ""
	if !explicit {
		home, err := os.UserHomeDir()
		if err != nil {
			return cf, "", nil
		}
		path = filepath.Join(home, ".config", "empede.yaml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return cf, path, nil
		}
		return cf, path, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return cf, path, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cf, path, nil
}

// parseEnv reads EMPEDE_BIND, MPD_HOST, MPD_PORT and MPD_PASSWORD.
//
// MPD_HOST follows the mpc conventions:
//
//	host                 tcp host
//	/path/to/socket      unix socket
//	@name                abstract socket
//	password@host        host (or socket path) with a password
//	password@@name       abstract socket with a password
//
// A password in MPD_HOST wins over MPD_PASSWORD.
func parseEnv(getenv func(string) string, logger *slog.Logger) envConfig {
	env := envConfig{
		bind:     getenv("EMPEDE_BIND"),
		password: getenv("MPD_PASSWORD"),
	}

	if v := getenv("MPD_HOST"); v != "" {
		switch {
		case strings.HasPrefix(v, "@"):
			env.host = v
		case strings.Contains(v, "@@"):
			password, name, _ := strings.Cut(v, "@@")
			env.password = password
			env.host = "@" + name
		case strings.Contains(v, "@"):
			password, addr, _ := strings.Cut(v, "@")
			env.password = password
			env.host = addr
		default:
			env.host = v
		}
		if strings.Contains(env.host, "/") && !strings.HasPrefix(env.host, "/") {
			logger.Warn("MPD_HOST socket assumed to be a relative path", "path", env.host)
		}
	}

	if p := getenv("MPD_PORT"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			logger.Warn("ignoring invalid MPD_PORT", "value", p)
		} else {
			env.port = n
		}
	}
	return env
}

// resolveSettings applies flag > config file > environment > default. A
// flag counts only when it was given on the command line.
func resolveSettings(flags *flag.FlagSet, cli settings, cf fileConfig, env envConfig) settings {
	s := settings{
		Bind:        pick(flags.Changed("bind"), cli.Bind, cf.Bind, env.bind, defaultBind),
		MPDHost:     pick(flags.Changed("mpdhost"), cli.MPDHost, cf.MPDHost, env.host, defaultMPDHost),
		MPDPort:     pick(flags.Changed("mpdport"), cli.MPDPort, cf.MPDPort, env.port, defaultMPDPort),
		MPDPassword: pick(flags.Changed("mpdpass"), cli.MPDPassword, cf.MPDPassword, env.password, ""),
		Timeout:     pick(flags.Changed("timeout"), cli.Timeout, cf.Timeout, 0, defaultTimeout),
		LogPath:     pick(flags.Changed("log"), cli.LogPath, cf.Log, "", ""),
		Verbose:     cli.Verbose || cf.Verbose,
	}
	return s
}

func pick[T comparable](flagSet bool, flagValue, fileValue, envValue, fallback T) T {
	var zero T
	switch {
	case flagSet:
		return flagValue
	case fileValue != zero:
		return fileValue
	case envValue != zero:
		return envValue
	}
	return fallback
}

func (s settings) usesSocket() bool {
	return strings.HasPrefix(s.MPDHost, "@") || strings.Contains(s.MPDHost, "/")
}

// mpdConfig builds the connection settings for the core.
func (s settings) mpdConfig(logger *slog.Logger) mpd.Config {
	config := mpd.Config{
		Network:  "tcp",
		Address:  net.JoinHostPort(s.MPDHost, strconv.Itoa(s.MPDPort)),
		Password: s.MPDPassword,
		Timeout:  s.Timeout,
		Logger:   logger,
	}
	if s.usesSocket() {
		config.Network = "unix"
		config.Address = s.MPDHost
	}
	return config
}

// newLogger writes text logs to stderr, or appended to path when set.
func newLogger(path string, verbose bool) (*slog.Logger, func() error, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	out, closeFn := os.Stderr, func() error { return nil }
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file %s: %w", path, err)
		}
		out, closeFn = f, f.Close
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return logger, closeFn, nil
}
