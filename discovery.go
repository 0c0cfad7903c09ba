package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// mpdService is the DNS-SD service type MPD announces itself under.
const mpdService = "_mpd._tcp"

type endpoint struct {
	Instance string
	Host     string
	Port     int
}

func (e endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// entryAddress picks a dialable host from a resolved service entry,
// preferring IPv4.
func entryAddress(entry *zeroconf.ServiceEntry) (endpoint, bool) {
	if entry == nil || entry.Port <= 0 {
		return endpoint{}, false
	}
	e := endpoint{Instance: entry.Instance, Port: entry.Port}
	switch {
	case len(entry.AddrIPv4) > 0:
		e.Host = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		e.Host = entry.AddrIPv6[0].String()
	case entry.HostName != "":
		e.Host = strings.TrimSuffix(entry.HostName, ".")
	default:
		return endpoint{}, false
	}
	return e, true
}

// discoverMPD browses the local network for MPD daemons until ctx is done
// or limit endpoints were found (no limit when limit <= 0). Duplicate
// announcements of the same instance are reported once.
func discoverMPD(ctx context.Context, limit int, logger *slog.Logger) ([]endpoint, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("initializing resolver: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu    sync.Mutex
		found []endpoint
		seen  = make(map[string]bool)
		done  = make(chan struct{})
	)
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		defer close(done)
		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				e, ok := entryAddress(entry)
				if !ok {
					continue
				}
				mu.Lock()
				if !seen[e.Instance] {
					seen[e.Instance] = true
					found = append(found, e)
					logger.Debug("discovered mpd", "instance", e.Instance, "address", e.Address())
					if limit > 0 && len(found) >= limit {
						cancel()
					}
				}
				mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()

	if err := resolver.Browse(ctx, mpdService, "local.", entries); err != nil {
		return nil, fmt.Errorf("browsing for %s: %w", mpdService, err)
	}
	<-ctx.Done()
	<-done

	mu.Lock()
	defer mu.Unlock()
	return found, nil
}

// discoverCmd implements "empede discover".
func discoverCmd(args []string, logger *slog.Logger) error {
	flags := newDiscoverFlags()
	if err := flags.Parse(args); err != nil {
		return err
	}
	timeout, _ := flags.GetDuration("timeout")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	endpoints, err := discoverMPD(ctx, 0, logger)
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		return fmt.Errorf("no MPD found within %v", timeout)
	}
	for _, e := range endpoints {
		fmt.Printf("%s\t%s\n", e.Instance, e.Address())
	}
	return nil
}

// firstDiscovered waits up to timeout for one announced daemon.
func firstDiscovered(timeout time.Duration, logger *slog.Logger) (endpoint, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	endpoints, err := discoverMPD(ctx, 1, logger)
	if err != nil {
		return endpoint{}, err
	}
	if len(endpoints) == 0 {
		return endpoint{}, fmt.Errorf("no MPD found within %v", timeout)
	}
	return endpoints[0], nil
}
