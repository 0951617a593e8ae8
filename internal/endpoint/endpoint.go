// Package endpoint binds listening sockets from a daemon endpoint
// string ("unix:<path>", "local:<path>", "inet:<host>:<port>",
// "inet4:...", "inet6:..."), matching the C daemon's endpoint.c.
package endpoint

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

// Listener wraps a bound net.Listener together with the advisory lock
// held for the lifetime of a unix-socket endpoint (nil for inet
// endpoints).
type Listener struct {
	net.Listener
	lock *flock.Flock
}

// Close releases the listener and, for unix sockets, the advisory
// lock file.
func (l *Listener) Close() error {
	err := l.Listener.Close()
	if l.lock != nil {
		l.lock.Unlock()
	}
	return err
}

const listenBacklog = 16

// Bind parses spec and returns the listener(s) it describes. inet
// endpoints may resolve to more than one address family and so can
// return multiple listeners; unix/local endpoints always return
// exactly one.
func Bind(spec string) ([]*Listener, error) {
	switch {
	case strings.HasPrefix(spec, "unix:"):
		l, err := bindUnix(strings.TrimPrefix(spec, "unix:"))
		return oneOrNil(l, err)
	case strings.HasPrefix(spec, "local:"):
		l, err := bindUnix(strings.TrimPrefix(spec, "local:"))
		return oneOrNil(l, err)
	case strings.HasPrefix(spec, "inet6:"):
		return bindInet(strings.TrimPrefix(spec, "inet6:"), "tcp6")
	case strings.HasPrefix(spec, "inet4:"):
		return bindInet(strings.TrimPrefix(spec, "inet4:"), "tcp4")
	case strings.HasPrefix(spec, "inet:"):
		return bindInet(strings.TrimPrefix(spec, "inet:"), "tcp")
	default:
		return nil, fmt.Errorf("endpoint: unrecognized endpoint %q", spec)
	}
}

func oneOrNil(l *Listener, err error) ([]*Listener, error) {
	if err != nil {
		return nil, err
	}
	return []*Listener{l}, nil
}

// bindUnix binds a Unix-domain socket at path, guarded by an advisory
// flock on "<path>.lock" so two daemon instances never race to bind
// the same stale socket.
func bindUnix(path string) (*Listener, error) {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("endpoint: acquiring lock for %s: %w", path, err)
	}
	if !locked {
		return nil, fmt.Errorf("endpoint: %s is already in use", path)
	}

	// A stale socket file left by a crashed previous instance must be
	// removed before bind, now that we hold the lock guaranteeing no
	// live instance still owns it.
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		lock.Unlock()
		return nil, fmt.Errorf("endpoint: removing stale socket %s: %w", path, err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		lock.Unlock()
		return nil, err
	}
	if err := os.Chmod(path, 0o666); err != nil {
		ln.Close()
		lock.Unlock()
		return nil, err
	}
	return &Listener{Listener: ln, lock: lock}, nil
}

// bindInet resolves host:port (host may be "*", "localhost", a
// bracketed IPv6 literal, or a DNS name) and binds a listener for
// every resolved address.
func bindInet(hostport, network string) ([]*Listener, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return nil, fmt.Errorf("endpoint: invalid inet endpoint %q: %w", hostport, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("endpoint: invalid port %q: %w", portStr, err)
	}
	if host == "*" {
		host = ""
	}

	addrs, err := resolveHost(host, network)
	if err != nil {
		return nil, err
	}

	listeners := make([]*Listener, 0, len(addrs))
	for _, addr := range addrs {
		lc := net.ListenConfig{Control: setReuseAddrAndPort}
		ln, err := lc.Listen(context.Background(), network, net.JoinHostPort(addr, strconv.Itoa(port)))
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return nil, err
		}
		listeners = append(listeners, &Listener{Listener: ln})
	}
	return listeners, nil
}

func resolveHost(host, network string) ([]string, error) {
	if host == "" {
		if network == "tcp6" {
			return []string{"::"}, nil
		}
		return []string{"0.0.0.0"}, nil
	}
	if host == "localhost" {
		if network == "tcp6" {
			return []string{"::1"}, nil
		}
		return []string{"127.0.0.1"}, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("endpoint: resolving %q: %w", host, err)
	}
	var out []string
	for _, ip := range ips {
		is4 := ip.To4() != nil
		switch network {
		case "tcp4":
			if is4 {
				out = append(out, ip.String())
			}
		case "tcp6":
			if !is4 {
				out = append(out, ip.String())
			}
		default:
			out = append(out, ip.String())
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("endpoint: no usable addresses for %q", host)
	}
	return out, nil
}

// setReuseAddrAndPort asks for SO_REUSEPORT in addition to Go's default
// SO_REUSEADDR, so the daemon can be restarted (or run with multiple
// listener workers) without waiting out TIME_WAIT. SO_REUSEPORT is
// best-effort: its absence on the platform is not fatal, mirroring
// endpoint.c's own fallback to SO_REUSEADDR alone.
func setReuseAddrAndPort(_, _ string, c syscall.RawConn) error {
	return c.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	})
}
