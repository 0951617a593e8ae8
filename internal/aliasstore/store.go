// Package aliasstore implements the pluggable, TTL-bearing key/value
// store used to hold SRS alias records: the mapping from a short,
// opaque alias key back to the original address it stands in for. Two
// backends are supported, selected by URI scheme: "sqlite:" and
// "redis:".
package aliasstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Read when no record exists for a key (or
// it has expired).
var ErrNotFound = errors.New("aliasstore: key not found")

// Store is a TTL-bearing key/value store. Implementations must be safe
// for concurrent use by multiple goroutines.
type Store interface {
	// Read looks up key, returning ErrNotFound if it is absent or has
	// expired.
	Read(ctx context.Context, key string) (string, error)
	// Write stores value under key with the given lifetime. A backend
	// that cannot express per-key expiry natively (none currently do;
	// this is a future-extension seam) would ignore lifetime.
	Write(ctx context.Context, key, value string, lifetime time.Duration) error
	// Expire removes every record whose lifetime has elapsed. Backends
	// that expire records natively (redis) implement this as a no-op.
	Expire(ctx context.Context) error
	// Close releases the backend's resources.
	Close() error
}

// Open connects to the store named by uri, one of "sqlite:<path>" or
// "redis://<host>[:<port>]" (or "redis:/path/to.sock" for a Unix
// socket, mirroring the C daemon's endpoint syntax). createIfNotExist
// controls whether the sqlite backend creates its schema on first use.
func Open(uri string, createIfNotExist bool) (Store, error) {
	switch {
	case strings.HasPrefix(uri, "sqlite:"):
		return openSQLite(strings.TrimPrefix(uri, "sqlite:"), createIfNotExist)
	case strings.HasPrefix(uri, "redis:"):
		return openRedis(strings.TrimPrefix(uri, "redis:"))
	case uri == "":
		return nil, errors.New("aliasstore: no database uri configured")
	default:
		return nil, fmt.Errorf("aliasstore: unsupported database %q", uri)
	}
}
