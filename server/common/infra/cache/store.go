package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable marks a transient failure of the backing store. Read paths
// treat it as a miss; write paths return it to the caller.
var ErrUnavailable = errors.New("cache: store unavailable")

// Store is a key/value store with a per-key time-to-live. Each operation is a
// single atomic round trip, and implementations are safe for concurrent use.
type Store interface {
	// Set replaces any existing value and arms the TTL from the moment of the call.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Get reports found=false for absent or expired keys; that is not an error.
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Del removes key; deleting an absent key succeeds.
	Del(ctx context.Context, key string) error
	IsAlive(ctx context.Context) bool
}
