// Package cache stores sanitized SVG documents between runs.
//
// Sanitizing is the only expensive step of a compile, and its output depends
// only on the source bytes and the sanitizer version. Entries are keyed by a
// [Keyer] so the file and Redis backends agree on names, and every backend
// treats a failed lookup as a miss: the cache can speed a run up but never
// change what it produces.
//
// # Backends
//
//   - [FileCache]: JSON entries under a directory, for local use
//   - [RedisCache]: a shared Redis instance, for CI fleets
//   - [NullCache]: stores nothing
package cache

import (
	"context"
	"time"
)

// Cache is a byte-oriented key/value store with optional expiry.
type Cache interface {
	// Get returns the stored value. hit is false when the key is absent or
	// expired; err is reserved for backend failures.
	Get(ctx context.Context, key string) (data []byte, hit bool, err error)

	// Set stores data under key. A ttl of zero never expires.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every entry owned by this cache.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
