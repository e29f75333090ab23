// Package cache defines the key/value store consumed by the fallback
// dispatcher and cooldown bookkeeping, with local and shared backends.
package cache

import (
	"context"
	"time"
)

// Cache is the minimal key/value surface the resilience core needs.
// Implementations follow a last-write-wins discipline; no multi-key
// transactions are required.
type Cache interface {
	// Get returns the value for key. The boolean is false on a miss.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ListPush prepends value to the list at key.
	ListPush(ctx context.Context, key string, value string) error

	// ListTrim keeps only the elements in [start, stop].
	ListTrim(ctx context.Context, key string, start, stop int64) error

	// ListLen returns the length of the list at key.
	ListLen(ctx context.Context, key string) (int64, error)

	// Expire sets a ttl on an existing key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
