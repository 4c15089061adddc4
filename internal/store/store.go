// Package store defines the key-value store port used by the security engine
// and provides two adapters: a Redis-backed implementation for production and
// an in-memory implementation for tests and single-node development. All
// engine state (events, alerts, API keys, indices, counters) lives behind
// this interface; the engine itself holds no persistent in-process state.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the key does not exist or has expired.
	ErrNotFound = errors.New("store: key not found")

	// ErrUnavailable wraps I/O failures against the backing store.
	ErrUnavailable = errors.New("store: backend unavailable")
)

// Store is the minimal key/list store contract the engine consumes.
//
// Individual operations are atomic; multi-key invariants built on top of them
// (hash-mapping uniqueness, per-user key caps) are not transactionally
// guaranteed — callers must tolerate transient races between related writes.
type Store interface {
	// Get returns the value stored at key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value at key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// PushFront prepends value to the list at listKey and refreshes the
	// list's TTL. A zero ttl leaves the current expiry untouched.
	PushFront(ctx context.Context, listKey, value string, ttl time.Duration) error

	// Range returns list elements in [start, stop] (inclusive, negative
	// indices count from the end, as in Redis LRANGE). A missing list
	// yields an empty slice, not an error.
	Range(ctx context.Context, listKey string, start, stop int64) ([]string, error)

	// RemoveFromList deletes all occurrences of value from the list.
	RemoveFromList(ctx context.Context, listKey, value string) error

	// Increment atomically increments the integer at key and returns the
	// new value, creating the key at 1 if absent.
	Increment(ctx context.Context, key string) (int64, error)

	// TTL returns the remaining time-to-live of key. Keys without an
	// expiry report a negative duration; missing keys return ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Keys returns all keys matching the glob pattern. This is a full
	// scan on most backends — background jobs only, never the hot path.
	Keys(ctx context.Context, pattern string) ([]string, error)
}
