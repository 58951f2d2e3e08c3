// Package kv is the persistence contract the canvas state is built on, plus its backends.
package kv

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("kv: key not found")

// Store is the minimal key/value contract: plain keys with optional expiry, an atomic
// counter, and hashes whose fields can be written independently.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// SetNX stores value only if key does not exist. ttl <= 0 means no expiry.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Incr(ctx context.Context, key string) (int64, error)
	// TTL returns the remaining lifetime of key, or 0 if it is missing or never expires.
	TTL(ctx context.Context, key string) (time.Duration, error)
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	Ping(ctx context.Context) error
	Close() error
}
