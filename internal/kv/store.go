package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("kv: key not found")

// Entry is one live key/value pair returned by Scan.
type Entry struct {
	Key   string
	Value []byte
}

// Store is a TTL-capable key/value port. Implementations must treat expired
// entries as absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Scan returns every live entry whose key starts with prefix.
	Scan(ctx context.Context, prefix string) ([]Entry, error)
	Ping(ctx context.Context) error
}

// Sweeper is implemented by stores that need a periodic purge of expired entries.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}
