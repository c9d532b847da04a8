// Package cache defines the cache store seam shared by the server side
// (redis-backed, see rediscache) and the client receiver (in-memory).
// Keys are explicit and owned by the caller; entries expire by TTL and can
// be dropped eagerly with Invalidate.
package cache

import (
	"context"
	"time"
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}
