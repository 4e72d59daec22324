package storage

import (
	"context"
	"time"
)

// RateLimitStore counts message-write attempts per identity and window.
// Hit atomically records one attempt under key and reports whether the
// attempt stays within max for the window. Implementations: redis.Client
// (shared counters for multi-instance deployments), memory.Client (single
// process, also used without Redis in development).
type RateLimitStore interface {
	Hit(ctx context.Context, key string, window time.Duration, max int) (allowed bool, err error)
	Close() error
}
