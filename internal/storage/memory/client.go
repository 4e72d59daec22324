package memory

import (
	"context"
	"sync"
	"time"
)

// Client is an in-process RateLimitStore. Counters use a sliding window of
// timestamps per key; state is lost on restart, which is acceptable for
// short-horizon abuse damping.
type Client struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

func New() *Client {
	return &Client{hits: make(map[string][]time.Time), now: time.Now}
}

// NewWithClock is used by tests to control time.
func NewWithClock(now func() time.Time) *Client {
	return &Client{hits: make(map[string][]time.Time), now: now}
}

func (c *Client) Close() error { return nil }

// Hit records one attempt and reports whether key stays within max for the
// window. The increment-then-compare runs under the lock, so two
// near-simultaneous attempts cannot both slip under the limit.
func (c *Client) Hit(ctx context.Context, key string, window time.Duration, max int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	cutoff := now.Add(-window)
	slice := c.hits[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= max {
		c.hits[key] = slice
		return false, nil
	}
	c.hits[key] = append(slice, now)
	return true, nil
}
