package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client is a Redis-backed RateLimitStore. Counters are shared between
// instances, so limits hold across a multi-node deployment.
type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// Underlying exposes the raw client for collaborators that share the
// connection (push subscriptions).
func (c *Client) Underlying() *redis.Client {
	return c.cli
}

// Hit increments rl:{key} and sets the window TTL on first use. INCR is
// atomic on the server, so concurrent attempts are counted exactly once each.
func (c *Client) Hit(ctx context.Context, key string, window time.Duration, max int) (bool, error) {
	k := "rl:" + key
	n, err := c.cli.Incr(ctx, k).Result()
	if err != nil {
		return false, fmt.Errorf("redis incr %s: %w", k, err)
	}
	if n == 1 {
		c.cli.Expire(ctx, k, window)
	}
	return n <= int64(max), nil
}
