package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wonny/pricecanon/pkg/config"
)

const pingTimeout = 5 * time.Second

// Client wraps the Redis connection. Redis is optional infrastructure here:
// it only backs cross-process provider rate limiting, so a client without a
// connection is a valid state and callers fall back to in-process limiting.
type Client struct {
	rdb *redis.Client
}

// New connects when the config enables Redis and verifies the connection
// with a bounded ping. With Redis disabled it returns a client that reports
// Enabled() == false.
func New(ctx context.Context, cfg *config.Config) (*Client, error) {
	if !cfg.Redis.Enabled {
		return &Client{}, nil
	}

	addr := net.JoinHostPort(cfg.Redis.Host, cfg.Redis.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}

	return &Client{rdb: rdb}, nil
}

// Enabled reports whether a live connection is behind this client. Safe on
// a nil receiver so callers can keep a nil client after a failed connect.
func (c *Client) Enabled() bool {
	return c != nil && c.rdb != nil
}

// Close releases the connection. A disabled client closes as a no-op.
func (c *Client) Close() error {
	if c == nil || c.rdb == nil {
		return nil
	}
	return c.rdb.Close()
}

// Redis exposes the underlying connection for the rate limiter.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}
