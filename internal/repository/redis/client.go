package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client holds live session snapshots, the active-session set and combat
// timer keys.
type Client struct {
	rdb *redis.Client
}

// NewClient dials Redis from a connection URL and verifies it responds.
func NewClient(ctx context.Context, redisURL string) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 2 * time.Second
	}
	c := &Client{rdb: redis.NewClient(opts)}
	if err := c.Ping(ctx); err != nil {
		c.rdb.Close()
		return nil, err
	}
	return c, nil
}

// Wrap adopts an already connected client. Integration tests use it.
func Wrap(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// Ping reports whether Redis answers within a short deadline.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// PubSubClient exposes the raw client so the combat timer listener can
// subscribe to keyspace events.
func (c *Client) PubSubClient() *redis.Client {
	return c.rdb
}

// EnableExpiryEvents turns on keyspace notifications for expired keys so the
// combat timer listener receives them. Managed Redis deployments may refuse
// CONFIG SET; the poller still covers that case.
func (c *Client) EnableExpiryEvents(ctx context.Context) error {
	return c.rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
}
