// Package mredis is a thin connection hub around go-redis, grounded on
// common/mredis/redis.go's singleton Connect/GetDB pattern. Used by
// internal/idempotency for the fast "already done" cache (spec §4.4).
package mredis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
)

// Connection is a hub which deals with the Redis connection.
type Connection struct {
	ConnectionString string
	Logger           mlog.Logger
	Client           *redis.Client
	Connected        bool
}

// Connect parses the connection string and pings the server.
func (c *Connection) Connect(ctx context.Context) error {
	c.Logger.Info("connecting to redis...")

	opts, err := redis.ParseURL(c.ConnectionString)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	if _, err := client.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	c.Connected = true
	c.Client = client

	c.Logger.Info("connected to redis")

	return nil
}

// GetClient returns the pooled client, initializing it if necessary.
func (c *Connection) GetClient(ctx context.Context) (*redis.Client, error) {
	if c.Client == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.Client, nil
}
