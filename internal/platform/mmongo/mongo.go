// Package mmongo is a thin connection hub around the official Mongo driver,
// grounded on common/mmongo/mongo.go's singleton Connect/GetDB pattern.
// Used by internal/exception to store unstructured investigation notes
// and AI recommendations alongside the structured Postgres case row
// (spec §4.12).
package mmongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
)

// Connection is a hub which deals with the MongoDB connection.
type Connection struct {
	ConnectionString string
	Database         string
	Logger           mlog.Logger
	Client           *mongo.Client
	Connected        bool
}

// Connect dials and pings the server.
func (c *Connection) Connect(ctx context.Context) error {
	c.Logger.Info("connecting to mongodb...")

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.ConnectionString))
	if err != nil {
		return fmt.Errorf("open mongo connection: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping mongo: %w", err)
	}

	c.Connected = true
	c.Client = client

	c.Logger.Info("connected to mongodb")

	return nil
}

// GetClient returns the pooled client, initializing it if necessary.
func (c *Connection) GetClient(ctx context.Context) (*mongo.Client, error) {
	if c.Client == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.Client, nil
}

// Collection returns a handle on a collection within the configured database.
func (c *Connection) Collection(name string) *mongo.Collection {
	return c.Client.Database(c.Database).Collection(name)
}
