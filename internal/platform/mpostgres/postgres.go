// Package mpostgres is a thin connection hub around database/sql with the
// pgx stdlib driver, grounded on common/mpostgres/postgres.go's singleton
// Connect/GetDB pattern. The dbresolver primary/replica split and
// golang-migrate migration runner are dropped here (see SPEC_FULL.md,
// Dropped teacher dependencies): this module ships one writer connection
// and expects migrations to run out-of-band.
package mpostgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
)

// Connection is a hub which deals with the Postgres connection.
type Connection struct {
	ConnectionString string
	Logger           mlog.Logger
	DB               *sql.DB
	Connected        bool
}

// Connect opens and pings the connection, keeping a singleton *sql.DB.
func (c *Connection) Connect(ctx context.Context) error {
	c.Logger.Info("connecting to postgres...")

	db, err := sql.Open("pgx", c.ConnectionString)
	if err != nil {
		return fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	c.Connected = true
	c.DB = db

	c.Logger.Info("connected to postgres")

	return nil
}

// GetDB returns the pooled connection, initializing it if necessary.
func (c *Connection) GetDB(ctx context.Context) (*sql.DB, error) {
	if c.DB == nil {
		if err := c.Connect(ctx); err != nil {
			return nil, err
		}
	}

	return c.DB, nil
}
