// Package dbctx threads a single *sql.Tx through context.Context so that
// independent stores (idempotency records, outbox rows, ledger entries)
// can all participate in the one local transaction a handler opens, per
// spec §4.4 ("all three steps occur in one local transaction together
// with fn's writes").
package dbctx

import (
	"context"
	"database/sql"
)

type txKey struct{}

// WithTx returns a context carrying tx, overriding the Querier's default
// of going straight to the pool.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// Tx returns the transaction stashed in ctx, if any.
func Tx(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(*sql.Tx)
	return tx, ok
}

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// From returns the in-flight transaction if ctx carries one, else db.
func From(ctx context.Context, db *sql.DB) Querier {
	if tx, ok := Tx(ctx); ok {
		return tx
	}

	return db
}
