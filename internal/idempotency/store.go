// Package idempotency implements idempotent handler wrapping and the
// per-payment hash chain (spec §4.4, C4), grounded on the teacher's
// transactional command style (each components/ledger/internal/services/
// command/*.go commits exactly one local transaction) generalized into an
// explicit wrap-and-commit helper.
package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/dbctx"
)

// ErrNotFound is returned by Store.Lookup when no record exists for the key.
var ErrNotFound = errors.New("idempotency record not found")

const (
	StateInFlight = "in_flight"
	StateDone     = "done"
)

// Store is the persistence boundary for idempotency records (spec §3,
// table idempotency with unique (handler_name, idempotency_key)).
type Store interface {
	// WithTx runs fn inside one local transaction, committing on success
	// and rolling back on error or panic.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	Lookup(ctx context.Context, handler, key string) (*domain.IdempotencyRecord, error)
	Begin(ctx context.Context, handler, key string) error
	Complete(ctx context.Context, handler, key string) error
}

// PostgresStore implements Store over database/sql (pgx stdlib driver).
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin idempotency tx: %w", err)
	}

	txCtx := dbctx.WithTx(ctx, tx)

	if err := fn(txCtx); err != nil {
		_ = tx.Rollback()
		return err
	}

	return tx.Commit()
}

func (s *PostgresStore) Lookup(ctx context.Context, handler, key string) (*domain.IdempotencyRecord, error) {
	row := dbctx.From(ctx, s.DB).QueryRowContext(ctx,
		`SELECT handler_name, idempotency_key, result_state, created_at
		 FROM idempotency_records WHERE handler_name = $1 AND idempotency_key = $2`,
		handler, key)

	var rec domain.IdempotencyRecord

	if err := row.Scan(&rec.HandlerName, &rec.Key, &rec.ResultState, &rec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, err
	}

	return &rec, nil
}

func (s *PostgresStore) Begin(ctx context.Context, handler, key string) error {
	_, err := dbctx.From(ctx, s.DB).ExecContext(ctx,
		`INSERT INTO idempotency_records (handler_name, idempotency_key, result_state, created_at)
		 VALUES ($1, $2, $3, $4)`,
		handler, key, StateInFlight, time.Now().UTC())

	return err
}

func (s *PostgresStore) Complete(ctx context.Context, handler, key string) error {
	_, err := dbctx.From(ctx, s.DB).ExecContext(ctx,
		`UPDATE idempotency_records SET result_state = $1 WHERE handler_name = $2 AND idempotency_key = $3`,
		StateDone, handler, key)

	return err
}
