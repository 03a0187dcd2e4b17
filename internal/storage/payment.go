// Package storage implements the Postgres persistence boundary for the
// core domain aggregates (payments, loans, ledger, investor positions and
// distributions), grounded on the same plain database/sql + dbctx pattern
// already used by internal/idempotency, internal/outbox, and
// internal/exception's stores.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/dbctx"
)

// ErrNotFound is returned when a lookup by id has no row.
var ErrNotFound = errors.New("row not found")

// PaymentStore implements the PaymentRepository interfaces of
// internal/validation, internal/allocation, internal/reversal, and the
// PaymentLookup interface of internal/returns against one payments table.
type PaymentStore struct {
	DB *sql.DB
}

func NewPaymentStore(db *sql.DB) *PaymentStore {
	return &PaymentStore{DB: db}
}

func (s *PaymentStore) Insert(ctx context.Context, p domain.Payment) error {
	metadata, err := json.Marshal(p.Metadata)
	if err != nil {
		return fmt.Errorf("marshal payment metadata: %w", err)
	}

	_, err = dbctx.From(ctx, s.DB).ExecContext(ctx, `
		INSERT INTO payments
			(payment_id, loan_id, source, external_ref, amount_cents, currency,
			 received_at, effective_date, state, idempotency_key, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (payment_id) DO NOTHING`,
		p.PaymentID, p.LoanID, p.Source, p.ExternalRef, p.AmountCents, p.Currency,
		p.ReceivedAt, p.EffectiveDate, p.State, p.IdempotencyKey, metadata)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	return nil
}

func (s *PaymentStore) Transition(ctx context.Context, paymentID string, to domain.PaymentState, reason string) error {
	q := dbctx.From(ctx, s.DB)

	var from domain.PaymentState

	row := q.QueryRowContext(ctx, `SELECT state FROM payments WHERE payment_id = $1 FOR UPDATE`, paymentID)
	if err := row.Scan(&from); err != nil {
		return fmt.Errorf("lookup payment state: %w", err)
	}

	if !domain.CanTransition(from, to) {
		return fmt.Errorf("illegal payment state transition %s -> %s", from, to)
	}

	if _, err := q.ExecContext(ctx, `UPDATE payments SET state = $1 WHERE payment_id = $2`, to, paymentID); err != nil {
		return fmt.Errorf("update payment state: %w", err)
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO payment_state_transitions (payment_id, previous_state, new_state, occurred_at, actor, reason)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		paymentID, from, to, time.Now().UTC(), "system", reason)
	if err != nil {
		return fmt.Errorf("insert state transition: %w", err)
	}

	return nil
}

// BanPaymentMethod implements the returns.PaymentMethodBanner policy hook
// (spec §4.10/§6.3: permanent ACH return codes additionally mark the
// originating payment method as banned). Recorded in payment_method_bans
// rather than mutated onto the payment row, since a ban is a fact about
// the method, not the one payment that triggered it.
func (s *PaymentStore) BanPaymentMethod(ctx context.Context, paymentID, reason string) error {
	_, err := dbctx.From(ctx, s.DB).ExecContext(ctx, `
		INSERT INTO payment_method_bans (payment_id, reason, banned_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (payment_id) DO NOTHING`,
		paymentID, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("insert payment method ban: %w", err)
	}

	return nil
}

func (s *PaymentStore) GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error) {
	q := dbctx.From(ctx, s.DB)

	var p domain.Payment

	var metadata []byte

	row := q.QueryRowContext(ctx, `
		SELECT payment_id, loan_id, source, external_ref, amount_cents, currency,
			received_at, effective_date, state, idempotency_key, metadata
		FROM payments WHERE payment_id = $1`, paymentID)

	err := row.Scan(&p.PaymentID, &p.LoanID, &p.Source, &p.ExternalRef, &p.AmountCents, &p.Currency,
		&p.ReceivedAt, &p.EffectiveDate, &p.State, &p.IdempotencyKey, &metadata)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scan payment: %w", err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal payment metadata: %w", err)
		}
	}

	return &p, nil
}
