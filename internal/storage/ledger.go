package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/dbctx"
)

// LedgerStore implements the LedgerWriter/LedgerReader interfaces of
// internal/allocation and internal/distribution, plus the OriginalEntries
// read internal/reversal needs to build its mirror.
type LedgerStore struct {
	DB *sql.DB
}

func NewLedgerStore(db *sql.DB) *LedgerStore {
	return &LedgerStore{DB: db}
}

func (s *LedgerStore) InsertEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	q := dbctx.From(ctx, s.DB)

	for _, e := range entries {
		_, err := q.ExecContext(ctx, `
			INSERT INTO ledger_entries
				(loan_id, payment_id, account, debit_cents, credit_cents, pending, effective_date, created_at, reversal_of)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.LoanID, e.PaymentID, e.Account, e.DebitCents, e.CreditCents, e.Pending,
			e.EffectiveDate, time.Now().UTC(), e.ReversalOf)
		if err != nil {
			return fmt.Errorf("insert ledger entry: %w", err)
		}
	}

	return nil
}

func (s *LedgerStore) CreditsByAccount(ctx context.Context, paymentID string) (map[domain.Account]int64, error) {
	rows, err := dbctx.From(ctx, s.DB).QueryContext(ctx, `
		SELECT account, SUM(credit_cents) FROM ledger_entries
		WHERE payment_id = $1 AND reversal_of = '' GROUP BY account`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("query ledger credits: %w", err)
	}
	defer rows.Close()

	out := map[domain.Account]int64{}

	for rows.Next() {
		var account domain.Account

		var sum int64
		if err := rows.Scan(&account, &sum); err != nil {
			return nil, fmt.Errorf("scan ledger credit: %w", err)
		}

		out[account] = sum
	}

	return out, rows.Err()
}

func (s *LedgerStore) OriginalEntries(ctx context.Context, paymentID string) ([]domain.LedgerEntry, error) {
	rows, err := dbctx.From(ctx, s.DB).QueryContext(ctx, `
		SELECT loan_id, payment_id, account, debit_cents, credit_cents, pending, effective_date
		FROM ledger_entries WHERE payment_id = $1 AND reversal_of = ''`, paymentID)
	if err != nil {
		return nil, fmt.Errorf("query original ledger entries: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry

	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.LoanID, &e.PaymentID, &e.Account, &e.DebitCents, &e.CreditCents, &e.Pending, &e.EffectiveDate); err != nil {
			return nil, fmt.Errorf("scan ledger entry: %w", err)
		}

		e.PaymentID = paymentID

		out = append(out, e)
	}

	return out, rows.Err()
}
