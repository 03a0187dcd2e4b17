package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/dbctx"
)

// LoanStore implements the LoanRepository interfaces needed by
// internal/classifier, internal/allocation, and internal/reversal against
// one loans table.
type LoanStore struct {
	DB *sql.DB
}

func NewLoanStore(db *sql.DB) *LoanStore {
	return &LoanStore{DB: db}
}

func (s *LoanStore) GetLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	if loanID == "" {
		return nil, nil
	}

	q := dbctx.From(ctx, s.DB)

	var l domain.Loan

	var nextPaymentDate sql.NullTime

	row := q.QueryRowContext(ctx, `
		SELECT loan_id, status, days_past_due, accept_partial_payments,
			late_fee_balance, accrued_interest, principal_balance, next_payment_date
		FROM loans WHERE loan_id = $1`, loanID)

	err := row.Scan(&l.LoanID, &l.Status, &l.DaysPastDue, &l.AcceptPartialPayments,
		&l.LateFeeBalance, &l.AccruedInterest, &l.PrincipalBalance, &nextPaymentDate)
	if err == sql.ErrNoRows {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("scan loan: %w", err)
	}

	if nextPaymentDate.Valid {
		l.NextPaymentDate = nextPaymentDate.Time
	}

	return &l, nil
}

func (s *LoanStore) AdjustPrincipal(ctx context.Context, loanID string, deltaCents int64) error {
	_, err := dbctx.From(ctx, s.DB).ExecContext(ctx,
		`UPDATE loans SET principal_balance = principal_balance + $1 WHERE loan_id = $2`, deltaCents, loanID)
	if err != nil {
		return fmt.Errorf("adjust loan principal: %w", err)
	}

	return nil
}

func (s *LoanStore) AddLateFee(ctx context.Context, loanID string, cents int64) error {
	_, err := dbctx.From(ctx, s.DB).ExecContext(ctx,
		`UPDATE loans SET late_fee_balance = late_fee_balance + $1 WHERE loan_id = $2`, cents, loanID)
	if err != nil {
		return fmt.Errorf("add loan late fee: %w", err)
	}

	return nil
}

func (s *LoanStore) SetNextPaymentDate(ctx context.Context, loanID string, next time.Time) error {
	_, err := dbctx.From(ctx, s.DB).ExecContext(ctx,
		`UPDATE loans SET next_payment_date = $1 WHERE loan_id = $2`, next, loanID)
	if err != nil {
		return fmt.Errorf("set loan next payment date: %w", err)
	}

	return nil
}

func (s *LoanStore) SetStatus(ctx context.Context, loanID string, status domain.LoanStatus) error {
	_, err := dbctx.From(ctx, s.DB).ExecContext(ctx,
		`UPDATE loans SET status = $1 WHERE loan_id = $2`, status, loanID)
	if err != nil {
		return fmt.Errorf("set loan status: %w", err)
	}

	return nil
}

func (s *LoanStore) Balances(ctx context.Context, loanID string) (domain.LoanBalances, error) {
	loan, err := s.GetLoan(ctx, loanID)
	if err != nil {
		return domain.LoanBalances{}, err
	}

	if loan == nil {
		return domain.LoanBalances{}, nil
	}

	q := dbctx.From(ctx, s.DB)

	var shortage, current sql.NullInt64

	row := q.QueryRowContext(ctx, `
		SELECT escrow_shortage, current_escrow FROM loan_escrow_balances WHERE loan_id = $1`, loanID)
	if err := row.Scan(&shortage, &current); err != nil && err != sql.ErrNoRows {
		return domain.LoanBalances{}, fmt.Errorf("scan escrow balances: %w", err)
	}

	return domain.LoanBalances{
		LateFeeBalanceCents:    loan.LateFeeBalance,
		AccruedInterestCents:   loan.AccruedInterest,
		PrincipalBalanceCents:  loan.PrincipalBalance,
		EscrowShortageCents:    shortage.Int64,
		CurrentEscrowCents:     current.Int64,
	}, nil
}

// LoanLock implements allocation.LoanLocker via a transaction-scoped Postgres
// advisory lock, held until the enclosing transaction commits or rolls
// back (spec §4.8, §5: "all loan-state mutations acquire a per-loan
// advisory lock before reading balances, held until commit").
type LoanLock struct {
	DB *sql.DB
}

func NewLoanLock(db *sql.DB) *LoanLock {
	return &LoanLock{DB: db}
}

func (l *LoanLock) Lock(ctx context.Context, loanID string) error {
	q := dbctx.From(ctx, l.DB)

	if _, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, loanID); err != nil {
		return fmt.Errorf("acquire loan advisory lock: %w", err)
	}

	return nil
}

// ReturnWindowStore implements validation.ReturnWindowWriter.
type ReturnWindowStore struct {
	DB *sql.DB
}

func NewReturnWindowStore(db *sql.DB) *ReturnWindowStore {
	return &ReturnWindowStore{DB: db}
}

func (s *ReturnWindowStore) CreateReturnWindow(ctx context.Context, paymentID string, days int) error {
	_, err := dbctx.From(ctx, s.DB).ExecContext(ctx, `
		INSERT INTO ach_return_windows (payment_id, closes_at)
		VALUES ($1, $2)
		ON CONFLICT (payment_id) DO NOTHING`,
		paymentID, time.Now().UTC().AddDate(0, 0, days))
	if err != nil {
		return fmt.Errorf("create ach return window: %w", err)
	}

	return nil
}

// RuleStore implements allocation.RuleRepository.
type RuleStore struct {
	DB *sql.DB
}

func NewRuleStore(db *sql.DB) *RuleStore {
	return &RuleStore{DB: db}
}

func (s *RuleStore) LoanRules(ctx context.Context, loanID string) ([]domain.AllocationRule, error) {
	rows, err := dbctx.From(ctx, s.DB).QueryContext(ctx, `
		SELECT loan_id, priority, target, enabled
		FROM allocation_rules WHERE loan_id = $1 ORDER BY priority`, loanID)
	if err != nil {
		return nil, fmt.Errorf("query allocation rules: %w", err)
	}
	defer rows.Close()

	var out []domain.AllocationRule

	for rows.Next() {
		var r domain.AllocationRule
		if err := rows.Scan(&r.LoanID, &r.Priority, &r.Target, &r.Enabled); err != nil {
			return nil, fmt.Errorf("scan allocation rule: %w", err)
		}

		out = append(out, r)
	}

	return out, rows.Err()
}

// EscrowStore implements reversal.EscrowStore by mirroring the escrow
// ledger rows tagged against the returned payment (spec §4.10 step 3).
type EscrowStore struct {
	DB *sql.DB
}

func NewEscrowStore(db *sql.DB) *EscrowStore {
	return &EscrowStore{DB: db}
}

var escrowAccounts = []domain.Account{
	domain.AccountEscrowTax, domain.AccountEscrowHazard, domain.AccountEscrowFlood, domain.AccountEscrowMI,
}

func (s *EscrowStore) ReverseEscrow(ctx context.Context, paymentID string) error {
	q := dbctx.From(ctx, s.DB)

	rows, err := q.QueryContext(ctx, `
		SELECT loan_id, payment_id, account, debit_cents, credit_cents, effective_date
		FROM ledger_entries WHERE payment_id = $1 AND account = ANY($2) AND reversal_of = ''`,
		paymentID, accountNames(escrowAccounts))
	if err != nil {
		return fmt.Errorf("load escrow ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry

	for rows.Next() {
		var e domain.LedgerEntry
		if err := rows.Scan(&e.LoanID, &e.PaymentID, &e.Account, &e.DebitCents, &e.CreditCents, &e.EffectiveDate); err != nil {
			return fmt.Errorf("scan escrow ledger entry: %w", err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range entries {
		_, err := q.ExecContext(ctx, `
			INSERT INTO ledger_entries (loan_id, payment_id, account, debit_cents, credit_cents, pending, effective_date, created_at, reversal_of)
			VALUES ($1, $2, $3, $4, $5, false, $6, $7, $2)`,
			e.LoanID, e.PaymentID, e.Account, e.CreditCents, e.DebitCents, e.EffectiveDate, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert mirrored escrow entry: %w", err)
		}
	}

	return nil
}

func accountNames(accounts []domain.Account) []string {
	out := make([]string, len(accounts))
	for i, a := range accounts {
		out[i] = string(a)
	}

	return out
}
