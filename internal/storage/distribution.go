package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/dbctx"
)

// PositionStore implements distribution.PositionRepository.
type PositionStore struct {
	DB *sql.DB
}

func NewPositionStore(db *sql.DB) *PositionStore {
	return &PositionStore{DB: db}
}

// EffectivePositions returns the investor_positions rows in effect as of
// effectiveDate: the most recent effective_from per investor that is not
// after effectiveDate (spec §4.9).
func (s *PositionStore) EffectivePositions(ctx context.Context, loanID string, effectiveDate time.Time) ([]domain.InvestorPosition, error) {
	rows, err := dbctx.From(ctx, s.DB).QueryContext(ctx, `
		SELECT DISTINCT ON (investor_id) loan_id, investor_id, pct_bps, effective_from
		FROM investor_positions
		WHERE loan_id = $1 AND effective_from <= $2
		ORDER BY investor_id, effective_from DESC`, loanID, effectiveDate)
	if err != nil {
		return nil, fmt.Errorf("query effective investor positions: %w", err)
	}
	defer rows.Close()

	var out []domain.InvestorPosition

	for rows.Next() {
		var p domain.InvestorPosition
		if err := rows.Scan(&p.LoanID, &p.InvestorID, &p.PctBps, &p.EffectiveFrom); err != nil {
			return nil, fmt.Errorf("scan investor position: %w", err)
		}

		out = append(out, p)
	}

	return out, rows.Err()
}

// DistributionStore implements distribution.DistributionWriter and
// reversal.DistributionStore over one payment_distributions table.
type DistributionStore struct {
	DB *sql.DB
}

func NewDistributionStore(db *sql.DB) *DistributionStore {
	return &DistributionStore{DB: db}
}

func (s *DistributionStore) InsertCalculated(ctx context.Context, rows []domain.Distribution) error {
	q := dbctx.From(ctx, s.DB)

	for _, d := range rows {
		_, err := q.ExecContext(ctx, `
			INSERT INTO payment_distributions
				(payment_id, investor_id, amount_cents, servicing_fee_cents, tranche, effective_date, status, clawback_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			d.PaymentID, d.InvestorID, d.AmountCents, d.ServicingFeeCents, d.Tranche, d.EffectiveDate, d.Status, d.ClawbackID)
		if err != nil {
			return fmt.Errorf("insert calculated distribution: %w", err)
		}
	}

	return nil
}

func (s *DistributionStore) MarkPosted(ctx context.Context, paymentID string) error {
	_, err := dbctx.From(ctx, s.DB).ExecContext(ctx, `
		UPDATE payment_distributions SET status = $1 WHERE payment_id = $2 AND status = $3`,
		domain.DistributionPosted, paymentID, domain.DistributionCalculated)
	if err != nil {
		return fmt.Errorf("mark distributions posted: %w", err)
	}

	return nil
}

func (s *DistributionStore) PostedRows(ctx context.Context, paymentID string) ([]domain.Distribution, error) {
	rows, err := dbctx.From(ctx, s.DB).QueryContext(ctx, `
		SELECT payment_id, investor_id, amount_cents, servicing_fee_cents, tranche, effective_date, status, clawback_id
		FROM payment_distributions WHERE payment_id = $1 AND status = $2`,
		paymentID, domain.DistributionPosted)
	if err != nil {
		return nil, fmt.Errorf("query posted distributions: %w", err)
	}
	defer rows.Close()

	var out []domain.Distribution

	for rows.Next() {
		var d domain.Distribution
		if err := rows.Scan(&d.PaymentID, &d.InvestorID, &d.AmountCents, &d.ServicingFeeCents, &d.Tranche, &d.EffectiveDate, &d.Status, &d.ClawbackID); err != nil {
			return nil, fmt.Errorf("scan posted distribution: %w", err)
		}

		out = append(out, d)
	}

	return out, rows.Err()
}

func (s *DistributionStore) InsertClawback(ctx context.Context, rows []domain.Distribution) error {
	return s.InsertCalculated(ctx, rows)
}
