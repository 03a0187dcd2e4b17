// Package exception implements the exception-case component (C12): a
// structured record of things the pipeline could not resolve on its own,
// with a fixed severity-derivation table and a small CRUD surface for ops
// tooling. OpenCase also satisfies the ExceptionOpener interfaces that
// internal/outbox and internal/classifier depend on, so one store backs
// every caller without a premature shared package.
package exception

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/dbctx"
)

// ErrNotFound is returned when a case id has no row.
var ErrNotFound = errors.New("exception case not found")

// CaseStore is the structured exception_cases persistence (spec §6.5).
type CaseStore interface {
	Create(ctx context.Context, c domain.ExceptionCase) error
	Get(ctx context.Context, id string) (domain.ExceptionCase, error)
	List(ctx context.Context, state domain.ExceptionState) ([]domain.ExceptionCase, error)
	Assign(ctx context.Context, id, assignee string) error
	Resolve(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
}

// PostgresCaseStore implements CaseStore against payment_state_transitions's
// sibling table, exception_cases.
type PostgresCaseStore struct {
	DB *sql.DB
}

func (s *PostgresCaseStore) Create(ctx context.Context, c domain.ExceptionCase) error {
	q := dbctx.From(ctx, s.DB)

	_, err := q.ExecContext(ctx, `
		INSERT INTO exception_cases (id, ingestion_id, payment_id, category, subcategory, severity, state, assignee, ai_recommendation)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.IngestionID, c.PaymentID, c.Category, c.Subcategory, c.Severity, c.State, c.Assignee, c.AIRecommendation)
	if err != nil {
		return fmt.Errorf("insert exception case: %w", err)
	}

	return nil
}

func (s *PostgresCaseStore) Get(ctx context.Context, id string) (domain.ExceptionCase, error) {
	q := dbctx.From(ctx, s.DB)

	var c domain.ExceptionCase

	row := q.QueryRowContext(ctx, `
		SELECT id, ingestion_id, payment_id, category, subcategory, severity, state, assignee, ai_recommendation
		FROM exception_cases WHERE id = $1`, id)

	if err := row.Scan(&c.ID, &c.IngestionID, &c.PaymentID, &c.Category, &c.Subcategory, &c.Severity, &c.State, &c.Assignee, &c.AIRecommendation); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ExceptionCase{}, ErrNotFound
		}

		return domain.ExceptionCase{}, fmt.Errorf("scan exception case: %w", err)
	}

	return c, nil
}

func (s *PostgresCaseStore) List(ctx context.Context, state domain.ExceptionState) ([]domain.ExceptionCase, error) {
	q := dbctx.From(ctx, s.DB)

	rows, err := q.QueryContext(ctx, `
		SELECT id, ingestion_id, payment_id, category, subcategory, severity, state, assignee, ai_recommendation
		FROM exception_cases WHERE state = $1 ORDER BY id`, state)
	if err != nil {
		return nil, fmt.Errorf("list exception cases: %w", err)
	}
	defer rows.Close()

	var out []domain.ExceptionCase

	for rows.Next() {
		var c domain.ExceptionCase
		if err := rows.Scan(&c.ID, &c.IngestionID, &c.PaymentID, &c.Category, &c.Subcategory, &c.Severity, &c.State, &c.Assignee, &c.AIRecommendation); err != nil {
			return nil, fmt.Errorf("scan exception case: %w", err)
		}

		out = append(out, c)
	}

	return out, rows.Err()
}

func (s *PostgresCaseStore) Assign(ctx context.Context, id, assignee string) error {
	return s.setState(ctx, id, domain.ExceptionPending, &assignee)
}

func (s *PostgresCaseStore) Resolve(ctx context.Context, id string) error {
	return s.setState(ctx, id, domain.ExceptionResolved, nil)
}

func (s *PostgresCaseStore) Cancel(ctx context.Context, id string) error {
	return s.setState(ctx, id, domain.ExceptionCancelled, nil)
}

func (s *PostgresCaseStore) setState(ctx context.Context, id string, state domain.ExceptionState, assignee *string) error {
	q := dbctx.From(ctx, s.DB)

	var err error
	if assignee != nil {
		_, err = q.ExecContext(ctx, `UPDATE exception_cases SET state = $1, assignee = $2 WHERE id = $3`, state, *assignee, id)
	} else {
		_, err = q.ExecContext(ctx, `UPDATE exception_cases SET state = $1 WHERE id = $2`, state, id)
	}

	if err != nil {
		return fmt.Errorf("update exception case state: %w", err)
	}

	return nil
}
