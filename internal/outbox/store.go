// Package outbox implements the transactional outbox and its dispatch loop
// (spec §4.3, C3): state changes append a row in the same local transaction
// as the mutation, and a background dispatcher publishes rows to the broker
// with ordered-per-aggregate, at-least-once delivery.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/dbctx"
)

// MaxAttempts is the attempt ceiling after which a row is routed to its
// dead-letter exchange and an exception case is opened (spec §4.3).
const MaxAttempts = 5

// Store is the persistence boundary for outbox rows.
type Store interface {
	// Append inserts an outbox row; callers run this inside the same
	// transaction (threaded via ctx, see internal/idempotency.Store.WithTx)
	// as the state change the row announces.
	Append(ctx context.Context, msg domain.OutboxMessage) error
	// FetchBatch selects up to limit unpublished, due rows ordered by
	// created_at (spec §4.3's dispatch loop predicate).
	FetchBatch(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, nextRetryAt time.Time, lastError string) error
}

// PostgresStore implements Store over database/sql (pgx stdlib driver).
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) Append(ctx context.Context, msg domain.OutboxMessage) error {
	_, err := dbctx.From(ctx, s.DB).ExecContext(ctx,
		`INSERT INTO outbox_messages
			(id, aggregate_type, aggregate_id, event_type, payload, exchange, routing_key,
			 correlation_id, attempt_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 0, $9)`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload,
		msg.Exchange, msg.RoutingKey, msg.CorrelationID, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("append outbox row: %w", err)
	}

	return nil
}

func (s *PostgresStore) FetchBatch(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	rows, err := dbctx.From(ctx, s.DB).QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, exchange, routing_key,
			correlation_id, attempt_count, next_retry_at, created_at
		 FROM outbox_messages
		 WHERE published_at IS NULL
		   AND attempt_count < $1
		   AND (next_retry_at IS NULL OR next_retry_at <= $2)
		 ORDER BY created_at
		 LIMIT $3`,
		MaxAttempts, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox batch: %w", err)
	}
	defer rows.Close()

	var out []domain.OutboxMessage

	for rows.Next() {
		var m domain.OutboxMessage

		if err := rows.Scan(&m.ID, &m.AggregateType, &m.AggregateID, &m.EventType, &m.Payload,
			&m.Exchange, &m.RoutingKey, &m.CorrelationID, &m.AttemptCount, &m.NextRetryAt, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}

		out = append(out, m)
	}

	return out, rows.Err()
}

func (s *PostgresStore) MarkPublished(ctx context.Context, id string) error {
	_, err := dbctx.From(ctx, s.DB).ExecContext(ctx,
		`UPDATE outbox_messages SET published_at = $1 WHERE id = $2`, time.Now().UTC(), id)

	return err
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string, nextRetryAt time.Time, lastError string) error {
	_, err := dbctx.From(ctx, s.DB).ExecContext(ctx,
		`UPDATE outbox_messages
		 SET attempt_count = attempt_count + 1, next_retry_at = $1, last_error = $2
		 WHERE id = $3`,
		nextRetryAt, lastError, id)

	return err
}
