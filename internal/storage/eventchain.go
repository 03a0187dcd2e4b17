package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/dbctx"
)

// EventChainStore implements the EventChain interfaces of
// internal/classifier and internal/returns over one payment_events table,
// the hash-chained per-payment audit log (spec §4.4, §8).
type EventChainStore struct {
	DB *sql.DB
}

func NewEventChainStore(db *sql.DB) *EventChainStore {
	return &EventChainStore{DB: db}
}

// LastEventHash returns the most recently appended event_hash for
// paymentID, or "" if the chain has no events yet (callers fall back to
// idempotency.GenesisHash in that case).
func (s *EventChainStore) LastEventHash(ctx context.Context, paymentID string) (string, error) {
	var hash string

	row := dbctx.From(ctx, s.DB).QueryRowContext(ctx, `
		SELECT event_hash FROM payment_events
		WHERE payment_id = $1 ORDER BY timestamp DESC LIMIT 1`, paymentID)

	err := row.Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("query last event hash: %w", err)
	}

	return hash, nil
}

func (s *EventChainStore) AppendEvent(ctx context.Context, ev domain.PaymentEvent) error {
	_, err := dbctx.From(ctx, s.DB).ExecContext(ctx, `
		INSERT INTO payment_events
			(event_id, payment_id, type, data, correlation_id, timestamp, prev_event_hash, event_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.EventID, ev.PaymentID, ev.Type, ev.Data, ev.CorrelationID, ev.Timestamp, ev.PrevEventHash, ev.EventHash)
	if err != nil {
		return fmt.Errorf("append payment event: %w", err)
	}

	return nil
}
