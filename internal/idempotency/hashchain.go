package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
)

// GenesisHash returns the seed hash for a payment's event chain (spec §4.4):
// SHA-256("genesis:" ∥ payment_id).
func GenesisHash(paymentID string) string {
	sum := sha256.Sum256([]byte("genesis:" + paymentID))
	return hex.EncodeToString(sum[:])
}

// NextEventHash computes event_hash = SHA-256(prev_event_hash ∥
// canonical_json(data) ∥ correlation_id ∥ timestamp_iso) per spec §4.4.
// encoding/json already sorts map keys, so Marshal doubles as the
// canonical form without a third-party canonicalization library.
func NextEventHash(prevHash string, data any, correlationID string, ts time.Time) (string, error) {
	canonical, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize event data: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(canonical)
	h.Write([]byte(correlationID))
	h.Write([]byte(ts.UTC().Format(time.RFC3339Nano)))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// ChainMismatch localizes a broken link found while verifying a chain.
type ChainMismatch struct {
	EventID  string
	Index    int
	Expected string
	Found    string
}

func (m *ChainMismatch) Error() string {
	return fmt.Sprintf("hash chain broken at event %s (index %d): expected hash %s, found %s",
		m.EventID, m.Index, m.Expected, m.Found)
}

// VerifyChain walks events in sequence, recomputing each hash from the
// previous link, and returns the first mismatch found (spec §8: "a
// mismatch localizes tampering to the first broken link"). events must
// already be ordered oldest-first. A nil return means the chain is intact.
func VerifyChain(paymentID string, events []domain.PaymentEvent) error {
	expectedPrev := GenesisHash(paymentID)

	for i, ev := range events {
		if ev.PrevEventHash != expectedPrev {
			return &ChainMismatch{EventID: ev.EventID, Index: i, Expected: expectedPrev, Found: ev.PrevEventHash}
		}

		recomputed, err := NextEventHash(ev.PrevEventHash, json.RawMessage(ev.Data), ev.CorrelationID, ev.Timestamp)
		if err != nil {
			return fmt.Errorf("recompute hash for event %s: %w", ev.EventID, err)
		}

		if recomputed != ev.EventHash {
			return &ChainMismatch{EventID: ev.EventID, Index: i, Expected: recomputed, Found: ev.EventHash}
		}

		expectedPrev = ev.EventHash
	}

	return nil
}
