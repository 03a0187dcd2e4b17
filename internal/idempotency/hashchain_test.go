package idempotency_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/idempotency"
)

func buildChain(t *testing.T, paymentID string, n int) []domain.PaymentEvent {
	t.Helper()

	prev := idempotency.GenesisHash(paymentID)
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	events := make([]domain.PaymentEvent, 0, n)

	for i := 0; i < n; i++ {
		data := map[string]any{"seq": i}
		ts = ts.Add(time.Minute)

		hash, err := idempotency.NextEventHash(prev, data, "corr-1", ts)
		require.NoError(t, err)

		raw, err := json.Marshal(data)
		require.NoError(t, err)

		events = append(events, domain.PaymentEvent{
			EventID:       "evt-" + string(rune('a'+i)),
			PaymentID:     paymentID,
			Data:          raw,
			CorrelationID: "corr-1",
			Timestamp:     ts,
			PrevEventHash: prev,
			EventHash:     hash,
		})

		prev = hash
	}

	return events
}

func TestVerifyChain_intact(t *testing.T) {
	events := buildChain(t, "pay-1", 3)
	assert.NoError(t, idempotency.VerifyChain("pay-1", events))
}

func TestVerifyChain_detectsTamperedLink(t *testing.T) {
	events := buildChain(t, "pay-1", 3)
	events[1].EventHash = "tampered"

	err := idempotency.VerifyChain("pay-1", events)
	require.Error(t, err)

	var mismatch *idempotency.ChainMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 1, mismatch.Index)
}

func TestVerifyChain_detectsBrokenGenesis(t *testing.T) {
	events := buildChain(t, "pay-1", 2)
	events[0].PrevEventHash = "not-genesis"

	err := idempotency.VerifyChain("pay-1", events)
	require.Error(t, err)

	var mismatch *idempotency.ChainMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 0, mismatch.Index)
}

func TestGenesisHash_isDeterministicPerPayment(t *testing.T) {
	assert.Equal(t, idempotency.GenesisHash("pay-1"), idempotency.GenesisHash("pay-1"))
	assert.NotEqual(t, idempotency.GenesisHash("pay-1"), idempotency.GenesisHash("pay-2"))
}
