package envelope_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub010/internal/envelope"
)

func TestFactory_Create_freshIDs(t *testing.T) {
	f := envelope.NewFactory("validation@1.0.0")

	e1 := f.Create("loanserve.payment.v1.received", map[string]any{"a": 1})
	e2 := f.Create("loanserve.payment.v1.received", map[string]any{"a": 2})

	assert.NotEmpty(t, e1.MessageID)
	assert.NotEqual(t, e1.MessageID, e2.MessageID)
	assert.NotEqual(t, e1.CorrelationID, e2.CorrelationID)
	assert.Equal(t, "validation@1.0.0", e1.Producer)
	assert.Equal(t, 1, e1.Version)
	assert.Empty(t, e1.CausationID)
}

func TestFactory_Reply_inheritsCorrelationAndCausation(t *testing.T) {
	f := envelope.NewFactory("classifier@1.0.0")

	parent := f.Create("loanserve.payment.v1.validated", nil)
	child := f.Reply(parent, "loanserve.payment.v1.classified", nil)

	require.Equal(t, parent.CorrelationID, child.CorrelationID)
	require.Equal(t, parent.MessageID, child.CausationID)
	assert.NotEqual(t, parent.MessageID, child.MessageID)
}

func TestFactory_Batch_sharesOneCorrelationID(t *testing.T) {
	f := envelope.NewFactory("distribution@1.0.0")

	items := []any{"inv-1", "inv-2", "inv-3"}
	batch := f.Batch("loanserve.distribution.v1.calculated", items)

	require.Len(t, batch, 3)

	for i := 1; i < len(batch); i++ {
		assert.Equal(t, batch[0].CorrelationID, batch[i].CorrelationID)
		assert.NotEqual(t, batch[0].MessageID, batch[i].MessageID)
	}
}

func TestFactory_WithIdempotencyKey_isCallerSupplied(t *testing.T) {
	f := envelope.NewFactory("ingress@1.0.0")

	e := f.Create("loanserve.payment.v1.received", nil, envelope.WithIdempotencyKey("ach:trace123:2026-07-31:35000"))

	assert.Equal(t, "ach:trace123:2026-07-31:35000", e.IdempotencyKey)
}
