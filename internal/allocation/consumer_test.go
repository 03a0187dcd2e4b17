package allocation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub010/internal/allocation"
	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/envelope"
	"github.com/cschwartz85032/loanserve-sub010/internal/idempotency"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
)

type fakeLocks struct{ locked []string }

func (l *fakeLocks) Lock(ctx context.Context, loanID string) error {
	l.locked = append(l.locked, loanID)
	return nil
}

type fakeBalances struct{ byLoan map[string]domain.LoanBalances }

func (b *fakeBalances) Balances(ctx context.Context, loanID string) (domain.LoanBalances, error) {
	return b.byLoan[loanID], nil
}

type fakeRules struct{ byLoan map[string][]domain.AllocationRule }

func (r *fakeRules) LoanRules(ctx context.Context, loanID string) ([]domain.AllocationRule, error) {
	return r.byLoan[loanID], nil
}

type fakeLedger struct{ entries []domain.LedgerEntry }

func (l *fakeLedger) InsertEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	l.entries = append(l.entries, entries...)
	return nil
}

type fakePayments struct{ transitions []string }

func (p *fakePayments) Transition(ctx context.Context, paymentID string, to domain.PaymentState, reason string) error {
	p.transitions = append(p.transitions, paymentID+"->"+string(to))
	return nil
}

type fakeOutbox struct{ appended []domain.OutboxMessage }

func (o *fakeOutbox) Append(ctx context.Context, msg domain.OutboxMessage) error {
	o.appended = append(o.appended, msg)
	return nil
}

type idemMemStore struct{ done map[string]bool }

func newIdemMemStore() *idemMemStore { return &idemMemStore{done: map[string]bool{}} }

func (s *idemMemStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (s *idemMemStore) Lookup(ctx context.Context, handler, key string) (*domain.IdempotencyRecord, error) {
	if s.done[handler+"/"+key] {
		return &domain.IdempotencyRecord{HandlerName: handler, Key: key, ResultState: idempotency.StateDone}, nil
	}

	return nil, idempotency.ErrNotFound
}

func (s *idemMemStore) Begin(ctx context.Context, handler, key string) error { return nil }

func (s *idemMemStore) Complete(ctx context.Context, handler, key string) error {
	s.done[handler+"/"+key] = true
	return nil
}

func newConsumer(balances map[string]domain.LoanBalances) (*allocation.Consumer, *fakeLedger, *fakePayments, *fakeOutbox, *fakeLocks) {
	ledger := &fakeLedger{}
	payments := &fakePayments{}
	out := &fakeOutbox{}
	locks := &fakeLocks{}

	c := &allocation.Consumer{
		Locks:    locks,
		Balances: &fakeBalances{byLoan: balances},
		Rules:    &fakeRules{byLoan: map[string][]domain.AllocationRule{}},
		Ledger:   ledger,
		Payments: payments,
		Outbox:   out,
		Wrapper:  idempotency.NewWrapper(newIdemMemStore()),
		Factory:  envelope.NewFactory("allocation@1"),
		Logger:   &mlog.NoneLogger{},
		Now:      func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) },
	}

	return c, ledger, payments, out, locks
}

func sagaStartEnvelope(paymentID, loanID string, amount int64, policy domain.Policy) domain.Envelope {
	f := envelope.NewFactory("classifier@1")

	return f.Create("saga.payment.start", map[string]any{
		"payment_id":     paymentID,
		"loan_id":        loanID,
		"source":         "ach",
		"amount_cents":   amount,
		"effective_date": time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		"policy":         policy,
		"config":         domain.Policies[policy],
	})
}

func TestHandle_currentPolicyPostsLedgerAndTransitions(t *testing.T) {
	balances := map[string]domain.LoanBalances{
		"loan-1": {AccruedInterestCents: 10000, PrincipalBalanceCents: 20000, CurrentEscrowCents: 5000},
	}
	c, ledger, payments, out, locks := newConsumer(balances)

	env := sagaStartEnvelope("pay-1", "loan-1", 35000, domain.PolicyCurrent)
	require.NoError(t, c.Handle(context.Background(), env))

	assert.Contains(t, locks.locked, "loan-1")
	assert.NotEmpty(t, ledger.entries)
	assert.Contains(t, payments.transitions, "pay-1->posted_pending_settlement")
	require.Len(t, out.appended, 1)
	assert.Equal(t, "payment.ach.posted", out.appended[0].RoutingKey)
}

func TestHandle_chargedOffPolicyRoutesToRecoveryDirectly(t *testing.T) {
	c, ledger, payments, out, _ := newConsumer(nil)

	env := sagaStartEnvelope("pay-2", "loan-2", 1500, domain.PolicyChargedOff)
	require.NoError(t, c.Handle(context.Background(), env))

	require.Len(t, ledger.entries, 2)
	assert.Equal(t, domain.AccountRecovery, ledger.entries[1].Account)
	assert.Contains(t, payments.transitions, "pay-2->posted_pending_settlement")
	require.Len(t, out.appended, 1)
}

func TestHandle_duplicateDeliveryDoesNotDoublePost(t *testing.T) {
	balances := map[string]domain.LoanBalances{"loan-1": {AccruedInterestCents: 10000}}
	c, ledger, _, out, _ := newConsumer(balances)

	env := sagaStartEnvelope("pay-3", "loan-1", 100, domain.PolicyCurrent)
	require.NoError(t, c.Handle(context.Background(), env))
	require.NoError(t, c.Handle(context.Background(), env))

	assert.Len(t, out.appended, 1)
	firstCount := len(ledger.entries)
	assert.NotZero(t, firstCount)
}
