package reversal_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/envelope"
	"github.com/cschwartz85032/loanserve-sub010/internal/idempotency"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
	"github.com/cschwartz85032/loanserve-sub010/internal/reversal"
)

type fakePayments struct {
	transitions []string
	failWith    error
}

func (p *fakePayments) Transition(ctx context.Context, paymentID string, to domain.PaymentState, reason string) error {
	if p.failWith != nil {
		return p.failWith
	}

	p.transitions = append(p.transitions, paymentID+"->"+string(to))
	return nil
}

type fakeLedgerStore struct {
	original map[string][]domain.LedgerEntry
	inserted []domain.LedgerEntry
}

func (l *fakeLedgerStore) OriginalEntries(ctx context.Context, paymentID string) ([]domain.LedgerEntry, error) {
	return l.original[paymentID], nil
}

func (l *fakeLedgerStore) InsertEntries(ctx context.Context, entries []domain.LedgerEntry) error {
	l.inserted = append(l.inserted, entries...)
	return nil
}

type fakeLoans struct {
	byLoan         map[string]*domain.Loan
	principalDelta map[string]int64
	lateFees       map[string]int64
	nextDates      map[string]time.Time
	statuses       map[string]domain.LoanStatus
}

func newFakeLoans() *fakeLoans {
	return &fakeLoans{
		byLoan:         map[string]*domain.Loan{},
		principalDelta: map[string]int64{},
		lateFees:       map[string]int64{},
		nextDates:      map[string]time.Time{},
		statuses:       map[string]domain.LoanStatus{},
	}
}

func (l *fakeLoans) GetLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	return l.byLoan[loanID], nil
}

func (l *fakeLoans) AdjustPrincipal(ctx context.Context, loanID string, deltaCents int64) error {
	l.principalDelta[loanID] += deltaCents
	return nil
}

func (l *fakeLoans) AddLateFee(ctx context.Context, loanID string, cents int64) error {
	l.lateFees[loanID] += cents
	return nil
}

func (l *fakeLoans) SetNextPaymentDate(ctx context.Context, loanID string, next time.Time) error {
	l.nextDates[loanID] = next
	return nil
}

func (l *fakeLoans) SetStatus(ctx context.Context, loanID string, status domain.LoanStatus) error {
	l.statuses[loanID] = status
	return nil
}

type fakeEscrow struct {
	reversed []string
	failWith error
}

func (e *fakeEscrow) ReverseEscrow(ctx context.Context, paymentID string) error {
	if e.failWith != nil {
		return e.failWith
	}

	e.reversed = append(e.reversed, paymentID)
	return nil
}

type fakeDistribution struct {
	posted    map[string][]domain.Distribution
	clawbacks []domain.Distribution
}

func (d *fakeDistribution) PostedRows(ctx context.Context, paymentID string) ([]domain.Distribution, error) {
	return d.posted[paymentID], nil
}

func (d *fakeDistribution) InsertClawback(ctx context.Context, rows []domain.Distribution) error {
	d.clawbacks = append(d.clawbacks, rows...)
	return nil
}

type fakeOutbox struct{ appended []domain.OutboxMessage }

func (o *fakeOutbox) Append(ctx context.Context, msg domain.OutboxMessage) error {
	o.appended = append(o.appended, msg)
	return nil
}

func (o *fakeOutbox) routingKeys() []string {
	out := make([]string, len(o.appended))
	for i, m := range o.appended {
		out[i] = m.RoutingKey
	}
	return out
}

type fakeException struct {
	opened        int
	severities    []domain.ExceptionSeverity
	subcategories []string
}

func (e *fakeException) OpenCaseWithSeverity(ctx context.Context, category, subcategory string, msg domain.OutboxMessage, severity domain.ExceptionSeverity, reason string) error {
	e.opened++
	e.severities = append(e.severities, severity)
	e.subcategories = append(e.subcategories, subcategory)
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

type harness struct {
	c        *reversal.Consumer
	payments *fakePayments
	ledger   *fakeLedgerStore
	loans    *fakeLoans
	escrow   *fakeEscrow
	dist     *fakeDistribution
	out      *fakeOutbox
	exc      *fakeException
}

func newHarness() *harness {
	h := &harness{
		payments: &fakePayments{},
		ledger:   &fakeLedgerStore{original: map[string][]domain.LedgerEntry{}},
		loans:    newFakeLoans(),
		escrow:   &fakeEscrow{},
		dist:     &fakeDistribution{posted: map[string][]domain.Distribution{}},
		out:      &fakeOutbox{},
		exc:      &fakeException{},
	}

	h.c = &reversal.Consumer{
		Payments:     h.payments,
		Ledger:       h.ledger,
		Loans:        h.loans,
		Escrow:       h.escrow,
		Distribution: h.dist,
		Outbox:       h.out,
		Exception:    h.exc,
		Wrapper:      idempotency.NewWrapper(newIdemMemStore()),
		Factory:      envelope.NewFactory("reversal@1"),
		Logger:       &mlog.NoneLogger{},
		Now:          func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) },
	}

	return h
}

func stepEnvelope(step reversal.Step, sagaID, paymentID, loanID string) domain.Envelope {
	f := envelope.NewFactory("reversal@1")
	return f.Create("saga.reversal."+string(step), map[string]any{
		"saga_id":    sagaID,
		"payment_id": paymentID,
		"loan_id":    loanID,
		"source":     "ach",
		"reason":     "unauthorized debit",
	})
}

func TestHandle_markReturnedTransitionsAndAdvancesToNextStep(t *testing.T) {
	h := newHarness()

	env := stepEnvelope(reversal.StepMarkReturned, "saga-1", "pay-1", "loan-1")
	require.NoError(t, h.c.Handle(context.Background(), env))

	assert.Contains(t, h.payments.transitions, "pay-1->returned")
	require.Len(t, h.out.appended, 1)
	assert.Equal(t, "saga.reversal.reverse_ledger", h.out.appended[0].RoutingKey)
}

func TestHandle_reverseLedgerMirrorsEntriesAndRestoresPrincipal(t *testing.T) {
	h := newHarness()
	h.ledger.original["pay-1"] = []domain.LedgerEntry{
		{LoanID: "loan-1", PaymentID: "pay-1", Account: domain.AccountCash, DebitCents: 35000},
		{LoanID: "loan-1", PaymentID: "pay-1", Account: domain.AccountPrincipalReceivable, CreditCents: 20000},
	}

	env := stepEnvelope(reversal.StepReverseLedger, "saga-1", "pay-1", "loan-1")
	require.NoError(t, h.c.Handle(context.Background(), env))

	require.Len(t, h.ledger.inserted, 2)
	assert.Equal(t, int64(20000), h.loans.principalDelta["loan-1"])
	require.Len(t, h.out.appended, 1)
	assert.Equal(t, "saga.reversal.reverse_escrow", h.out.appended[0].RoutingKey)
}

func TestHandle_clawbackSkipsWhenNoPostedRows(t *testing.T) {
	h := newHarness()

	env := stepEnvelope(reversal.StepClawback, "saga-1", "pay-1", "loan-1")
	require.NoError(t, h.c.Handle(context.Background(), env))

	assert.Empty(t, h.dist.clawbacks)
	require.Len(t, h.out.appended, 1)
	assert.Equal(t, "saga.reversal.recompute_fees", h.out.appended[0].RoutingKey)
}

func TestHandle_clawbackMirrorsPostedDistributions(t *testing.T) {
	h := newHarness()
	h.dist.posted["pay-1"] = []domain.Distribution{
		{PaymentID: "pay-1", InvestorID: "inv-a", AmountCents: 9000, ServicingFeeCents: 250, Status: domain.DistributionPosted},
	}

	env := stepEnvelope(reversal.StepClawback, "saga-1", "pay-1", "loan-1")
	require.NoError(t, h.c.Handle(context.Background(), env))

	require.Len(t, h.dist.clawbacks, 1)
	assert.Equal(t, int64(-9000), h.dist.clawbacks[0].AmountCents)
	assert.Contains(t, h.out.routingKeys(), "distribution.clawback")
}

func TestHandle_reverseEscrowFailureOpensHighSeverityException(t *testing.T) {
	h := newHarness()
	h.escrow.failWith = assert.AnError

	env := stepEnvelope(reversal.StepReverseEscrow, "saga-1", "pay-1", "loan-1")
	require.Error(t, h.c.Handle(context.Background(), env))

	require.Equal(t, 1, h.exc.opened)
	assert.Equal(t, domain.SeverityHigh, h.exc.severities[0])
	assert.Equal(t, "reversal_reverse_escrow", h.exc.subcategories[0])
}

func TestHandle_markReturnedFailureOpensMediumSeverityException(t *testing.T) {
	h := newHarness()
	h.payments.failWith = assert.AnError

	env := stepEnvelope(reversal.StepMarkReturned, "saga-1", "pay-1", "loan-1")
	require.Error(t, h.c.Handle(context.Background(), env))

	require.Equal(t, 1, h.exc.opened)
	assert.Equal(t, domain.SeverityMedium, h.exc.severities[0])
}

func TestHandle_recomputeFeesAssessesLateFeeAndAdvancesDate(t *testing.T) {
	h := newHarness()
	due := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	h.loans.byLoan["loan-1"] = &domain.Loan{LoanID: "loan-1", NextPaymentDate: due}

	env := stepEnvelope(reversal.StepRecomputeFees, "saga-1", "pay-1", "loan-1")
	require.NoError(t, h.c.Handle(context.Background(), env))

	assert.Equal(t, int64(5000), h.loans.lateFees["loan-1"])
	assert.True(t, h.loans.nextDates["loan-1"].After(due))
}

func TestHandle_updateStatusDerivesDelinquentWhenPastDue(t *testing.T) {
	h := newHarness()
	h.loans.byLoan["loan-1"] = &domain.Loan{LoanID: "loan-1", NextPaymentDate: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)}

	env := stepEnvelope(reversal.StepUpdateStatus, "saga-1", "pay-1", "loan-1")
	require.NoError(t, h.c.Handle(context.Background(), env))

	assert.Equal(t, domain.LoanStatusDelinquent, h.loans.statuses["loan-1"])
}

func TestHandle_notifyAppendsBorrowerAndInvestorNotifications(t *testing.T) {
	h := newHarness()

	env := stepEnvelope(reversal.StepNotify, "saga-1", "pay-1", "loan-1")
	require.NoError(t, h.c.Handle(context.Background(), env))

	require.Len(t, h.out.appended, 3) // 2 notifications + the finalize step
	for _, m := range h.out.appended[:2] {
		assert.Equal(t, "crm.email.topic", m.Exchange)
		assert.Equal(t, "notification.send", m.RoutingKey)
	}
}

func TestHandle_finalizeTransitionsToReversedAndPublishesTerminalEvent(t *testing.T) {
	h := newHarness()

	env := stepEnvelope(reversal.StepFinalize, "saga-1", "pay-1", "loan-1")
	require.NoError(t, h.c.Handle(context.Background(), env))

	assert.Contains(t, h.payments.transitions, "pay-1->reversed")
	require.Len(t, h.out.appended, 1)
	assert.Equal(t, "payment.ach.reversed", h.out.appended[0].RoutingKey)
}

func TestHandle_duplicateDeliveryDoesNotDoubleTransition(t *testing.T) {
	h := newHarness()

	env := stepEnvelope(reversal.StepMarkReturned, "saga-1", "pay-1", "loan-1")
	require.NoError(t, h.c.Handle(context.Background(), env))
	require.NoError(t, h.c.Handle(context.Background(), env))

	assert.Len(t, h.payments.transitions, 1)
}

func TestStart_publishesMarkReturnedAsTheFirstStep(t *testing.T) {
	h := newHarness()
	parent := envelope.NewFactory("returns@1").Create("return.ach", map[string]any{"payment_id": "pay-1"})

	require.NoError(t, h.c.Start(context.Background(), parent, "saga-1", "pay-1", "loan-1", "ach", "R01", "unauthorized"))

	require.Len(t, h.out.appended, 1)
	assert.Equal(t, "saga.reversal.mark_returned", h.out.appended[0].RoutingKey)
}
