package validation_test

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
	"github.com/cschwartz85032/loanserve-sub010/internal/validation"
)

type fakeLoanRepo struct {
	loans map[string]*domain.Loan
}

func (r *fakeLoanRepo) GetLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	return r.loans[loanID], nil
}

type fakePaymentRepo struct {
	inserted    []domain.Payment
	transitions []string
}

func (r *fakePaymentRepo) Insert(ctx context.Context, p domain.Payment) error {
	r.inserted = append(r.inserted, p)
	return nil
}

func (r *fakePaymentRepo) Transition(ctx context.Context, paymentID string, to domain.PaymentState, reason string) error {
	r.transitions = append(r.transitions, paymentID+"->"+string(to))
	return nil
}

type fakeOutbox struct {
	appended []domain.OutboxMessage
}

func (o *fakeOutbox) Append(ctx context.Context, msg domain.OutboxMessage) error {
	o.appended = append(o.appended, msg)
	return nil
}

type fakeWindows struct {
	created map[string]int
}

func (w *fakeWindows) CreateReturnWindow(ctx context.Context, paymentID string, days int) error {
	if w.created == nil {
		w.created = map[string]int{}
	}

	w.created[paymentID] = days

	return nil
}

// idemMemStore is a trivial in-process Store for the wrapper.
type idemMemStore struct {
	done map[string]bool
}

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

func newConsumer(loans map[string]*domain.Loan) (*validation.Consumer, *fakePaymentRepo, *fakeOutbox, *fakeWindows) {
	paymentRepo := &fakePaymentRepo{}
	out := &fakeOutbox{}
	windows := &fakeWindows{}

	c := &validation.Consumer{
		Loans:    &fakeLoanRepo{loans: loans},
		Payments: paymentRepo,
		Windows:  windows,
		Outbox:   out,
		Wrapper:  idempotency.NewWrapper(newIdemMemStore()),
		Factory:  envelope.NewFactory("validation@1"),
		Logger:   &mlog.NoneLogger{},
		Now:      func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) },
	}

	return c, paymentRepo, out, windows
}

func achReceivedEnvelope(paymentID, loanID string, amount int64) domain.Envelope {
	f := envelope.NewFactory("ingress@1")

	return f.Create("payment.ach.received", validation.PaymentReceived{
		PaymentID:     paymentID,
		LoanID:        loanID,
		Source:        "ach",
		AmountCents:   amount,
		EffectiveDate: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
		ACH:           &validation.ACHFields{RoutingNumber: "123456789", SECCode: "PPD", TraceNumber: "555"},
	})
}

func TestConsumer_Handle_validPaymentTransitionsToValidated(t *testing.T) {
	loans := map[string]*domain.Loan{"loan-1": {LoanID: "loan-1", Status: domain.LoanStatusCurrent, AcceptPartialPayments: true}}
	c, payments, out, windows := newConsumer(loans)

	env := achReceivedEnvelope("pay-1", "loan-1", 5000)

	require.NoError(t, c.Handle(context.Background(), env))

	assert.Contains(t, payments.transitions, "pay-1->validated")
	require.Len(t, out.appended, 1)
	assert.Equal(t, "payment.ach.validated", out.appended[0].RoutingKey)
	assert.Equal(t, 2, windows.created["pay-1"])
}

func TestConsumer_Handle_rejectsChargedOffLoan(t *testing.T) {
	loans := map[string]*domain.Loan{"loan-1": {LoanID: "loan-1", Status: domain.LoanStatusChargedOff}}
	c, payments, out, _ := newConsumer(loans)

	env := achReceivedEnvelope("pay-2", "loan-1", 5000)

	require.NoError(t, c.Handle(context.Background(), env))

	assert.Contains(t, payments.transitions, "pay-2->rejected")
	require.Len(t, out.appended, 1)
	assert.Equal(t, "payment.ach.rejected", out.appended[0].RoutingKey)
}

func TestConsumer_Handle_duplicateIsNoOp(t *testing.T) {
	loans := map[string]*domain.Loan{"loan-1": {LoanID: "loan-1", Status: domain.LoanStatusCurrent, AcceptPartialPayments: true}}
	c, payments, out, _ := newConsumer(loans)

	env := achReceivedEnvelope("pay-3", "loan-1", 5000)

	require.NoError(t, c.Handle(context.Background(), env))
	require.NoError(t, c.Handle(context.Background(), env))

	assert.Len(t, payments.inserted, 1)
	assert.Len(t, out.appended, 1)
}
