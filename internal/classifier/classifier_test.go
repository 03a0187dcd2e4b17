package classifier_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cschwartz85032/loanserve-sub010/internal/classifier"
	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/envelope"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
)

type fakeLoanRepo struct {
	loans map[string]*domain.Loan
}

func (r *fakeLoanRepo) GetLoan(ctx context.Context, loanID string) (*domain.Loan, error) {
	return r.loans[loanID], nil
}

type fakeOutbox struct {
	appended []domain.OutboxMessage
}

func (o *fakeOutbox) Append(ctx context.Context, msg domain.OutboxMessage) error {
	o.appended = append(o.appended, msg)
	return nil
}

type fakeEvents struct {
	byPayment map[string][]domain.PaymentEvent
}

func newFakeEvents() *fakeEvents { return &fakeEvents{byPayment: map[string][]domain.PaymentEvent{}} }

func (e *fakeEvents) LastEventHash(ctx context.Context, paymentID string) (string, error) {
	chain := e.byPayment[paymentID]
	if len(chain) == 0 {
		return "", nil
	}

	return chain[len(chain)-1].EventHash, nil
}

func (e *fakeEvents) AppendEvent(ctx context.Context, ev domain.PaymentEvent) error {
	e.byPayment[ev.PaymentID] = append(e.byPayment[ev.PaymentID], ev)
	return nil
}

type fakeException struct {
	opened []string
}

func (e *fakeException) OpenCase(ctx context.Context, category, subcategory string, msg domain.OutboxMessage, reason string) error {
	e.opened = append(e.opened, category+"/"+subcategory)
	return nil
}

func newConsumer(loans map[string]*domain.Loan) (*classifier.Consumer, *fakeOutbox, *fakeEvents, *fakeException) {
	out := &fakeOutbox{}
	events := newFakeEvents()
	exc := &fakeException{}

	c := &classifier.Consumer{
		Loans:     &fakeLoanRepo{loans: loans},
		Outbox:    out,
		Events:    events,
		Exception: exc,
		Factory:   envelope.NewFactory("classifier@1"),
		Logger:    &mlog.NoneLogger{},
		Now:       func() time.Time { return time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC) },
	}

	return c, out, events, exc
}

func validatedEnvelope(paymentID, loanID string) domain.Envelope {
	f := envelope.NewFactory("validation@1")

	return f.Create("payment.ach.validated", map[string]any{
		"payment_id":     paymentID,
		"loan_id":        loanID,
		"source":         "ach",
		"amount_cents":   5000,
		"effective_date": time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC),
	})
}

func TestHandle_currentLoanPublishesSagaStartWithCurrentPolicy(t *testing.T) {
	loans := map[string]*domain.Loan{"loan-1": {LoanID: "loan-1", Status: domain.LoanStatusCurrent}}
	c, out, events, exc := newConsumer(loans)

	require.NoError(t, c.Handle(context.Background(), validatedEnvelope("pay-1", "loan-1")))

	require.Len(t, out.appended, 1)
	assert.Equal(t, "saga.payment.start", out.appended[0].RoutingKey)

	var payload struct {
		Data struct {
			Policy domain.Policy `json:"policy"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.appended[0].Payload, &payload))
	assert.Equal(t, domain.PolicyCurrent, payload.Data.Policy)

	require.Len(t, events.byPayment["pay-1"], 1)
	assert.Empty(t, exc.opened)
}

func TestHandle_missingLoanIsConservativeAndOpensException(t *testing.T) {
	c, out, _, exc := newConsumer(map[string]*domain.Loan{})

	require.NoError(t, c.Handle(context.Background(), validatedEnvelope("pay-2", "loan-missing")))

	require.Len(t, out.appended, 1)

	var payload struct {
		Data struct {
			Policy domain.Policy `json:"policy"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(out.appended[0].Payload, &payload))
	assert.Equal(t, domain.PolicyConservative, payload.Data.Policy)

	require.Len(t, exc.opened, 1)
	assert.Equal(t, "reconcile_variance/loan_state_missing", exc.opened[0])
}

func TestHandle_eventChainLinksToPriorHash(t *testing.T) {
	loans := map[string]*domain.Loan{"loan-1": {LoanID: "loan-1", Status: domain.LoanStatusDelinquent, DaysPastDue: 5}}
	c, _, events, _ := newConsumer(loans)

	env := validatedEnvelope("pay-3", "loan-1")
	require.NoError(t, c.Handle(context.Background(), env))
	require.NoError(t, c.Handle(context.Background(), env))

	chain := events.byPayment["pay-3"]
	require.Len(t, chain, 2)
	assert.Equal(t, chain[0].EventHash, chain[1].PrevEventHash)
	assert.NotEqual(t, chain[0].EventHash, chain[1].EventHash)
}
