package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/broker"
	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/envelope"
	"github.com/cschwartz85032/loanserve-sub010/internal/idempotency"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
)

// LoanRepository reads loan state for policy selection.
type LoanRepository interface {
	GetLoan(ctx context.Context, loanID string) (*domain.Loan, error)
}

// OutboxAppender is the append-only slice of outbox.Store this consumer
// needs to publish saga.payment.start and the classified event.
type OutboxAppender interface {
	Append(ctx context.Context, msg domain.OutboxMessage) error
}

// EventChain records the hash-chained payment_events row for this step.
type EventChain interface {
	LastEventHash(ctx context.Context, paymentID string) (string, error)
	AppendEvent(ctx context.Context, ev domain.PaymentEvent) error
}

// ExceptionOpener opens an exception case. Mirrors outbox.ExceptionOpener so
// internal/exception's Service satisfies both with one implementation.
type ExceptionOpener interface {
	OpenCase(ctx context.Context, category, subcategory string, msg domain.OutboxMessage, reason string) error
}

// validated is the shape of a payment.<src>.validated event this consumer
// reads off the classification queue.
type validated struct {
	PaymentID     string          `json:"payment_id"`
	LoanID        string          `json:"loan_id"`
	Source        string          `json:"source"`
	AmountCents   int64           `json:"amount_cents"`
	EffectiveDate time.Time       `json:"effective_date"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
}

// escrowOnly reports whether the upstream payment was flagged as an
// escrow-only remittance (spec §4.8: "escrow-only payments skip P&I").
func (v validated) escrowOnly() bool {
	flag, ok := v.Metadata["escrow_only"].(bool)
	return ok && flag
}

// startSaga is the payload of saga.payment.start (spec §4.7).
type startSaga struct {
	PaymentID     string              `json:"payment_id"`
	LoanID        string              `json:"loan_id"`
	Source        string              `json:"source"`
	AmountCents   int64               `json:"amount_cents"`
	EffectiveDate time.Time           `json:"effective_date"`
	EscrowOnly    bool                `json:"escrow_only"`
	Policy        domain.Policy       `json:"policy"`
	Config        domain.PolicyConfig `json:"config"`
}

// classifiedEvent is the payload of the hash-chained payment.classified
// event (spec §4.7).
type classifiedEvent struct {
	PaymentID  string        `json:"payment_id"`
	LoanID     string        `json:"loan_id"`
	Policy     domain.Policy `json:"policy"`
	LoanStatus string        `json:"loan_status,omitempty"`
	LoanFound  bool          `json:"loan_found"`
}

// Consumer implements the classification step of the pipeline (C7).
type Consumer struct {
	Loans     LoanRepository
	Outbox    OutboxAppender
	Events    EventChain
	Exception ExceptionOpener
	Factory   *envelope.Factory
	Logger    mlog.Logger
	Now       func() time.Time
}

func (c *Consumer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}

	return time.Now()
}

// Handle processes one payment.<src>.validated envelope (spec §4.7).
func (c *Consumer) Handle(ctx context.Context, env domain.Envelope) error {
	raw, err := json.Marshal(env.Data)
	if err != nil {
		return fmt.Errorf("remarshal envelope data: %w", err)
	}

	var v validated
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("unmarshal validated event: %w", err)
	}

	var loan *domain.Loan
	if v.LoanID != "" {
		loan, err = c.Loans.GetLoan(ctx, v.LoanID)
		if err != nil {
			return fmt.Errorf("lookup loan: %w", err)
		}
	}

	policy := SelectPolicy(loan)

	if loan == nil {
		if err := c.openMissingLoanException(ctx, env, v); err != nil {
			return fmt.Errorf("open reconcile_variance exception: %w", err)
		}
	}

	if err := c.emitClassified(ctx, env, v, loan, policy); err != nil {
		return fmt.Errorf("emit classified event: %w", err)
	}

	return c.publishSagaStart(ctx, env, v, policy)
}

func (c *Consumer) openMissingLoanException(ctx context.Context, env domain.Envelope, v validated) error {
	if c.Exception == nil {
		return nil
	}

	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	msg := domain.OutboxMessage{
		ID:            env.MessageID,
		AggregateType: "payment",
		AggregateID:   v.PaymentID,
		EventType:     "payment.classified",
		Payload:       payload,
		CorrelationID: env.CorrelationID,
		CreatedAt:     c.now().UTC(),
	}

	return c.Exception.OpenCase(ctx, "reconcile_variance", "loan_state_missing", msg, "loan not found or loan_id missing")
}

func (c *Consumer) emitClassified(ctx context.Context, env domain.Envelope, v validated, loan *domain.Loan, policy domain.Policy) error {
	if c.Events == nil {
		return nil
	}

	ev := classifiedEvent{PaymentID: v.PaymentID, LoanID: v.LoanID, Policy: policy, LoanFound: loan != nil}
	if loan != nil {
		ev.LoanStatus = string(loan.Status)
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	prev, err := c.Events.LastEventHash(ctx, v.PaymentID)
	if err != nil {
		return fmt.Errorf("load prior event hash: %w", err)
	}

	if prev == "" {
		prev = idempotency.GenesisHash(v.PaymentID)
	}

	now := c.now()

	hash, err := idempotency.NextEventHash(prev, ev, env.CorrelationID, now)
	if err != nil {
		return fmt.Errorf("compute event hash: %w", err)
	}

	return c.Events.AppendEvent(ctx, domain.PaymentEvent{
		EventID:       env.MessageID,
		PaymentID:     v.PaymentID,
		Type:          "payment.classified",
		Data:          data,
		CorrelationID: env.CorrelationID,
		Timestamp:     now,
		PrevEventHash: prev,
		EventHash:     hash,
	})
}

func (c *Consumer) publishSagaStart(ctx context.Context, parent domain.Envelope, v validated, policy domain.Policy) error {
	config := domain.Policies[policy]

	out := c.Factory.Reply(parent, "saga.payment.start", startSaga{
		PaymentID:     v.PaymentID,
		LoanID:        v.LoanID,
		Source:        v.Source,
		AmountCents:   v.AmountCents,
		EffectiveDate: v.EffectiveDate,
		EscrowOnly:    v.escrowOnly(),
		Policy:        policy,
		Config:        config,
	})

	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal saga.payment.start: %w", err)
	}

	msg := domain.OutboxMessage{
		ID:            out.MessageID,
		AggregateType: "payment",
		AggregateID:   v.PaymentID,
		EventType:     out.Schema,
		Payload:       payload,
		Exchange:      broker.ExchangePaymentsSaga,
		RoutingKey:    "saga.payment.start",
		CorrelationID: out.CorrelationID,
		CreatedAt:     c.now().UTC(),
	}

	return c.Outbox.Append(ctx, msg)
}
