package validation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/broker"
	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/envelope"
	loanerrors "github.com/cschwartz85032/loanserve-sub010/internal/errors"
	"github.com/cschwartz85032/loanserve-sub010/internal/idempotency"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
)

// LoanRepository reads the loan state the validation checks depend on.
type LoanRepository interface {
	GetLoan(ctx context.Context, loanID string) (*domain.Loan, error)
}

// PaymentRepository persists payment rows and their state transitions.
type PaymentRepository interface {
	Insert(ctx context.Context, p domain.Payment) error
	Transition(ctx context.Context, paymentID string, to domain.PaymentState, reason string) error
}

// ReturnWindowWriter opens the ACH return window for a newly validated ACH
// payment (spec §4.6).
type ReturnWindowWriter interface {
	CreateReturnWindow(ctx context.Context, paymentID string, days int) error
}

// OutboxAppender is the append-only slice of outbox.Store this consumer
// needs.
type OutboxAppender interface {
	Append(ctx context.Context, msg domain.OutboxMessage) error
}

// Consumer implements the validation step of the pipeline (C6).
type Consumer struct {
	Loans    LoanRepository
	Payments PaymentRepository
	Windows  ReturnWindowWriter
	Outbox   OutboxAppender
	Wrapper  *idempotency.Wrapper
	Factory  *envelope.Factory
	Logger   mlog.Logger
	Now      func() time.Time
}

func (c *Consumer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}

	return time.Now()
}

// Handle processes one payment.*.received envelope (spec §4.6).
func (c *Consumer) Handle(ctx context.Context, env domain.Envelope) error {
	raw, err := json.Marshal(env.Data)
	if err != nil {
		return fmt.Errorf("remarshal envelope data: %w", err)
	}

	var received PaymentReceived
	if err := json.Unmarshal(raw, &received); err != nil {
		return loanerrors.ValidationError{Field: "data", Reason: "unparseable", Message: err.Error()}
	}

	key, err := IdempotencyKey(received)
	if err != nil {
		return err
	}

	return c.Wrapper.Wrap(ctx, "validation", key, func(ctx context.Context) error {
		return c.process(ctx, env, received, key)
	})
}

func (c *Consumer) process(ctx context.Context, env domain.Envelope, received PaymentReceived, idempotencyKey string) error {
	payment := domain.Payment{
		PaymentID:      received.PaymentID,
		LoanID:         received.LoanID,
		Source:         domain.Source(received.Source),
		ExternalRef:    received.ExternalRef,
		AmountCents:    received.AmountCents,
		Currency:       received.Currency,
		ReceivedAt:     received.ReceivedAt,
		EffectiveDate:  received.EffectiveDate,
		State:          domain.PaymentReceived,
		IdempotencyKey: idempotencyKey,
		Metadata:       received.Metadata,
	}

	if err := c.Payments.Insert(ctx, payment); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	rejectReason, err := c.validate(ctx, received)
	if err != nil {
		return err
	}

	if rejectReason == nil {
		return c.accept(ctx, env, received)
	}

	return c.reject(ctx, env, received, rejectReason)
}

// validate runs loan-eligibility and source checks, returning the failure
// as a plain error for the caller to classify (nil means the payment is
// good). Only business/validation failures are returned as the first
// result; genuine infra errors from the repository propagate directly as
// the second.
func (c *Consumer) validate(ctx context.Context, received PaymentReceived) (error, error) {
	loan, err := c.Loans.GetLoan(ctx, received.LoanID)
	if err != nil {
		return nil, fmt.Errorf("load loan: %w", err)
	}

	if err := CheckLoanEligible(loan, received); err != nil {
		return err, nil
	}

	return ValidateSource(received, c.now()), nil
}

func (c *Consumer) accept(ctx context.Context, env domain.Envelope, received PaymentReceived) error {
	if err := c.Payments.Transition(ctx, received.PaymentID, domain.PaymentValidated, ""); err != nil {
		return fmt.Errorf("transition to validated: %w", err)
	}

	if received.Source == "ach" && received.ACH != nil && c.Windows != nil {
		days := ACHReturnWindowDays(received.ACH.SECCode)
		if err := c.Windows.CreateReturnWindow(ctx, received.PaymentID, days); err != nil {
			return fmt.Errorf("create ach return window: %w", err)
		}
	}

	return c.publish(ctx, env, received, "validated", received)
}

func (c *Consumer) reject(ctx context.Context, env domain.Envelope, received PaymentReceived, cause error) error {
	reason := cause.Error()

	if err := c.Payments.Transition(ctx, received.PaymentID, domain.PaymentRejected, reason); err != nil {
		return fmt.Errorf("transition to rejected: %w", err)
	}

	type rejection struct {
		PaymentReceived
		Reason string `json:"reason"`
	}

	return c.publish(ctx, env, received, "rejected", rejection{PaymentReceived: received, Reason: reason})
}

func (c *Consumer) publish(ctx context.Context, parent domain.Envelope, received PaymentReceived, outcome string, data any) error {
	schema := fmt.Sprintf("payment.%s.%s", received.Source, outcome)
	out := c.Factory.Reply(parent, schema, data)

	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", outcome, err)
	}

	msg := domain.OutboxMessage{
		ID:            out.MessageID,
		AggregateType: "payment",
		AggregateID:   received.PaymentID,
		EventType:     out.Schema,
		Payload:       payload,
		Exchange:      broker.ExchangePaymentsTopic,
		RoutingKey:    fmt.Sprintf("payment.%s.%s", received.Source, outcome),
		CorrelationID: out.CorrelationID,
		CreatedAt:     c.now().UTC(),
	}

	return c.Outbox.Append(ctx, msg)
}
