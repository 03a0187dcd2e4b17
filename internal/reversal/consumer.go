package reversal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cschwartz85032/loanserve-sub010/internal/broker"
	"github.com/cschwartz85032/loanserve-sub010/internal/distribution"
	"github.com/cschwartz85032/loanserve-sub010/internal/domain"
	"github.com/cschwartz85032/loanserve-sub010/internal/envelope"
	"github.com/cschwartz85032/loanserve-sub010/internal/idempotency"
	"github.com/cschwartz85032/loanserve-sub010/internal/platform/mlog"
)

const (
	lateFeeGraceDays   = 15
	lateFeeFlatCents   = 5000
	recomputeFrequency = 30 * 24 * time.Hour // monthly, absent a stored schedule frequency
)

// PaymentRepository advances the payment's state machine.
type PaymentRepository interface {
	Transition(ctx context.Context, paymentID string, to domain.PaymentState, reason string) error
}

// LedgerStore reads the original posted entries for a payment and writes
// the mirrored reversal entries.
type LedgerStore interface {
	OriginalEntries(ctx context.Context, paymentID string) ([]domain.LedgerEntry, error)
	InsertEntries(ctx context.Context, entries []domain.LedgerEntry) error
}

// LoanRepository reads and mutates loan state touched by the saga.
type LoanRepository interface {
	GetLoan(ctx context.Context, loanID string) (*domain.Loan, error)
	AdjustPrincipal(ctx context.Context, loanID string, deltaCents int64) error
	AddLateFee(ctx context.Context, loanID string, cents int64) error
	SetNextPaymentDate(ctx context.Context, loanID string, next time.Time) error
	SetStatus(ctx context.Context, loanID string, status domain.LoanStatus) error
}

// EscrowStore mirrors escrow ledger rows for a reversed payment (spec
// §4.10 step 3).
type EscrowStore interface {
	ReverseEscrow(ctx context.Context, paymentID string) error
}

// DistributionStore reads the posted distribution rows for a payment and
// writes their clawback mirrors.
type DistributionStore interface {
	PostedRows(ctx context.Context, paymentID string) ([]domain.Distribution, error)
	InsertClawback(ctx context.Context, rows []domain.Distribution) error
}

// OutboxAppender is the append-only slice of outbox.Store this consumer
// needs.
type OutboxAppender interface {
	Append(ctx context.Context, msg domain.OutboxMessage) error
}

// ExceptionOpener opens an exception case when a step fails, at a severity
// this package derives from the failed step rather than leaving it to the
// category/subcategory default (spec §4.10: "an exception case is opened
// at severity derived from step").
type ExceptionOpener interface {
	OpenCaseWithSeverity(ctx context.Context, category, subcategory string, msg domain.OutboxMessage, severity domain.ExceptionSeverity, reason string) error
}

// payload is the accumulated saga context threaded through every step
// event (spec §4.10).
type payload struct {
	SagaID     string `json:"saga_id"`
	PaymentID  string `json:"payment_id"`
	LoanID     string `json:"loan_id"`
	Source     string `json:"source"`
	ReturnCode string `json:"return_code,omitempty"`
	Reason     string `json:"reason"`
	ClawbackID string `json:"clawback_id,omitempty"`
}

// Consumer implements the reversal saga step dispatcher (C10).
type Consumer struct {
	Payments     PaymentRepository
	Ledger       LedgerStore
	Loans        LoanRepository
	Escrow       EscrowStore
	Distribution DistributionStore
	Outbox       OutboxAppender
	Exception    ExceptionOpener
	Wrapper      *idempotency.Wrapper
	Factory      *envelope.Factory
	Logger       mlog.Logger
	Now          func() time.Time
}

func (c *Consumer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}

	return time.Now()
}

// Start publishes the initial saga.reversal.mark_returned event that begins
// a reversal (spec §4.10). Callers (the ACH return handler, a manual
// compensate request) build the payload and hand it here.
func (c *Consumer) Start(ctx context.Context, parent domain.Envelope, sagaID, paymentID, loanID, source, returnCode, reason string) error {
	p := payload{SagaID: sagaID, PaymentID: paymentID, LoanID: loanID, Source: source, ReturnCode: returnCode, Reason: reason}
	return c.publishStep(ctx, parent, StepMarkReturned, p)
}

// Handle processes one saga.reversal.<step> envelope.
func (c *Consumer) Handle(ctx context.Context, env domain.Envelope) error {
	step, err := stepFromSchema(env.Schema)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(env.Data)
	if err != nil {
		return fmt.Errorf("remarshal envelope data: %w", err)
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("unmarshal saga payload: %w", err)
	}

	key := fmt.Sprintf("%s:%s", p.SagaID, step)

	err = c.Wrapper.Wrap(ctx, "reversal", key, func(ctx context.Context) error {
		return c.runStep(ctx, env, step, p)
	})
	if err != nil {
		c.openStepException(ctx, env, step, p, err)
	}

	return err
}

func (c *Consumer) runStep(ctx context.Context, env domain.Envelope, step Step, p payload) error {
	switch step {
	case StepMarkReturned:
		if err := c.Payments.Transition(ctx, p.PaymentID, domain.PaymentReturned, p.Reason); err != nil {
			return fmt.Errorf("transition to returned: %w", err)
		}
	case StepReverseLedger:
		if err := c.reverseLedger(ctx, p); err != nil {
			return err
		}
	case StepReverseEscrow:
		if err := c.Escrow.ReverseEscrow(ctx, p.PaymentID); err != nil {
			return fmt.Errorf("reverse escrow: %w", err)
		}
	case StepClawback:
		if err := c.clawback(ctx, env, p); err != nil {
			return err
		}
	case StepRecomputeFees:
		if err := c.recomputeFees(ctx, p); err != nil {
			return err
		}
	case StepUpdateStatus:
		if err := c.updateStatus(ctx, p); err != nil {
			return err
		}
	case StepNotify:
		if err := c.notify(ctx, env, p); err != nil {
			return err
		}
	case StepFinalize:
		if err := c.Payments.Transition(ctx, p.PaymentID, domain.PaymentReversed, ""); err != nil {
			return fmt.Errorf("transition to reversed: %w", err)
		}

		return c.publishReversed(ctx, env, p)
	default:
		return fmt.Errorf("unknown reversal step %q", step)
	}

	next := Next(step)
	if next == "" {
		return nil
	}

	return c.publishStep(ctx, env, next, p)
}

func (c *Consumer) reverseLedger(ctx context.Context, p payload) error {
	entries, err := c.Ledger.OriginalEntries(ctx, p.PaymentID)
	if err != nil {
		return fmt.Errorf("load original ledger entries: %w", err)
	}

	mirrors := MirrorLedger(entries)

	if err := c.Ledger.InsertEntries(ctx, mirrors); err != nil {
		return fmt.Errorf("insert mirrored ledger entries: %w", err)
	}

	restored := PrincipalRestored(mirrors)
	if restored > 0 {
		if err := c.Loans.AdjustPrincipal(ctx, p.LoanID, restored); err != nil {
			return fmt.Errorf("restore principal balance: %w", err)
		}
	}

	return nil
}

func (c *Consumer) clawback(ctx context.Context, parent domain.Envelope, p payload) error {
	rows, err := c.Distribution.PostedRows(ctx, p.PaymentID)
	if err != nil {
		return fmt.Errorf("load posted distribution rows: %w", err)
	}

	if len(rows) == 0 {
		return nil
	}

	mirrors := distribution.Clawback(rows, p.ClawbackID)

	if err := c.Distribution.InsertClawback(ctx, mirrors); err != nil {
		return fmt.Errorf("insert clawback rows: %w", err)
	}

	out := c.Factory.Reply(parent, "distribution.clawback", struct {
		PaymentID  string                 `json:"payment_id"`
		ClawbackID string                 `json:"clawback_id"`
		Rows       []domain.Distribution `json:"rows"`
	}{PaymentID: p.PaymentID, ClawbackID: p.ClawbackID, Rows: mirrors})

	payloadBytes, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal distribution.clawback: %w", err)
	}

	return c.Outbox.Append(ctx, domain.OutboxMessage{
		ID:            out.MessageID,
		AggregateType: "payment",
		AggregateID:   p.PaymentID,
		EventType:     out.Schema,
		Payload:       payloadBytes,
		Exchange:      broker.ExchangePaymentsSaga,
		RoutingKey:    "distribution.clawback",
		CorrelationID: out.CorrelationID,
		CreatedAt:     c.now().UTC(),
	})
}

func (c *Consumer) recomputeFees(ctx context.Context, p payload) error {
	loan, err := c.Loans.GetLoan(ctx, p.LoanID)
	if err != nil {
		return fmt.Errorf("load loan: %w", err)
	}

	now := c.now()

	fee := AssessLateFee(loan.NextPaymentDate, now, lateFeeGraceDays, lateFeeFlatCents)
	if fee > 0 {
		if err := c.Loans.AddLateFee(ctx, p.LoanID, fee); err != nil {
			return fmt.Errorf("assess late fee: %w", err)
		}
	}

	next := loan.NextPaymentDate
	if !next.IsZero() && now.After(next) {
		next = next.Add(recomputeFrequency)
	}

	return c.Loans.SetNextPaymentDate(ctx, p.LoanID, next)
}

func (c *Consumer) updateStatus(ctx context.Context, p payload) error {
	loan, err := c.Loans.GetLoan(ctx, p.LoanID)
	if err != nil {
		return fmt.Errorf("load loan: %w", err)
	}

	status := DeriveLoanStatus(loan.NextPaymentDate, c.now())

	return c.Loans.SetStatus(ctx, p.LoanID, status)
}

func (c *Consumer) notify(ctx context.Context, parent domain.Envelope, p payload) error {
	recipients := []string{"borrower", "investor"}

	for _, recipient := range recipients {
		out := c.Factory.Reply(parent, "notification.send", struct {
			Recipient string         `json:"recipient"`
			Template  string         `json:"template"`
			Variables map[string]any `json:"variables"`
			Channel   string         `json:"channel"`
			Priority  int            `json:"priority"`
		}{
			Recipient: recipient,
			Template:  "payment_reversed",
			Variables: map[string]any{"payment_id": p.PaymentID, "loan_id": p.LoanID, "reason": p.Reason},
			Channel:   "email",
			Priority:  5,
		})

		payloadBytes, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("marshal notification.send: %w", err)
		}

		if err := c.Outbox.Append(ctx, domain.OutboxMessage{
			ID:            out.MessageID,
			AggregateType: "payment",
			AggregateID:   p.PaymentID,
			EventType:     out.Schema,
			Payload:       payloadBytes,
			Exchange:      broker.ExchangeCRMEmailTopic,
			RoutingKey:    "notification.send",
			CorrelationID: out.CorrelationID,
			CreatedAt:     c.now().UTC(),
		}); err != nil {
			return fmt.Errorf("append notification outbox row: %w", err)
		}
	}

	return nil
}

func (c *Consumer) publishStep(ctx context.Context, parent domain.Envelope, step Step, p payload) error {
	schema := "saga.reversal." + string(step)
	out := c.Factory.Reply(parent, schema, p)

	payloadBytes, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", schema, err)
	}

	return c.Outbox.Append(ctx, domain.OutboxMessage{
		ID:            out.MessageID,
		AggregateType: "payment",
		AggregateID:   p.PaymentID,
		EventType:     out.Schema,
		Payload:       payloadBytes,
		Exchange:      broker.ExchangePaymentsSaga,
		RoutingKey:    schema,
		CorrelationID: out.CorrelationID,
		CreatedAt:     c.now().UTC(),
	})
}

func (c *Consumer) publishReversed(ctx context.Context, parent domain.Envelope, p payload) error {
	out := c.Factory.Reply(parent, "payment.reversed", p)

	payloadBytes, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal payment.reversed: %w", err)
	}

	return c.Outbox.Append(ctx, domain.OutboxMessage{
		ID:            out.MessageID,
		AggregateType: "payment",
		AggregateID:   p.PaymentID,
		EventType:     out.Schema,
		Payload:       payloadBytes,
		Exchange:      broker.ExchangePaymentsTopic,
		RoutingKey:    fmt.Sprintf("payment.%s.reversed", p.Source),
		CorrelationID: out.CorrelationID,
		CreatedAt:     c.now().UTC(),
	})
}

func (c *Consumer) openStepException(ctx context.Context, env domain.Envelope, step Step, p payload, cause error) {
	if c.Exception == nil {
		return
	}

	msg := domain.OutboxMessage{AggregateID: p.PaymentID}
	severity := severityForStep(step)

	if err := c.Exception.OpenCaseWithSeverity(ctx, "reconcile_variance", "reversal_"+string(step), msg, severity, cause.Error()); err != nil {
		c.Logger.Errorf("failed to open exception case for reversal step %s: %v", step, err)
	}
}

func stepFromSchema(schema string) (Step, error) {
	const prefix = "saga.reversal."
	if len(schema) <= len(prefix) || schema[:len(prefix)] != prefix {
		return "", fmt.Errorf("not a reversal saga schema: %q", schema)
	}

	return Step(schema[len(prefix):]), nil
}
