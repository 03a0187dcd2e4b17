package distribution

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

// LedgerReader reads posted ledger credits for a payment, keyed by account.
type LedgerReader interface {
	CreditsByAccount(ctx context.Context, paymentID string) (map[domain.Account]int64, error)
}

// PositionRepository reads the effective investor positions for a loan as
// of a given date (spec §4.9: "effective investor positions on
// effective_date").
type PositionRepository interface {
	EffectivePositions(ctx context.Context, loanID string, effectiveDate time.Time) ([]domain.InvestorPosition, error)
}

// DistributionWriter persists distribution rows: first at status=calculated,
// then flipped to posted in the same transaction (spec §4.9).
type DistributionWriter interface {
	InsertCalculated(ctx context.Context, rows []domain.Distribution) error
	MarkPosted(ctx context.Context, paymentID string) error
}

// OutboxAppender is the append-only slice of outbox.Store this consumer
// needs to publish distribution.calculated.
type OutboxAppender interface {
	Append(ctx context.Context, msg domain.OutboxMessage) error
}

type posted struct {
	PaymentID     string    `json:"payment_id"`
	LoanID        string    `json:"loan_id"`
	EffectiveDate time.Time `json:"effective_date,omitempty"`
}

// Consumer implements the distribution engine step of the pipeline (C9).
type Consumer struct {
	Ledger       LedgerReader
	Positions    PositionRepository
	Writer       DistributionWriter
	Outbox       OutboxAppender
	Wrapper      *idempotency.Wrapper
	Factory      *envelope.Factory
	Logger       mlog.Logger
	ServicingBps int64
	Now          func() time.Time
}

func (c *Consumer) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}

	return time.Now()
}

// Handle processes one payment.<src>.posted envelope (spec §4.9).
func (c *Consumer) Handle(ctx context.Context, env domain.Envelope) error {
	raw, err := json.Marshal(env.Data)
	if err != nil {
		return fmt.Errorf("remarshal envelope data: %w", err)
	}

	var p posted
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("unmarshal posted event: %w", err)
	}

	key := fmt.Sprintf("distribution:%s", p.PaymentID)

	return c.Wrapper.Wrap(ctx, "distribution", key, func(ctx context.Context) error {
		return c.distribute(ctx, env, p)
	})
}

func (c *Consumer) distribute(ctx context.Context, env domain.Envelope, p posted) error {
	credits, err := c.Ledger.CreditsByAccount(ctx, p.PaymentID)
	if err != nil {
		return fmt.Errorf("load posted ledger credits: %w", err)
	}

	interest := credits[domain.AccountInterestIncome]
	principal := credits[domain.AccountPrincipalReceivable]

	if interest+principal == 0 {
		// nothing distributable (e.g. an escrow-only or fee-only posting)
		return nil
	}

	effectiveDate := p.EffectiveDate
	if effectiveDate.IsZero() {
		effectiveDate = c.now()
	}

	positions, err := c.Positions.EffectivePositions(ctx, p.LoanID, effectiveDate)
	if err != nil {
		return fmt.Errorf("load effective investor positions: %w", err)
	}

	if len(positions) == 0 {
		return nil
	}

	rows := Calculate(p.PaymentID, effectiveDate, interest, principal, positions, c.ServicingBps)

	if err := c.Writer.InsertCalculated(ctx, rows); err != nil {
		return fmt.Errorf("insert calculated distribution rows: %w", err)
	}

	if err := c.Writer.MarkPosted(ctx, p.PaymentID); err != nil {
		return fmt.Errorf("mark distribution posted: %w", err)
	}

	return c.publishCalculated(ctx, env, p, rows)
}

func (c *Consumer) publishCalculated(ctx context.Context, parent domain.Envelope, p posted, rows []domain.Distribution) error {
	out := c.Factory.Reply(parent, "distribution.calculated", struct {
		PaymentID string               `json:"payment_id"`
		LoanID    string               `json:"loan_id"`
		Rows      []domain.Distribution `json:"rows"`
	}{PaymentID: p.PaymentID, LoanID: p.LoanID, Rows: rows})

	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal distribution.calculated: %w", err)
	}

	msg := domain.OutboxMessage{
		ID:            out.MessageID,
		AggregateType: "payment",
		AggregateID:   p.PaymentID,
		EventType:     out.Schema,
		Payload:       payload,
		Exchange:      broker.ExchangePaymentsSaga,
		RoutingKey:    "distribution.calculated",
		CorrelationID: out.CorrelationID,
		CreatedAt:     c.now().UTC(),
	}

	return c.Outbox.Append(ctx, msg)
}
