package allocation

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

// LoanLocker acquires the per-loan advisory lock required before reading
// balances and held until the transaction commits (spec §4.8).
type LoanLocker interface {
	Lock(ctx context.Context, loanID string) error
}

// BalanceRepository reads the target balances a waterfall draws against.
type BalanceRepository interface {
	Balances(ctx context.Context, loanID string) (domain.LoanBalances, error)
}

// RuleRepository reads any loan-specific allocation_rules override.
// An empty slice means no override exists and the policy's own waterfall
// applies.
type RuleRepository interface {
	LoanRules(ctx context.Context, loanID string) ([]domain.AllocationRule, error)
}

// LedgerWriter persists the ledger rows produced by one posting.
type LedgerWriter interface {
	InsertEntries(ctx context.Context, entries []domain.LedgerEntry) error
}

// PaymentRepository advances the payment's state machine.
type PaymentRepository interface {
	Transition(ctx context.Context, paymentID string, to domain.PaymentState, reason string) error
}

// OutboxAppender is the append-only slice of outbox.Store this consumer
// needs to publish payment.<src>.posted.
type OutboxAppender interface {
	Append(ctx context.Context, msg domain.OutboxMessage) error
}

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

// Consumer implements the allocation & posting step of the pipeline (C8).
type Consumer struct {
	Locks    LoanLocker
	Balances BalanceRepository
	Rules    RuleRepository
	Ledger   LedgerWriter
	Payments PaymentRepository
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

// Handle processes one saga.payment.start envelope (spec §4.8).
func (c *Consumer) Handle(ctx context.Context, env domain.Envelope) error {
	raw, err := json.Marshal(env.Data)
	if err != nil {
		return fmt.Errorf("remarshal envelope data: %w", err)
	}

	var saga startSaga
	if err := json.Unmarshal(raw, &saga); err != nil {
		return fmt.Errorf("unmarshal saga.payment.start: %w", err)
	}

	key := fmt.Sprintf("allocation:%s", saga.PaymentID)

	return c.Wrapper.Wrap(ctx, "allocation", key, func(ctx context.Context) error {
		return c.post(ctx, env, saga)
	})
}

func (c *Consumer) post(ctx context.Context, env domain.Envelope, saga startSaga) error {
	if err := c.Locks.Lock(ctx, saga.LoanID); err != nil {
		return fmt.Errorf("acquire loan lock: %w", err)
	}

	result, err := c.allocate(ctx, saga)
	if err != nil {
		return err
	}

	if err := c.Ledger.InsertEntries(ctx, result.Entries); err != nil {
		return fmt.Errorf("insert ledger entries: %w", err)
	}

	if err := c.Payments.Transition(ctx, saga.PaymentID, domain.PaymentPostedPendingSettlement, ""); err != nil {
		return fmt.Errorf("transition to posted_pending_settlement: %w", err)
	}

	return c.publishPosted(ctx, env, saga, result)
}

func (c *Consumer) allocate(ctx context.Context, saga startSaga) (Result, error) {
	config := saga.Config
	if config.Name == "" {
		config = domain.Policies[saga.Policy]
	}

	if config.DirectAccount != "" {
		return DirectPost(saga.LoanID, saga.PaymentID, config.DirectAccount, saga.AmountCents, saga.EffectiveDate), nil
	}

	balances, err := c.Balances.Balances(ctx, saga.LoanID)
	if err != nil {
		return Result{}, fmt.Errorf("load loan balances: %w", err)
	}

	var override []domain.AllocationRule
	if c.Rules != nil {
		override, err = c.Rules.LoanRules(ctx, saga.LoanID)
		if err != nil {
			return Result{}, fmt.Errorf("load allocation rule override: %w", err)
		}
	}

	rules := ResolveRules(override, WaterfallToRules(config.Waterfall))

	return Allocate(saga.LoanID, saga.PaymentID, saga.EffectiveDate, saga.AmountCents, saga.EscrowOnly, rules, balances), nil
}

func (c *Consumer) publishPosted(ctx context.Context, parent domain.Envelope, saga startSaga, result Result) error {
	schema := fmt.Sprintf("payment.%s.posted", saga.Source)

	type posted struct {
		PaymentID      string `json:"payment_id"`
		LoanID         string `json:"loan_id"`
		AmountCents    int64  `json:"amount_cents"`
		UnappliedCents int64  `json:"unapplied_cents"`
	}

	out := c.Factory.Reply(parent, schema, posted{
		PaymentID:      saga.PaymentID,
		LoanID:         saga.LoanID,
		AmountCents:    saga.AmountCents,
		UnappliedCents: result.UnappliedCents,
	})

	payload, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", schema, err)
	}

	msg := domain.OutboxMessage{
		ID:            out.MessageID,
		AggregateType: "payment",
		AggregateID:   saga.PaymentID,
		EventType:     out.Schema,
		Payload:       payload,
		Exchange:      broker.ExchangePaymentsTopic,
		RoutingKey:    schema,
		CorrelationID: out.CorrelationID,
		CreatedAt:     c.now().UTC(),
	}

	return c.Outbox.Append(ctx, msg)
}
