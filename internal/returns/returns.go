// Package returns implements the returns handler (C11): normalized ACH/wire
// return intake that looks up the original payment, classifies the return
// code, and dispatches to the reversal saga, a dispute case (alongside the
// saga for ACH codes flagged as both), or a hold.
package returns

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
	"github.com/cschwartz85032/loanserve-sub010/internal/reversal"
)

// Kind distinguishes the two return rails this handler normalizes (spec
// §6.3, §4.11).
type Kind string

const (
	KindACH  Kind = "ach"
	KindWire Kind = "wire"
)

// intake is the normalized shape of a return notification, whether it
// arrived as a webhook payload or a manual entry (spec §4.11: "Normalized
// intake (webhook or manual)").
type intake struct {
	PaymentID string `json:"payment_id"`
	Kind      Kind   `json:"kind"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
}

// PaymentLookup resolves the original payment a return refers to.
type PaymentLookup interface {
	GetPayment(ctx context.Context, paymentID string) (*domain.Payment, error)
}

// EventChain records the hash-chained payment_events row for the return
// (spec §4.4, §4.11).
type EventChain interface {
	LastEventHash(ctx context.Context, paymentID string) (string, error)
	AppendEvent(ctx context.Context, ev domain.PaymentEvent) error
}

// Saga starts the reversal saga (C10) for a compensated return.
type Saga interface {
	Start(ctx context.Context, parent domain.Envelope, sagaID, paymentID, loanID, source, returnCode, reason string) error
}

// PaymentMethodBanner is the policy hook spec §4.10/§6.3 names for ACH
// return codes that permanently ban the originating payment method
// ("R02"/"R07"/"R10"/"R16": account closed, unauthorized, no account,
// invalid account). Optional: a nil Handler.Bans leaves the disposition
// computed but unactioned, same as every other optional collaborator here.
type PaymentMethodBanner interface {
	BanPaymentMethod(ctx context.Context, paymentID, reason string) error
}

// ExceptionOpener opens a case for an orphan return or a dispute.
type ExceptionOpener interface {
	OpenCase(ctx context.Context, category, subcategory string, msg domain.OutboxMessage, reason string) error
}

// OutboxAppender is the append-only slice of outbox.Store this handler
// needs to publish return.<type> for downstream consumers.
type OutboxAppender interface {
	Append(ctx context.Context, msg domain.OutboxMessage) error
}

// Handler implements C11 (spec §4.11).
type Handler struct {
	Payments  PaymentLookup
	Events    EventChain
	Saga      Saga
	Exception ExceptionOpener
	Outbox    OutboxAppender
	Bans      PaymentMethodBanner
	Wrapper   *idempotency.Wrapper
	Factory   *envelope.Factory
	Logger    mlog.Logger
	Now       func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}

	return time.Now()
}

// disposition is the unified outcome of classifying either rail's return
// code, so both ACH and wire intakes can share one dispatch path.
type disposition struct {
	compensate bool
	dispute    bool
	hold       bool
	ban        bool
}

func classify(k Kind, code string) disposition {
	switch k {
	case KindWire:
		switch reversal.ClassifyWireRecall(code) {
		case reversal.WireActionReverse:
			return disposition{compensate: true}
		default:
			return disposition{hold: true}
		}
	default:
		ach := reversal.ClassifyACHReturn(code)
		if ach.Retryable {
			return disposition{hold: true}
		}

		return disposition{compensate: ach.Reverse, dispute: ach.Dispute, ban: ach.PermanentBan}
	}
}

// Handle processes one return.intake envelope (spec §4.11).
func (h *Handler) Handle(ctx context.Context, env domain.Envelope) error {
	raw, err := json.Marshal(env.Data)
	if err != nil {
		return fmt.Errorf("remarshal envelope data: %w", err)
	}

	var in intake
	if err := json.Unmarshal(raw, &in); err != nil {
		return fmt.Errorf("unmarshal return intake: %w", err)
	}

	key := fmt.Sprintf("return:%s:%s", in.PaymentID, in.Code)

	return h.Wrapper.Wrap(ctx, "returns", key, func(ctx context.Context) error {
		return h.process(ctx, env, in)
	})
}

func (h *Handler) process(ctx context.Context, env domain.Envelope, in intake) error {
	payment, err := h.Payments.GetPayment(ctx, in.PaymentID)
	if err != nil {
		return fmt.Errorf("look up payment: %w", err)
	}

	if payment == nil {
		msg := domain.OutboxMessage{AggregateID: in.PaymentID, CorrelationID: env.CorrelationID, CreatedAt: h.now().UTC()}
		return h.Exception.OpenCase(ctx, "reconcile_variance", "orphan_return", msg, "return references an unknown payment: "+in.Code)
	}

	d := classify(in.Kind, in.Code)

	if err := h.emitReturnEvent(ctx, env, payment, in); err != nil {
		return err
	}

	if d.ban && h.Bans != nil {
		if err := h.Bans.BanPaymentMethod(ctx, payment.PaymentID, "permanent ACH return code "+in.Code); err != nil {
			return fmt.Errorf("ban payment method: %w", err)
		}
	}

	if d.compensate {
		sagaID := in.PaymentID + ":" + in.Code
		if err := h.Saga.Start(ctx, env, sagaID, payment.PaymentID, payment.LoanID, string(payment.Source), in.Code, in.Reason); err != nil {
			return fmt.Errorf("start reversal saga: %w", err)
		}
	}

	switch {
	case d.dispute:
		msg := domain.OutboxMessage{AggregateID: payment.PaymentID, CorrelationID: env.CorrelationID, CreatedAt: h.now().UTC()}
		if err := h.Exception.OpenCase(ctx, "dispute", in.Code, msg, in.Reason); err != nil {
			return fmt.Errorf("open dispute case: %w", err)
		}
	case d.hold:
		msg := domain.OutboxMessage{AggregateID: payment.PaymentID, CorrelationID: env.CorrelationID, CreatedAt: h.now().UTC()}
		if err := h.Exception.OpenCase(ctx, "reconcile_variance", "return_hold", msg, in.Reason); err != nil {
			return fmt.Errorf("open hold case: %w", err)
		}
	}

	return nil
}

type returnEvent struct {
	PaymentID string `json:"payment_id"`
	Kind      Kind   `json:"kind"`
	Code      string `json:"code"`
	Reason    string `json:"reason"`
}

func (h *Handler) emitReturnEvent(ctx context.Context, env domain.Envelope, payment *domain.Payment, in intake) error {
	ev := returnEvent{PaymentID: in.PaymentID, Kind: in.Kind, Code: in.Code, Reason: in.Reason}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal return event: %w", err)
	}

	prev := ""
	if h.Events != nil {
		prev, err = h.Events.LastEventHash(ctx, in.PaymentID)
		if err != nil {
			return fmt.Errorf("load prior event hash: %w", err)
		}
	}

	if prev == "" {
		prev = idempotency.GenesisHash(in.PaymentID)
	}

	now := h.now()

	hash, err := idempotency.NextEventHash(prev, ev, env.CorrelationID, now)
	if err != nil {
		return fmt.Errorf("compute event hash: %w", err)
	}

	schema := fmt.Sprintf("return.%s", in.Kind)

	if h.Events != nil {
		if err := h.Events.AppendEvent(ctx, domain.PaymentEvent{
			EventID:       env.MessageID,
			PaymentID:     in.PaymentID,
			Type:          schema,
			Data:          data,
			CorrelationID: env.CorrelationID,
			Timestamp:     now,
			PrevEventHash: prev,
			EventHash:     hash,
		}); err != nil {
			return fmt.Errorf("append return event: %w", err)
		}
	}

	out := h.Factory.Reply(env, schema, ev)

	payloadBytes, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", schema, err)
	}

	return h.Outbox.Append(ctx, domain.OutboxMessage{
		ID:            out.MessageID,
		AggregateType: "payment",
		AggregateID:   in.PaymentID,
		EventType:     out.Schema,
		Payload:       payloadBytes,
		Exchange:      broker.ExchangePaymentsTopic,
		RoutingKey:    schema,
		CorrelationID: out.CorrelationID,
		CreatedAt:     now.UTC(),
	})
}
